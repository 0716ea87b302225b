// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ToFloat64 coerces a value pulled out of an untyped BSON document into a
// float64. The second return value is false when the value is absent or not
// numeric. Decimal128 values that cannot be represented exactly are rejected.
func ToFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case primitive.Decimal128:
		bi, exp, err := v.BigInt()
		if err != nil {
			return 0, false
		}
		f := float64(bi.Int64())
		for ; exp > 0; exp-- {
			f *= 10
		}
		for ; exp < 0; exp++ {
			f /= 10
		}
		return f, true
	}
	return 0, false
}

// ToInt64 coerces a value pulled out of an untyped BSON document into an
// int64, truncating floats. The second return value is false when the value
// is absent or not numeric.
func ToInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// IsTruthy returns true for any value a JavaScript runtime would treat as
// truthy. The source catalog was written against a dynamically-typed schema,
// so flag fields can arrive as booleans, numbers, or strings.
func IsTruthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	case float32:
		return v != 0
	case float64:
		return v != 0
	}
	return true
}
