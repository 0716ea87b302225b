// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFloat64(t *testing.T) {
	t.Run("numeric values", func(t *testing.T) {
		for _, in := range []interface{}{21, int32(21), int64(21), float32(21), float64(21)} {
			out, ok := ToFloat64(in)
			require.True(t, ok, "coercing %T", in)
			assert.Equal(t, 21.0, out)
		}
	})

	t.Run("non-numeric values", func(t *testing.T) {
		for _, in := range []interface{}{nil, "21", true, []int{21}} {
			_, ok := ToFloat64(in)
			assert.False(t, ok, "coercing %T", in)
		}
	})
}

func TestToInt64(t *testing.T) {
	out, ok := ToInt64(float64(12.9))
	require.True(t, ok)
	assert.Equal(t, int64(12), out)

	_, ok = ToInt64("12")
	assert.False(t, ok)
}

func TestIsTruthy(t *testing.T) {
	trueCases := []interface{}{true, 1, int64(2), 2.5, "true", "false", []int{1}, map[string]interface{}{"a": 1}}
	for _, c := range trueCases {
		assert.True(t, IsTruthy(c), "%v (%T) should be truthy", c, c)
	}

	falseCases := []interface{}{nil, false, 0, int32(0), int64(0), float64(0), ""}
	for _, c := range falseCases {
		assert.False(t, IsTruthy(c), "%v (%T) should be falsy", c, c)
	}
}
