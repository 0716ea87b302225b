// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateMeetsThreshold(t *testing.T) {
	cases := []struct {
		name      string
		matched   int64
		total     int64
		threshold float64
		want      bool
	}{
		{"exactly at the threshold", 95, 100, 95, true},
		{"just below the threshold", 94, 100, 95, false},
		{"all matched", 50, 50, 98, true},
		{"empty sample passes", 0, 0, 95, true},
		{"none matched", 0, 10, 95, false},
		{"949 of 1000 misses 95", 949, 1000, 95, false},
		{"950 of 1000 meets 95", 950, 1000, 95, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RateMeetsThreshold(tc.matched, tc.total, tc.threshold))
		})
	}
}

func TestSuiteAccounting(t *testing.T) {
	suite := VerificationSuite{Name: "example"}
	suite.pass("count retained")
	suite.pass("identity preserved")
	suite.fail("carat drift found")

	assert.Equal(t, 2, suite.Passed)
	assert.Equal(t, 1, suite.Failed)
	assert.Len(t, suite.Details, 3)
	assert.Equal(t, "FAIL: carat drift found", suite.Details[2])
}

func TestEnumMembership(t *testing.T) {
	for _, metal := range MetalTypes {
		assert.True(t, metalEnum.Contains(metal))
	}
	assert.False(t, metalEnum.Contains("unobtanium"))
	assert.False(t, metalEnum.Contains(""))

	for _, category := range Categories {
		assert.True(t, categoryEnum.Contains(category))
	}
	assert.False(t, categoryEnum.Contains("watches"))
}

func TestRatePercentInt(t *testing.T) {
	assert.Equal(t, int64(50), ratePercentInt(1, 2))
	assert.Equal(t, int64(29), ratePercentInt(29, 100))
	assert.Equal(t, int64(0), ratePercentInt(0, 100))
	assert.Equal(t, int64(0), ratePercentInt(5, 0))
	assert.Equal(t, int64(100), ratePercentInt(10, 10))
}
