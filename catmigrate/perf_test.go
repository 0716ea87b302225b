// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerfDualCriteria(t *testing.T) {
	// A query can miss its own target while staying inside the global
	// budget; the two verdicts are reported independently.
	specs := []PerfQuerySpec{{Name: "category_browse", TargetMs: 100, Critical: true}}
	cfg := PerfConfig{Runs: 3, GlobalBudgetMs: 300}

	report := EvaluatePerfResults(specs, []float64{150}, cfg)
	require.Len(t, report.Results, 1)

	result := report.Results[0]
	assert.False(t, result.Passed, "150ms misses the 100ms target")
	assert.True(t, result.GlobalCompliant, "150ms is within the 300ms global budget")
	assert.False(t, report.CriticalPassed)
	assert.Equal(t, 100.0, report.ComplianceRate)
}

func TestPerfCriticalGate(t *testing.T) {
	specs := []PerfQuerySpec{
		{Name: "critical_fast", TargetMs: 100, Critical: true},
		{Name: "noncritical_slow", TargetMs: 100, Critical: false},
	}
	cfg := PerfConfig{Runs: 3, GlobalBudgetMs: 300}

	t.Run("a non-critical miss does not fail the gate", func(t *testing.T) {
		report := EvaluatePerfResults(specs, []float64{50, 200}, cfg)
		assert.True(t, report.CriticalPassed)
		assert.False(t, report.AllPassed)
	})

	t.Run("a critical miss fails the gate", func(t *testing.T) {
		report := EvaluatePerfResults(specs, []float64{200, 50}, cfg)
		assert.False(t, report.CriticalPassed)
	})
}

func TestPerfComplianceRate(t *testing.T) {
	specs := []PerfQuerySpec{
		{Name: "a", TargetMs: 100},
		{Name: "b", TargetMs: 100},
		{Name: "c", TargetMs: 100},
		{Name: "d", TargetMs: 100},
	}
	cfg := PerfConfig{Runs: 3, GlobalBudgetMs: 300}

	// Three of four inside the global budget regardless of their targets.
	report := EvaluatePerfResults(specs, []float64{50, 250, 299, 400}, cfg)
	assert.Equal(t, 75.0, report.ComplianceRate)
}

func TestPerfConfigDefaults(t *testing.T) {
	report := EvaluatePerfResults(
		[]PerfQuerySpec{{Name: "a", TargetMs: 100}},
		[]float64{10},
		PerfConfig{},
	)
	assert.Equal(t, int64(DefaultQueryBudgetMs), report.GlobalBudgetMs)
	assert.Equal(t, DefaultPerfRuns, report.Results[0].Runs)
}

func TestCriticalSpecs(t *testing.T) {
	specs := CatalogQuerySpecs()
	critical := CriticalSpecs(specs)

	require.NotEmpty(t, critical)
	assert.Less(t, len(critical), len(specs))
	for _, spec := range critical {
		assert.True(t, spec.Critical)
	}
}
