// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/meridian-labs/catalog-migrate/common/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport(success bool) *MigrationReport {
	report := &MigrationReport{
		RunID:      "run-1",
		Database:   "jewelry",
		Collection: "products",
		StartedAt:  time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 6, 15, 12, 4, 30, 0, time.UTC),
		Success:    success,
		Phases:     NewLedger().Records(),
		BackupPath: "migration-backups/backup-products.json",
		Transform:  &TransformStats{Sourced: 1000, Transformed: 970, Inserted: 970, SuccessRate: 97.0},
	}
	if !success {
		report.FailedPhase = PhaseBlueGreenSwitch
		report.Error = "rename failed"
	}
	return report
}

func TestWriteReportFilenames(t *testing.T) {
	dir, cleanup := testutil.MakeTempDir(t)
	defer cleanup()

	successPath, err := WriteReport(dir, sampleReport(true))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(successPath), "migration-report-"))

	failurePath, err := WriteReport(dir, sampleReport(false))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(failurePath), "migration-failure-"))
}

func TestWriteReportContents(t *testing.T) {
	dir, cleanup := testutil.MakeTempDir(t)
	defer cleanup()

	report := sampleReport(false)
	report.RollbackRun = true
	report.RollbackOK = true
	path, err := WriteReport(dir, report)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["runId"])
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, string(PhaseBlueGreenSwitch), decoded["failedPhase"])
	assert.Equal(t, true, decoded["rollbackRun"])
	assert.Contains(t, decoded, "phases")
	assert.Contains(t, decoded, "backupPath")
}

func TestBuildRecommendations(t *testing.T) {
	report := sampleReport(true)
	report.Performance = &PerfReport{
		Results: []PerfResult{
			{Name: "category_browse", AvgMs: 180, TargetMs: 100, Passed: false, GlobalCompliant: true},
			{Name: "slug_lookup", AvgMs: 5, TargetMs: 25, Passed: true, GlobalCompliant: true},
		},
	}
	report.Transform.Failures = []FailedDocument{{ID: "prod-13", Reason: "undecodable"}}

	report.BuildRecommendations()

	joined := strings.Join(report.Recommendations, "\n")
	assert.Contains(t, joined, "category_browse")
	assert.NotContains(t, joined, "slug_lookup")
	assert.Contains(t, joined, "1 document failed transformation")

	report.Transform.Failures = append(report.Transform.Failures,
		FailedDocument{ID: "prod-14", Reason: "undecodable"})
	report.BuildRecommendations()
	joined = strings.Join(report.Recommendations, "\n")
	assert.Contains(t, joined, "2 documents failed transformation")
}

func TestRenderSummary(t *testing.T) {
	report := sampleReport(false)
	report.BuildRecommendations()

	var buf bytes.Buffer
	report.RenderSummary(&buf)
	out := buf.String()

	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "jewelry.products")
	assert.Contains(t, out, string(PhasePreFlight))
	assert.Contains(t, out, "970 of 1000")
	assert.Contains(t, out, "backup artifact")
	assert.Contains(t, out, "recommendations:")
}
