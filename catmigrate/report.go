// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/meridian-labs/catalog-migrate/common/db"
	"github.com/meridian-labs/catalog-migrate/common/util"
	"github.com/mitchellh/go-wordwrap"
	"github.com/pkg/errors"
)

// recommendationWidth wraps operator recommendations for console output.
const recommendationWidth = 72

// MigrationReport is the final artifact of a run: every phase's record,
// the backup location, and the validation outcomes.
type MigrationReport struct {
	RunID           string              `json:"runId"`
	Version         string              `json:"version"`
	Database        string              `json:"database"`
	Collection      string              `json:"collection"`
	StartedAt       time.Time           `json:"startedAt"`
	FinishedAt      time.Time           `json:"finishedAt"`
	Success         bool                `json:"success"`
	FailedPhase     PhaseName           `json:"failedPhase,omitempty"`
	Error           string              `json:"error,omitempty"`
	RollbackRun     bool                `json:"rollbackRun,omitempty"`
	RollbackOK      bool                `json:"rollbackOk,omitempty"`
	Phases          []PhaseRecord       `json:"phases"`
	BackupPath      string              `json:"backupPath,omitempty"`
	BackupColl      string              `json:"backupCollection,omitempty"`
	Transform       *TransformStats     `json:"transformation,omitempty"`
	IndexBuilds     []IndexBuildResult  `json:"indexBuilds,omitempty"`
	Indexes         []db.IndexDocument  `json:"indexes,omitempty"`
	Performance     *PerfReport         `json:"performance,omitempty"`
	Verification    *VerificationReport `json:"verification,omitempty"`
	Recommendations []string            `json:"recommendations"`
}

// BuildRecommendations derives static operator guidance from the run's
// outcomes. These are advisory only and never gate anything.
func (r *MigrationReport) BuildRecommendations() {
	recs := []string{
		"Retain the backup artifact and backup collection until the new schema has served production traffic for at least one full business cycle.",
		"Monitor slow-query logs for the first 24 hours after cutover; the new compound indexes change plan selection.",
	}
	if r.Performance != nil {
		for _, result := range r.Performance.Results {
			if !result.Passed {
				recs = append(recs, fmt.Sprintf(
					"Query %s averaged %.0fms against a %dms target; consider a covering index or tighter filter.",
					result.Name, result.AvgMs, result.TargetMs))
			}
		}
	}
	if r.Transform != nil && len(r.Transform.Failures) > 0 {
		failed := len(r.Transform.Failures)
		recs = append(recs, fmt.Sprintf(
			"%d %s failed transformation and %s left out of the new collection; review their identifiers in the transformation section and migrate them manually.",
			failed,
			util.Pluralize(failed, "document", "documents"),
			util.Pluralize(failed, "was", "were")))
	}
	r.Recommendations = recs
}

// WriteReport persists the report as indented JSON under dir, using a
// success or failure filename depending on the outcome, and returns the
// path written.
func WriteReport(dir string, report *MigrationReport) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "error creating report directory %s", dir)
	}

	prefix := "migration-report"
	if !report.Success {
		prefix = "migration-failure"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.json",
		prefix, report.FinishedAt.Format(backupTimeFormat)))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "error encoding migration report")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "error writing migration report %s", path)
	}
	return path, nil
}

// RenderSummary writes a human-readable run summary to w.
func (r *MigrationReport) RenderSummary(w io.Writer) {
	outcome := "SUCCEEDED"
	if !r.Success {
		outcome = "FAILED"
	}
	fmt.Fprintf(w, "migration %s of %s.%s %s in %v\n",
		r.RunID, r.Database, r.Collection, outcome, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	for _, phase := range r.Phases {
		line := fmt.Sprintf("  %-24s %s", phase.Name, phase.Status)
		if phase.Status == PhaseCompleted || phase.Status == PhaseFailed {
			line += fmt.Sprintf(" (%v)", phase.Duration.Round(time.Millisecond))
		}
		if phase.Error != "" {
			line += "  " + phase.Error
		}
		fmt.Fprintln(w, line)
	}

	if r.Transform != nil {
		fmt.Fprintf(w, "  transformed %d of %d documents (%.1f%% success rate)\n",
			r.Transform.Transformed, r.Transform.Sourced, r.Transform.SuccessRate)
	}
	if r.BackupPath != "" {
		fmt.Fprintf(w, "  backup artifact: %s\n", r.BackupPath)
	}
	if r.BackupColl != "" {
		fmt.Fprintf(w, "  backup collection: %s\n", r.BackupColl)
	}

	if len(r.Recommendations) > 0 {
		fmt.Fprintln(w, "recommendations:")
		for _, rec := range r.Recommendations {
			wrapped := wordwrap.WrapString(rec, recommendationWidth)
			for i, line := range splitLines(wrapped) {
				if i == 0 {
					fmt.Fprintf(w, "  - %s\n", line)
				} else {
					fmt.Fprintf(w, "    %s\n", line)
				}
			}
		}
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
