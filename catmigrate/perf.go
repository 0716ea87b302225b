// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"context"
	"time"

	"github.com/meridian-labs/catalog-migrate/common/log"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultQueryBudgetMs is the global latency budget applied to every
// benchmark query, independent of each query's own target.
const DefaultQueryBudgetMs = 300

// DefaultPerfRuns is how many times each benchmark query is repeated to
// average out jitter.
const DefaultPerfRuns = 3

// PerfQuerySpec is one benchmark query with its own latency target.
// Critical specs gate the migration; non-critical specs only generate
// recommendations.
type PerfQuerySpec struct {
	Name     string
	Filter   bson.D
	Sort     bson.D
	Limit    int64
	TargetMs int64
	Critical bool
}

// PerfResult reports one benchmark query's outcome. Passed compares the
// average against the query's own target; GlobalCompliant compares the same
// average against the single global budget. The two are computed and
// reported independently.
type PerfResult struct {
	Name            string  `json:"name"`
	AvgMs           float64 `json:"avgTimeMs"`
	TargetMs        int64   `json:"targetMs"`
	Runs            int     `json:"runs"`
	Critical        bool    `json:"critical"`
	Passed          bool    `json:"passed"`
	GlobalCompliant bool    `json:"globalCompliant"`
}

// PerfReport aggregates a full suite run.
type PerfReport struct {
	Results        []PerfResult `json:"results"`
	ComplianceRate float64      `json:"complianceRate"`
	CriticalPassed bool         `json:"criticalPassed"`
	AllPassed      bool         `json:"allPassed"`
	GlobalBudgetMs int64        `json:"globalBudgetMs"`
}

// CatalogQuerySpecs returns the representative query battery for the
// migrated catalog collection. Critical queries mirror the storefront's hot
// paths; the rest cover the customizer's filters.
func CatalogQuerySpecs() []PerfQuerySpec {
	return []PerfQuerySpec{
		{
			Name:     "category_browse",
			Filter:   bson.D{{Key: "category", Value: "rings"}},
			Sort:     bson.D{{Key: "metadata.featured", Value: -1}, {Key: "pricing.basePrice", Value: 1}},
			Limit:    20,
			TargetMs: 100,
			Critical: true,
		},
		{
			Name:     "featured_products",
			Filter:   bson.D{{Key: "metadata.featured", Value: true}},
			Sort:     bson.D{{Key: "pricing.basePrice", Value: -1}},
			Limit:    12,
			TargetMs: 50,
			Critical: true,
		},
		{
			Name:     "slug_lookup",
			Filter:   bson.D{{Key: "slug", Value: "solaris-aura-ring"}},
			Limit:    1,
			TargetMs: 25,
			Critical: true,
		},
		{
			Name: "metal_filter",
			Filter: bson.D{
				{Key: "materialSpecs.metal.type", Value: "14k-gold"},
				{Key: "inventory.available", Value: true},
			},
			Sort:     bson.D{{Key: "pricing.basePrice", Value: 1}},
			Limit:    20,
			TargetMs: 150,
		},
		{
			Name: "carat_range",
			Filter: bson.D{
				{Key: "materialSpecs.stone.carat", Value: bson.D{
					{Key: "$gte", Value: 1.0},
					{Key: "$lte", Value: 3.0},
				}},
			},
			Sort:     bson.D{{Key: "materialSpecs.stone.carat", Value: 1}},
			Limit:    20,
			TargetMs: 150,
		},
	}
}

// PerfConfig tunes a suite run.
type PerfConfig struct {
	Runs           int
	GlobalBudgetMs int64
}

func (cfg PerfConfig) withDefaults() PerfConfig {
	if cfg.Runs < 1 {
		cfg.Runs = DefaultPerfRuns
	}
	if cfg.GlobalBudgetMs <= 0 {
		cfg.GlobalBudgetMs = DefaultQueryBudgetMs
	}
	return cfg
}

// RunPerformanceSuite executes every query spec cfg.Runs times against the
// collection, averages the latencies, and scores them against both the
// per-query targets and the global budget.
func RunPerformanceSuite(
	ctx context.Context,
	coll *mongo.Collection,
	specs []PerfQuerySpec,
	cfg PerfConfig,
) (*PerfReport, error) {
	cfg = cfg.withDefaults()

	averages := make([]float64, len(specs))
	for i, spec := range specs {
		samples := make([]float64, 0, cfg.Runs)
		for run := 0; run < cfg.Runs; run++ {
			elapsed, err := timeQuery(ctx, coll, spec)
			if err != nil {
				return nil, errors.Wrapf(err, "error running benchmark query %s", spec.Name)
			}
			samples = append(samples, float64(elapsed.Milliseconds()))
		}
		avg, err := stats.Mean(samples)
		if err != nil {
			return nil, errors.Wrapf(err, "error averaging benchmark query %s", spec.Name)
		}
		averages[i] = avg
		log.Logvf(log.DebugLow, "benchmark query %s averaged %.1fms over %d runs",
			spec.Name, avg, cfg.Runs)
	}

	report := EvaluatePerfResults(specs, averages, cfg)
	return report, nil
}

// EvaluatePerfResults scores measured averages against per-query targets and
// the global budget. Split out from the runner so the dual pass criteria
// can be tested without a server.
func EvaluatePerfResults(specs []PerfQuerySpec, averages []float64, cfg PerfConfig) *PerfReport {
	cfg = cfg.withDefaults()
	report := &PerfReport{
		Results:        make([]PerfResult, len(specs)),
		CriticalPassed: true,
		AllPassed:      true,
		GlobalBudgetMs: cfg.GlobalBudgetMs,
	}

	compliant := 0
	for i, spec := range specs {
		avg := averages[i]
		result := PerfResult{
			Name:            spec.Name,
			AvgMs:           avg,
			TargetMs:        spec.TargetMs,
			Runs:            cfg.Runs,
			Critical:        spec.Critical,
			Passed:          avg <= float64(spec.TargetMs),
			GlobalCompliant: avg <= float64(cfg.GlobalBudgetMs),
		}
		if result.GlobalCompliant {
			compliant++
		}
		if !result.Passed {
			report.AllPassed = false
			if spec.Critical {
				report.CriticalPassed = false
			}
		}
		report.Results[i] = result
	}

	if len(specs) > 0 {
		report.ComplianceRate = float64(compliant) / float64(len(specs)) * 100
	}
	return report
}

// CriticalSpecs filters a battery down to the queries that gate the
// migration.
func CriticalSpecs(specs []PerfQuerySpec) []PerfQuerySpec {
	critical := make([]PerfQuerySpec, 0, len(specs))
	for _, spec := range specs {
		if spec.Critical {
			critical = append(critical, spec)
		}
	}
	return critical
}

func timeQuery(ctx context.Context, coll *mongo.Collection, spec PerfQuerySpec) (time.Duration, error) {
	findOpts := mopt.Find()
	if len(spec.Sort) > 0 {
		findOpts.SetSort(spec.Sort)
	}
	if spec.Limit > 0 {
		findOpts.SetLimit(spec.Limit)
	}

	start := time.Now()
	cursor, err := coll.Find(ctx, spec.Filter, findOpts)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
	}
	if err := cursor.Err(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
