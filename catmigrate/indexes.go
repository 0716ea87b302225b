// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"context"
	"time"

	"github.com/meridian-labs/catalog-migrate/common/db"
	"github.com/meridian-labs/catalog-migrate/common/log"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// Index tiers. Core indexes serve the storefront's hot paths; material
// indexes serve the customizer's filter combinations.
const (
	TierCore     = "core-performance"
	TierMaterial = "material-filtering"
)

// IndexPlan is one named index to build on the shadow collection.
type IndexPlan struct {
	Name        string
	Tier        string
	Description string
	Keys        bson.D
	Unique      bool
	Sparse      bool
}

// IndexBuildResult records the outcome of one index build for the report.
type IndexBuildResult struct {
	Name          string        `json:"name"`
	Tier          string        `json:"tier"`
	Created       bool          `json:"created"`
	AlreadyExists bool          `json:"alreadyExists"`
	Duration      time.Duration `json:"durationMs"`
}

// CatalogIndexPlans returns the full two-tier index plan for the migrated
// catalog collection.
func CatalogIndexPlans() []IndexPlan {
	return []IndexPlan{
		{
			Name:        "catalog_browse",
			Tier:        TierCore,
			Description: "category listing sorted by featured flag and price",
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "metadata.featured", Value: -1},
				{Key: "pricing.basePrice", Value: 1},
			},
		},
		{
			Name:        "category_filter",
			Tier:        TierCore,
			Description: "category and subcategory drill-down",
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "subcategory", Value: 1},
			},
		},
		{
			Name:        "text_search",
			Tier:        TierCore,
			Description: "full-text search over name, description, and tags",
			Keys: bson.D{
				{Key: "name", Value: "text"},
				{Key: "description", Value: "text"},
				{Key: "metadata.tags", Value: "text"},
			},
		},
		{
			Name:        "slug_lookup",
			Tier:        TierCore,
			Description: "unique product-page lookup by slug",
			Keys:        bson.D{{Key: "slug", Value: 1}},
			Unique:      true,
		},
		{
			Name:        "admin_dashboard",
			Tier:        TierCore,
			Description: "admin listing by availability and bestseller flag",
			Keys: bson.D{
				{Key: "inventory.available", Value: 1},
				{Key: "metadata.bestseller", Value: -1},
			},
		},
		{
			Name:        "metal_type",
			Tier:        TierMaterial,
			Description: "customizer filter on metal type",
			Keys:        bson.D{{Key: "materialSpecs.metal.type", Value: 1}},
		},
		{
			Name:        "stone_type",
			Tier:        TierMaterial,
			Description: "customizer filter on stone type",
			Keys:        bson.D{{Key: "materialSpecs.stone.type", Value: 1}},
			Sparse:      true,
		},
		{
			Name:        "metal_stone_category",
			Tier:        TierMaterial,
			Description: "combined material and category filter",
			Keys: bson.D{
				{Key: "materialSpecs.metal.type", Value: 1},
				{Key: "materialSpecs.stone.type", Value: 1},
				{Key: "category", Value: 1},
			},
		},
		{
			Name:        "carat_range",
			Tier:        TierMaterial,
			Description: "range queries on stone carat",
			Keys:        bson.D{{Key: "materialSpecs.stone.carat", Value: 1}},
			Sparse:      true,
		},
		{
			Name:        "premium_tier",
			Tier:        TierMaterial,
			Description: "premium browsing by price and featured flag",
			Keys: bson.D{
				{Key: "pricing.basePrice", Value: -1},
				{Key: "metadata.featured", Value: -1},
			},
		},
		{
			Name:        "sustainability",
			Tier:        TierMaterial,
			Description: "filter on recycled metal and ethically sourced stones",
			Keys: bson.D{
				{Key: "materialSpecs.metal.sustainability.recycled", Value: 1},
				{Key: "materialSpecs.stone.sustainability.ethicallySourced", Value: 1},
			},
		},
	}
}

// IndexBuildOptions controls how EnsureIndexes drives the server.
type IndexBuildOptions struct {
	// Background requests non-blocking builds where the server supports
	// them, so reads against the collection are not stalled.
	Background bool
	// Parallelism bounds how many builds run at once. Values below 1 mean
	// sequential.
	Parallelism int
}

// EnsureIndexes builds every planned index on the collection. Builds are
// idempotent: an "already exists" conflict is logged and recorded, never
// surfaced as an error. Results come back in plan order regardless of
// completion order.
func EnsureIndexes(
	ctx context.Context,
	coll *mongo.Collection,
	plans []IndexPlan,
	buildOpts IndexBuildOptions,
) ([]IndexBuildResult, error) {
	parallelism := buildOpts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	results := make([]IndexBuildResult, len(plans))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(parallelism)

	for i, plan := range plans {
		i, plan := i, plan
		group.Go(func() error {
			start := time.Now()
			result, err := buildIndex(groupCtx, coll, plan, buildOpts.Background)
			if err != nil {
				return errors.Wrapf(err, "error creating index %s", plan.Name)
			}
			result.Duration = time.Since(start)
			results[i] = result
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func buildIndex(
	ctx context.Context,
	coll *mongo.Collection,
	plan IndexPlan,
	background bool,
) (IndexBuildResult, error) {
	result := IndexBuildResult{Name: plan.Name, Tier: plan.Tier}

	indexOpts := mopt.Index().SetName(plan.Name)
	if plan.Unique {
		indexOpts.SetUnique(true)
	}
	if plan.Sparse {
		indexOpts.SetSparse(true)
	}
	if background {
		// Ignored by servers past 4.2, where all builds are non-blocking.
		indexOpts.SetBackground(true)
	}

	model := mongo.IndexModel{Keys: plan.Keys, Options: indexOpts}
	_, err := coll.Indexes().CreateOne(ctx, model)
	switch {
	case err == nil:
		result.Created = true
		log.Logvf(log.DebugLow, "created index %s (%s)", plan.Name, plan.Description)
	case db.IsIndexConflictError(err):
		result.AlreadyExists = true
		log.Logvf(log.Info, "index %s already exists, skipping", plan.Name)
	default:
		return result, err
	}
	return result, nil
}

// ListIndexes reads back the index documents on a collection, used by the
// report to confirm what the planner actually built.
func ListIndexes(ctx context.Context, coll *mongo.Collection) ([]db.IndexDocument, error) {
	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error listing indexes")
	}
	defer cursor.Close(ctx)

	var indexes []db.IndexDocument
	for cursor.Next(ctx) {
		var index db.IndexDocument
		if err := cursor.Decode(&index); err != nil {
			return nil, errors.Wrap(err, "error decoding index document")
		}
		indexes = append(indexes, index)
	}
	return indexes, cursor.Err()
}
