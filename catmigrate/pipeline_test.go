// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func rawDocument(t *testing.T, doc interface{}) bson.Raw {
	data, err := bson.Marshal(doc)
	require.NoError(t, err)
	return bson.Raw(data)
}

func TestTransformRawPartialFailure(t *testing.T) {
	// A batch of 25 where one document cannot be decoded: the rest must
	// transform, and the failure must carry the bad document's identifier.
	docs := make([]bson.Raw, 0, 25)
	for i := 1; i <= 25; i++ {
		if i == 13 {
			// name holding a subdocument does not decode into a string
			docs = append(docs, rawDocument(t, bson.M{
				"_id":  "prod-13",
				"name": bson.M{"nested": "garbage"},
			}))
			continue
		}
		docs = append(docs, rawDocument(t, bson.M{
			"_id":      fmt.Sprintf("prod-%d", i),
			"name":     fmt.Sprintf("Product %d", i),
			"category": "rings",
		}))
	}

	var dtos []*ProductListDTO
	var failures []*TransformError
	for _, raw := range docs {
		dto, err := transformRaw(raw, transformNow)
		if err != nil {
			failures = append(failures, err.(*TransformError))
			continue
		}
		dtos = append(dtos, dto)
	}

	assert.Len(t, dtos, 24)
	require.Len(t, failures, 1)
	assert.Contains(t, fmt.Sprintf("%v", failures[0].DocID), "prod-13")
	assert.NotEmpty(t, failures[0].Error())
}

func TestTransformRawAllValid(t *testing.T) {
	docs := []bson.Raw{
		rawDocument(t, bson.M{"_id": "a", "name": "A", "category": "rings"}),
		rawDocument(t, bson.M{"_id": "b"}),
	}

	for _, raw := range docs {
		dto, err := transformRaw(raw, transformNow)
		require.NoError(t, err)
		assert.NoError(t, ValidateDTO(dto))
	}
}

func TestTransformRawMatchesTransform(t *testing.T) {
	// Going through raw bytes must produce the same DTO as transforming
	// the decoded struct directly.
	legacy := &LegacyProduct{
		ID:       "prod-1",
		Name:     "Solaris Aura Ring",
		Category: "rings",
		Pricing:  &LegacyPricing{BasePrice: 1200.0},
		Customization: &LegacyCustomization{
			Materials: []LegacyMaterial{{Type: "yellow-gold", Purity: "14k"}},
			Gemstones: []LegacyGemstone{{Type: "diamond", Carat: 1.5}},
		},
	}
	want, err := Transform(legacy, transformNow)
	require.NoError(t, err)

	raw := rawDocument(t, legacy)
	got, err := transformRaw(raw, transformNow)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("transformRaw mismatch (-want +got):\n%s", diff)
	}
}

func TestSuccessRateFloor(t *testing.T) {
	// 950 of 1000 transformed and inserted is exactly at the default 95%
	// floor and must pass; 940 must fail.
	atFloor := statsFor(1000, 950, 950)
	assert.Equal(t, 95.0, atFloor.SuccessRate)
	assert.True(t, atFloor.MeetsFloor(95.0))

	belowFloor := statsFor(1000, 940, 940)
	assert.False(t, belowFloor.MeetsFloor(95.0))
}

func TestInsertFailuresCountAgainstFloor(t *testing.T) {
	// Every document transformed cleanly but the shadow collection lost
	// its writes partway through. The floor has to catch that: a high
	// transform rate alone must never clear the gate.
	outage := statsFor(1000, 1000, 0)
	assert.Equal(t, 100.0, outage.SuccessRate)
	assert.Equal(t, 0.0, outage.InsertedRate)
	assert.False(t, outage.MeetsFloor(95.0))

	partial := statsFor(1000, 1000, 940)
	assert.False(t, partial.MeetsFloor(95.0))

	healthy := statsFor(1000, 960, 955)
	assert.True(t, healthy.MeetsFloor(95.0))
}

func TestPipelineStatsSuccessRate(t *testing.T) {
	stats := statsFor(200, 190, 185)
	assert.Equal(t, 95.0, stats.SuccessRate)
	assert.Equal(t, 92.5, stats.InsertedRate)

	empty := &transformPipeline{}
	assert.Equal(t, 0.0, empty.stats().SuccessRate)
	assert.Equal(t, 0.0, empty.stats().InsertedRate)
}

func statsFor(sourced, transformed, inserted int64) *TransformStats {
	pipeline := &transformPipeline{
		sourced:     sourced,
		transformed: transformed,
		inserted:    inserted,
	}
	return pipeline.stats()
}
