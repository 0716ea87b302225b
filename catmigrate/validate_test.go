// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func validDocument() bson.M {
	return bson.M{
		"_id":          "prod-1",
		"name":         "Solaris Aura Ring",
		"description":  "A ring.",
		"category":     "rings",
		"subcategory":  "accessories",
		"slug":         "solaris-aura-ring",
		"primaryImage": "/img/a.jpg",
		"pricing":      bson.M{"basePrice": 1200.0, "currency": "USD"},
		"inventory":    bson.M{"available": true, "quantity": int64(3)},
		"metadata":     bson.M{"featured": false, "bestseller": false, "newArrival": false, "tags": bson.A{}},
		"materialSpecs": bson.M{
			"metal": bson.M{"type": "14k-gold", "purity": "14k", "finish": "polished"},
		},
	}
}

func TestValidateDocument(t *testing.T) {
	t.Run("a complete document passes", func(t *testing.T) {
		assert.NoError(t, ValidateDocument(validDocument()))
	})

	t.Run("every required field is enforced", func(t *testing.T) {
		for _, field := range RequiredFields {
			doc := validDocument()
			delete(doc, field)

			err := ValidateDocument(doc)
			require.Error(t, err, "expected a failure with %s missing", field)

			schemaErr, ok := err.(*SchemaError)
			require.True(t, ok)
			assert.Equal(t, field, schemaErr.Field)
		}
	})

	t.Run("a null required field counts as missing", func(t *testing.T) {
		doc := validDocument()
		doc["slug"] = nil
		assert.Error(t, ValidateDocument(doc))
	})

	t.Run("negative base price fails", func(t *testing.T) {
		doc := validDocument()
		doc["pricing"] = bson.M{"basePrice": -1.0}

		err := ValidateDocument(doc)
		require.Error(t, err)
		assert.Equal(t, "pricing.basePrice", err.(*SchemaError).Field)
	})

	t.Run("non-numeric base price fails", func(t *testing.T) {
		doc := validDocument()
		doc["pricing"] = bson.M{"basePrice": "free"}
		assert.Error(t, ValidateDocument(doc))
	})

	t.Run("empty metal type fails", func(t *testing.T) {
		doc := validDocument()
		doc["materialSpecs"] = bson.M{"metal": bson.M{"type": ""}}

		err := ValidateDocument(doc)
		require.Error(t, err)
		assert.Equal(t, "materialSpecs.metal.type", err.(*SchemaError).Field)
	})

	t.Run("bson.D subdocuments are accepted", func(t *testing.T) {
		doc := validDocument()
		doc["pricing"] = bson.D{{Key: "basePrice", Value: 10.0}}
		assert.NoError(t, ValidateDocument(doc))
	})
}

func TestValidateDTO(t *testing.T) {
	t.Run("a default-constructed transform output passes", func(t *testing.T) {
		dto, err := Transform(&LegacyProduct{ID: "prod-1"}, transformNow)
		require.NoError(t, err)
		assert.NoError(t, ValidateDTO(dto))
	})

	t.Run("negative price fails", func(t *testing.T) {
		dto := &ProductListDTO{
			Pricing:       PricingInfo{BasePrice: -0.01},
			MaterialSpecs: MaterialSpecs{Metal: MetalSpec{Type: "silver"}},
		}
		assert.Error(t, ValidateDTO(dto))
	})

	t.Run("NaN price fails", func(t *testing.T) {
		dto := &ProductListDTO{
			Pricing:       PricingInfo{BasePrice: math.NaN()},
			MaterialSpecs: MaterialSpecs{Metal: MetalSpec{Type: "silver"}},
		}
		assert.Error(t, ValidateDTO(dto))
	})

	t.Run("empty metal type fails", func(t *testing.T) {
		dto := &ProductListDTO{Pricing: PricingInfo{BasePrice: 10}}
		assert.Error(t, ValidateDTO(dto))
	})

	t.Run("nil document fails", func(t *testing.T) {
		assert.Error(t, ValidateDTO(nil))
	})
}
