// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"fmt"
	"math"

	"github.com/meridian-labs/catalog-migrate/common/util"
	"go.mongodb.org/mongo-driver/bson"
)

// RequiredFields are the top-level keys every transformed document must
// carry. Stone and creator are deliberately absent: they are optional in
// the target schema.
var RequiredFields = []string{
	"_id",
	"name",
	"description",
	"category",
	"subcategory",
	"slug",
	"primaryImage",
	"pricing",
	"inventory",
	"metadata",
	"materialSpecs",
}

// CriticalFields are the keys that must be non-null on every live document;
// the edge-case verification suite scans the whole collection for them.
var CriticalFields = []string{"name", "category", "slug", "primaryImage", "pricing"}

// SchemaError describes a single validation failure on a transformed
// document.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation on field %q: %s", e.Field, e.Reason)
}

// ValidateDTO checks the machine-enforced invariants of a transformed
// document: base price is a non-negative number and the metal type is
// non-empty. Field presence is guaranteed by the struct shape, so only
// value invariants need checking here.
func ValidateDTO(dto *ProductListDTO) error {
	if dto == nil {
		return &SchemaError{Field: "_id", Reason: "document is nil"}
	}
	if math.IsNaN(dto.Pricing.BasePrice) || dto.Pricing.BasePrice < 0 {
		return &SchemaError{
			Field:  "pricing.basePrice",
			Reason: fmt.Sprintf("must be a non-negative number, got %v", dto.Pricing.BasePrice),
		}
	}
	if dto.MaterialSpecs.Metal.Type == "" {
		return &SchemaError{Field: "materialSpecs.metal.type", Reason: "must be non-empty"}
	}
	return nil
}

// ValidateDocument checks a raw document, as read back from a collection,
// against the target schema contract. Used by the verifier, where documents
// arrive as untyped maps rather than DTO structs.
func ValidateDocument(doc bson.M) error {
	for _, field := range RequiredFields {
		value, ok := doc[field]
		if !ok || value == nil {
			return &SchemaError{Field: field, Reason: "missing required field"}
		}
	}

	pricing, ok := asDocument(doc["pricing"])
	if !ok {
		return &SchemaError{Field: "pricing", Reason: "must be a document"}
	}
	price, ok := util.ToFloat64(pricing["basePrice"])
	if !ok || math.IsNaN(price) || price < 0 {
		return &SchemaError{
			Field:  "pricing.basePrice",
			Reason: fmt.Sprintf("must be a non-negative number, got %v", pricing["basePrice"]),
		}
	}

	specs, ok := asDocument(doc["materialSpecs"])
	if !ok {
		return &SchemaError{Field: "materialSpecs", Reason: "must be a document"}
	}
	metal, ok := asDocument(specs["metal"])
	if !ok {
		return &SchemaError{Field: "materialSpecs.metal", Reason: "must be a document"}
	}
	if metalType, _ := metal["type"].(string); metalType == "" {
		return &SchemaError{Field: "materialSpecs.metal.type", Reason: "must be non-empty"}
	}

	return nil
}

func asDocument(v interface{}) (bson.M, bool) {
	switch doc := v.(type) {
	case bson.M:
		return doc, true
	case map[string]interface{}:
		return doc, true
	case bson.D:
		return doc.Map(), true
	}
	return nil, false
}
