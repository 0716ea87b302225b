// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

// LegacyProduct models a document from the legacy catalog collection. Every
// field beyond _id is optional: years of ad-hoc writes mean any of them can
// be missing, null, or hold an unexpected type, so scalars that need type
// coercion are decoded as interface{} and normalized during transformation.
type LegacyProduct struct {
	ID            interface{}          `bson:"_id"`
	Name          string               `bson:"name,omitempty"`
	Description   string               `bson:"description,omitempty"`
	Category      string               `bson:"category,omitempty"`
	Subcategory   string               `bson:"subcategory,omitempty"`
	BasePrice     interface{}          `bson:"basePrice,omitempty"`
	Pricing       *LegacyPricing       `bson:"pricing,omitempty"`
	Inventory     *LegacyInventory     `bson:"inventory,omitempty"`
	Metadata      *LegacyMetadata      `bson:"metadata,omitempty"`
	Media         *LegacyMedia         `bson:"media,omitempty"`
	Images        interface{}          `bson:"images,omitempty"`
	SEO           *LegacySEO           `bson:"seo,omitempty"`
	Customization *LegacyCustomization `bson:"customization,omitempty"`
	Creator       *LegacyCreator       `bson:"creator,omitempty"`
	CreatedAt     interface{}          `bson:"createdAt,omitempty"`
	UpdatedAt     interface{}          `bson:"updatedAt,omitempty"`
}

type LegacyPricing struct {
	BasePrice interface{} `bson:"basePrice,omitempty"`
	Currency  string      `bson:"currency,omitempty"`
}

type LegacyInventory struct {
	Available interface{} `bson:"available,omitempty"`
	Quantity  interface{} `bson:"quantity,omitempty"`
}

type LegacyMetadata struct {
	Featured   interface{}   `bson:"featured,omitempty"`
	Bestseller interface{}   `bson:"bestseller,omitempty"`
	NewArrival interface{}   `bson:"newArrival,omitempty"`
	Tags       []interface{} `bson:"tags,omitempty"`
}

type LegacyMedia struct {
	Primary string        `bson:"primary,omitempty"`
	Gallery []interface{} `bson:"gallery,omitempty"`
}

type LegacySEO struct {
	Slug            string `bson:"slug,omitempty"`
	MetaTitle       string `bson:"metaTitle,omitempty"`
	MetaDescription string `bson:"metaDescription,omitempty"`
}

type LegacyCustomization struct {
	Materials []LegacyMaterial `bson:"materials,omitempty"`
	Gemstones []LegacyGemstone `bson:"gemstones,omitempty"`
}

type LegacyMaterial struct {
	Type           string                `bson:"type,omitempty"`
	Purity         string                `bson:"purity,omitempty"`
	Finish         string                `bson:"finish,omitempty"`
	Sustainability *LegacySustainability `bson:"sustainability,omitempty"`
}

type LegacyGemstone struct {
	Type           string                `bson:"type,omitempty"`
	Carat          interface{}           `bson:"carat,omitempty"`
	Cut            string                `bson:"cut,omitempty"`
	Clarity        string                `bson:"clarity,omitempty"`
	Color          string                `bson:"color,omitempty"`
	IsLabGrown     interface{}           `bson:"isLabGrown,omitempty"`
	Certification  *LegacyCertification  `bson:"certification,omitempty"`
	Sustainability *LegacySustainability `bson:"sustainability,omitempty"`
}

type LegacyCertification struct {
	Agency string `bson:"agency,omitempty"`
	Number string `bson:"number,omitempty"`
}

type LegacySustainability struct {
	Recycled         interface{} `bson:"recycled,omitempty"`
	EthicallySourced interface{} `bson:"ethicallySourced,omitempty"`
	LabGrown         interface{} `bson:"labGrown,omitempty"`
	ConflictFree     interface{} `bson:"conflictFree,omitempty"`
}

type LegacyCreator struct {
	Profile *LegacyCreatorProfile `bson:"profile,omitempty"`
}

type LegacyCreatorProfile struct {
	Handle string `bson:"handle,omitempty"`
	Name   string `bson:"name,omitempty"`
}
