// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.mongodb.org/mongo-driver/bson"
)

var transformNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func TestTransformerTotality(t *testing.T) {
	Convey("With a legacy document missing every optional substructure", t, func() {
		legacy := &LegacyProduct{ID: "prod-1"}

		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)

		Convey("the output satisfies every schema invariant", func() {
			So(ValidateDTO(dto), ShouldBeNil)
		})

		Convey("defaults are applied everywhere", func() {
			So(dto.MaterialSpecs.Metal.Type, ShouldEqual, "silver")
			So(dto.MaterialSpecs.Stone, ShouldBeNil)
			So(dto.Pricing.BasePrice, ShouldEqual, 0)
			So(dto.Pricing.Currency, ShouldEqual, "USD")
			So(dto.PrimaryImage, ShouldEqual, PlaceholderImage)
			So(dto.Category, ShouldEqual, "jewelry")
			So(dto.Subcategory, ShouldEqual, "accessories")
			So(dto.Slug, ShouldEqual, "product")
			So(dto.Inventory.Available, ShouldBeFalse)
			So(dto.Creator, ShouldBeNil)
		})
	})
}

func TestCaratClamp(t *testing.T) {
	Convey("Carat values outside (0, 20] clamp to the default", t, func() {
		So(ClampCarat(0), ShouldEqual, 1.0)
		So(ClampCarat(-5), ShouldEqual, 1.0)
		So(ClampCarat(20.0001), ShouldEqual, 1.0)
		So(ClampCarat("abc"), ShouldEqual, 1.0)
		So(ClampCarat(nil), ShouldEqual, 1.0)
	})

	Convey("Carat values inside the range pass through unchanged", t, func() {
		So(ClampCarat(20), ShouldEqual, 20.0)
		So(ClampCarat(0.01), ShouldEqual, 0.01)
		So(ClampCarat(2.5), ShouldEqual, 2.5)
		So(ClampCarat(int32(3)), ShouldEqual, 3.0)
	})
}

func TestCategoryNormalization(t *testing.T) {
	Convey("Known categories map case-insensitively, singular or plural", t, func() {
		So(normalizeCategory("Ring"), ShouldEqual, "rings")
		So(normalizeCategory("RINGS"), ShouldEqual, "rings")
		So(normalizeCategory("ring"), ShouldEqual, "rings")
		So(normalizeCategory("necklace"), ShouldEqual, "necklaces")
		So(normalizeCategory("Earrings"), ShouldEqual, "earrings")
		So(normalizeCategory("bracelet"), ShouldEqual, "bracelets")
	})

	Convey("Anything else collapses to the catch-all", t, func() {
		So(normalizeCategory("watch"), ShouldEqual, "jewelry")
		So(normalizeCategory(""), ShouldEqual, "jewelry")
		So(normalizeCategory("pendant"), ShouldEqual, "jewelry")
	})
}

func TestGenerateSlug(t *testing.T) {
	Convey("Slug generation is deterministic", t, func() {
		So(GenerateSlug("Solaris Aura Ring!!"), ShouldEqual, "solaris-aura-ring")
		So(GenerateSlug(""), ShouldEqual, "product")
		So(GenerateSlug("--Multi   Space--"), ShouldEqual, "multi-space")
		So(GenerateSlug("!!!"), ShouldEqual, "product")
		So(GenerateSlug("Eterna Band"), ShouldEqual, "eterna-band")
	})

	Convey("An existing seo slug wins over a generated one", t, func() {
		legacy := &LegacyProduct{
			ID:   "prod-2",
			Name: "Solaris Aura Ring",
			SEO:  &LegacySEO{Slug: "solaris-custom"},
		}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.Slug, ShouldEqual, "solaris-custom")
	})
}

func TestMetalTypeMapping(t *testing.T) {
	Convey("Free-form metal strings map onto the fixed enum", t, func() {
		So(MapMetalType("yellow-gold"), ShouldEqual, "14k-gold")
		So(MapMetalType("Sterling-Silver"), ShouldEqual, "silver")
		So(MapMetalType("PLATINUM"), ShouldEqual, "platinum")
		So(MapMetalType("white-gold"), ShouldEqual, "14k-white-gold")
		So(MapMetalType("rose-gold"), ShouldEqual, "14k-rose-gold")
		So(MapMetalType("titanium"), ShouldEqual, "titanium")
	})

	Convey("Unknown and missing values default to silver", t, func() {
		So(MapMetalType("unobtanium"), ShouldEqual, "silver")
		So(MapMetalType(""), ShouldEqual, "silver")
	})
}

func TestStoneTypeMapping(t *testing.T) {
	Convey("Stone synonyms normalize and lab-grown stones get the prefix", t, func() {
		So(MapStoneType("other", false), ShouldEqual, "moissanite")
		So(MapStoneType("Diamond", false), ShouldEqual, "diamond")
		So(MapStoneType("diamond", true), ShouldEqual, "lab-diamond")
		So(MapStoneType("lab-diamond", true), ShouldEqual, "lab-diamond")
	})

	Convey("A document without gemstones omits the stone key entirely", t, func() {
		legacy := &LegacyProduct{
			ID: "prod-3",
			Customization: &LegacyCustomization{
				Materials: []LegacyMaterial{{Type: "platinum"}},
			},
		}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.MaterialSpecs.Metal.Type, ShouldEqual, "platinum")
		So(dto.MaterialSpecs.Stone, ShouldBeNil)
	})
}

func TestTagGeneration(t *testing.T) {
	Convey("Tags collect metal, stone, category, and source tags", t, func() {
		legacy := &LegacyProduct{
			ID:       "prod-4",
			Name:     "Eterna Band",
			Category: "rings",
			Customization: &LegacyCustomization{
				Materials: []LegacyMaterial{{Type: "yellow-gold"}},
				Gemstones: []LegacyGemstone{{Type: "diamond", Carat: 1.5}},
			},
			Metadata: &LegacyMetadata{
				Tags: []interface{}{"wedding", "classic", "heirloom"},
			},
		}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)

		Convey("first-seen order is preserved and the list caps at five", func() {
			So(dto.Metadata.Tags, ShouldResemble,
				[]string{"14k-gold", "diamond", "rings", "wedding", "classic"})
		})
	})

	Convey("Duplicates are removed keeping the first occurrence", t, func() {
		legacy := &LegacyProduct{
			ID:       "prod-5",
			Category: "rings",
			Customization: &LegacyCustomization{
				Materials: []LegacyMaterial{{Type: "silver"}},
			},
			Metadata: &LegacyMetadata{
				Tags: []interface{}{"silver", "rings", "gift"},
			},
		}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.Metadata.Tags, ShouldResemble, []string{"silver", "rings", "gift"})
	})
}

func TestPrimaryImageResolution(t *testing.T) {
	Convey("media.primary wins when present", t, func() {
		legacy := &LegacyProduct{
			ID:     "prod-6",
			Media:  &LegacyMedia{Primary: "/img/a.jpg"},
			Images: []interface{}{"/img/b.jpg"},
		}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.PrimaryImage, ShouldEqual, "/img/a.jpg")
	})

	Convey("the entry flagged isPrimary wins over the first entry", t, func() {
		legacy := &LegacyProduct{
			ID: "prod-7",
			Images: []interface{}{
				map[string]interface{}{"url": "/img/first.jpg"},
				map[string]interface{}{"url": "/img/primary.jpg", "isPrimary": true},
			},
		}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.PrimaryImage, ShouldEqual, "/img/primary.jpg")
	})

	Convey("the first entry is used when nothing is flagged", t, func() {
		legacy := &LegacyProduct{
			ID:     "prod-8",
			Images: []interface{}{"/img/first.jpg", "/img/second.jpg"},
		}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.PrimaryImage, ShouldEqual, "/img/first.jpg")
	})

	Convey("an images object with a primary key is honored", t, func() {
		legacy := &LegacyProduct{
			ID:     "prod-9",
			Images: map[string]interface{}{"primary": "/img/obj.jpg"},
		}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.PrimaryImage, ShouldEqual, "/img/obj.jpg")
	})

	Convey("an images object survives a BSON decode round trip", t, func() {
		// decoding into an interface{} field yields primitive.D, not a map
		raw, err := bson.Marshal(bson.M{
			"_id":    "prod-11",
			"images": bson.M{"primary": "/img/obj.jpg"},
		})
		So(err, ShouldBeNil)

		var legacy LegacyProduct
		So(bson.Unmarshal(raw, &legacy), ShouldBeNil)

		dto, err := Transform(&legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.PrimaryImage, ShouldEqual, "/img/obj.jpg")
	})

	Convey("everything missing falls back to the placeholder", t, func() {
		dto, err := Transform(&LegacyProduct{ID: "prod-10"}, transformNow)
		So(err, ShouldBeNil)
		So(dto.PrimaryImage, ShouldEqual, PlaceholderImage)
	})
}

func TestNewArrivalInference(t *testing.T) {
	Convey("Explicit newArrival flag is honored", t, func() {
		legacy := &LegacyProduct{
			ID:       "prod-11",
			Metadata: &LegacyMetadata{NewArrival: true},
		}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.Metadata.NewArrival, ShouldBeTrue)
	})

	Convey("createdAt within 30 days of the injected clock counts", t, func() {
		legacy := &LegacyProduct{
			ID:        "prod-12",
			CreatedAt: transformNow.Add(-10 * 24 * time.Hour),
		}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.Metadata.NewArrival, ShouldBeTrue)
	})

	Convey("older products are not new arrivals", t, func() {
		legacy := &LegacyProduct{
			ID:        "prod-13",
			CreatedAt: transformNow.Add(-45 * 24 * time.Hour),
		}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.Metadata.NewArrival, ShouldBeFalse)
	})
}

func TestPricingExtraction(t *testing.T) {
	Convey("Nested pricing wins over the flat field", t, func() {
		legacy := &LegacyProduct{
			ID:        "prod-14",
			BasePrice: 100.0,
			Pricing:   &LegacyPricing{BasePrice: 250.0, Currency: "EUR"},
		}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.Pricing.BasePrice, ShouldEqual, 250.0)
		So(dto.Pricing.Currency, ShouldEqual, "EUR")
	})

	Convey("The flat basePrice is used when pricing is absent", t, func() {
		legacy := &LegacyProduct{ID: "prod-15", BasePrice: int32(175)}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.Pricing.BasePrice, ShouldEqual, 175.0)
	})

	Convey("Negative prices default to zero", t, func() {
		legacy := &LegacyProduct{ID: "prod-16", BasePrice: -50.0}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.Pricing.BasePrice, ShouldEqual, 0.0)
		So(ValidateDTO(dto), ShouldBeNil)
	})
}

func TestCreatorMapping(t *testing.T) {
	Convey("A creator profile carries over handle and name", t, func() {
		legacy := &LegacyProduct{
			ID: "prod-17",
			Creator: &LegacyCreator{
				Profile: &LegacyCreatorProfile{Handle: "atelier-v", Name: "Atelier V"},
			},
		}
		dto, err := Transform(legacy, transformNow)
		So(err, ShouldBeNil)
		So(dto.Creator, ShouldNotBeNil)
		So(dto.Creator.Handle, ShouldEqual, "atelier-v")
		So(dto.Creator.Name, ShouldEqual, "Atelier V")
	})
}
