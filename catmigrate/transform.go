// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/meridian-labs/catalog-migrate/common/util"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlaceholderImage is the primary-image fallback written when a legacy
// document carries no usable image reference.
const PlaceholderImage = "/images/placeholder-product.jpg"

const (
	// DefaultCarat replaces any carat value outside the accepted range.
	DefaultCarat = 1.0
	// MaxCarat is the upper bound of the accepted carat range.
	MaxCarat = 20.0

	// DefaultSubcategory is written when the source has no subcategory.
	DefaultSubcategory = "accessories"
	// DefaultCurrency is written when the source pricing has no currency.
	DefaultCurrency = "USD"
	// DefaultMetalType is the metal enum fallback for unknown source values.
	DefaultMetalType = "silver"
	// CategoryFallback is the catch-all category for unmapped source values.
	CategoryFallback = "jewelry"
	// SlugFallback is the slug written when the product name yields nothing.
	SlugFallback = "product"

	// MaxTags caps the generated metadata.tags list.
	MaxTags = 5

	// newArrivalWindow is how far back createdAt may be for a product to
	// still count as a new arrival.
	newArrivalWindow = 30 * 24 * time.Hour
)

// ProductListDTO is the normalized document shape written to the shadow
// collection. Every top-level field is always present except stone and
// creator, which are omitted when the source has no gemstones or no
// creator profile.
type ProductListDTO struct {
	ID            interface{}   `bson:"_id" json:"_id"`
	Name          string        `bson:"name" json:"name"`
	Description   string        `bson:"description" json:"description"`
	Category      string        `bson:"category" json:"category"`
	Subcategory   string        `bson:"subcategory" json:"subcategory"`
	Slug          string        `bson:"slug" json:"slug"`
	PrimaryImage  string        `bson:"primaryImage" json:"primaryImage"`
	Pricing       PricingInfo   `bson:"pricing" json:"pricing"`
	Inventory     InventoryInfo `bson:"inventory" json:"inventory"`
	Metadata      MetadataInfo  `bson:"metadata" json:"metadata"`
	MaterialSpecs MaterialSpecs `bson:"materialSpecs" json:"materialSpecs"`
	Creator       *CreatorInfo  `bson:"creator,omitempty" json:"creator,omitempty"`
}

type PricingInfo struct {
	BasePrice float64 `bson:"basePrice" json:"basePrice"`
	Currency  string  `bson:"currency" json:"currency"`
}

type InventoryInfo struct {
	Available bool  `bson:"available" json:"available"`
	Quantity  int64 `bson:"quantity" json:"quantity"`
}

type MetadataInfo struct {
	Featured   bool     `bson:"featured" json:"featured"`
	Bestseller bool     `bson:"bestseller" json:"bestseller"`
	NewArrival bool     `bson:"newArrival" json:"newArrival"`
	Tags       []string `bson:"tags" json:"tags"`
}

type MaterialSpecs struct {
	Metal MetalSpec  `bson:"metal" json:"metal"`
	Stone *StoneSpec `bson:"stone,omitempty" json:"stone,omitempty"`
}

type MetalSpec struct {
	Type           string         `bson:"type" json:"type"`
	Purity         string         `bson:"purity" json:"purity"`
	Finish         string         `bson:"finish" json:"finish"`
	Sustainability Sustainability `bson:"sustainability" json:"sustainability"`
}

type StoneSpec struct {
	Type           string         `bson:"type" json:"type"`
	Carat          float64        `bson:"carat" json:"carat"`
	Cut            string         `bson:"cut" json:"cut"`
	Clarity        string         `bson:"clarity" json:"clarity"`
	Color          string         `bson:"color" json:"color"`
	Certification  string         `bson:"certification" json:"certification"`
	Sustainability Sustainability `bson:"sustainability" json:"sustainability"`
}

type Sustainability struct {
	Recycled         bool `bson:"recycled" json:"recycled"`
	EthicallySourced bool `bson:"ethicallySourced" json:"ethicallySourced"`
}

type CreatorInfo struct {
	Handle string `bson:"handle" json:"handle"`
	Name   string `bson:"name" json:"name"`
}

// TransformError marks a document that could not be converted. It carries
// the source identifier so failures can be reported per document without
// stopping the batch.
type TransformError struct {
	DocID interface{}
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("error transforming document %v: %v", e.DocID, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// MetalTypes is the fixed enum of acceptable materialSpecs.metal.type
// values in the target schema.
var MetalTypes = []string{
	"14k-gold",
	"14k-white-gold",
	"14k-rose-gold",
	"platinum",
	"silver",
	"titanium",
}

// Categories is the fixed enum of acceptable category values in the target
// schema.
var Categories = []string{"rings", "necklaces", "earrings", "bracelets", "jewelry"}

// metalTypeMap maps free-form source metal strings onto the target enum.
// Lookups are case-insensitive; anything absent falls back to silver.
var metalTypeMap = map[string]string{
	"gold":            "14k-gold",
	"yellow-gold":     "14k-gold",
	"14k-gold":        "14k-gold",
	"18k-gold":        "14k-gold",
	"white-gold":      "14k-white-gold",
	"14k-white-gold":  "14k-white-gold",
	"rose-gold":       "14k-rose-gold",
	"14k-rose-gold":   "14k-rose-gold",
	"platinum":        "platinum",
	"silver":          "silver",
	"sterling-silver": "silver",
	"titanium":        "titanium",
}

// stoneTypeMap normalizes source gemstone types. Unmapped values pass
// through lowercased.
var stoneTypeMap = map[string]string{
	"other": "moissanite",
}

// categoryMap maps source category strings, singular or plural, to the
// target enum.
var categoryMap = map[string]string{
	"ring":      "rings",
	"rings":     "rings",
	"necklace":  "necklaces",
	"necklaces": "necklaces",
	"earring":   "earrings",
	"earrings":  "earrings",
	"bracelet":  "bracelets",
	"bracelets": "bracelets",
}

// Transform converts one legacy product document into a ProductListDTO. It
// is pure: no I/O, and the current time is injected so output is
// reproducible under test. It never returns a partial DTO; any extraction
// failure comes back as a *TransformError carrying the source identifier.
func Transform(legacy *LegacyProduct, now time.Time) (dto *ProductListDTO, err error) {
	defer func() {
		if r := recover(); r != nil {
			dto = nil
			err = &TransformError{DocID: legacy.ID, Err: fmt.Errorf("%v", r)}
		}
	}()

	name := legacy.Name
	category := normalizeCategory(legacy.Category)
	metal := extractMetal(legacy.Customization)
	stone := extractStone(legacy.Customization)

	dto = &ProductListDTO{
		ID:           legacy.ID,
		Name:         name,
		Description:  legacy.Description,
		Category:     category,
		Subcategory:  firstNonEmpty(legacy.Subcategory, DefaultSubcategory),
		Slug:         resolveSlug(legacy.SEO, name),
		PrimaryImage: resolvePrimaryImage(legacy.Media, legacy.Images),
		Pricing:      extractPricing(legacy),
		Inventory:    extractInventory(legacy.Inventory),
		Metadata:     extractMetadata(legacy.Metadata, legacy.CreatedAt, metal, stone, category, now),
		MaterialSpecs: MaterialSpecs{
			Metal: metal,
			Stone: stone,
		},
	}
	if legacy.Creator != nil && legacy.Creator.Profile != nil {
		dto.Creator = &CreatorInfo{
			Handle: legacy.Creator.Profile.Handle,
			Name:   legacy.Creator.Profile.Name,
		}
	}
	return dto, nil
}

// MapMetalType maps a free-form source metal string onto the fixed target
// enum, defaulting to silver.
func MapMetalType(source string) string {
	if mapped, ok := metalTypeMap[strings.ToLower(strings.TrimSpace(source))]; ok {
		return mapped
	}
	return DefaultMetalType
}

// MapStoneType normalizes a source gemstone type and applies the "lab-"
// prefix for lab-grown stones.
func MapStoneType(source string, labGrown bool) string {
	stone := strings.ToLower(strings.TrimSpace(source))
	if mapped, ok := stoneTypeMap[stone]; ok {
		stone = mapped
	}
	if labGrown && !strings.HasPrefix(stone, "lab-") {
		return "lab-" + stone
	}
	return stone
}

// ClampCarat coerces a source carat value to a number and clamps it into
// (0, MaxCarat], substituting DefaultCarat for anything unusable.
func ClampCarat(source interface{}) float64 {
	carat, ok := util.ToFloat64(source)
	if !ok || carat <= 0 || carat > MaxCarat {
		return DefaultCarat
	}
	return carat
}

func normalizeCategory(source string) string {
	if mapped, ok := categoryMap[strings.ToLower(strings.TrimSpace(source))]; ok {
		return mapped
	}
	return CategoryFallback
}

var (
	slugStripRe    = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaceRe    = regexp.MustCompile(`\s+`)
	slugCollapseRe = regexp.MustCompile(`-+`)
)

// GenerateSlug derives a URL-safe slug from a product name. An empty or
// fully-stripped name yields the literal fallback "product".
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = slugStripRe.ReplaceAllString(slug, "")
	slug = slugSpaceRe.ReplaceAllString(slug, "-")
	slug = slugCollapseRe.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return SlugFallback
	}
	return slug
}

func resolveSlug(seo *LegacySEO, name string) string {
	if seo != nil && seo.Slug != "" {
		return seo.Slug
	}
	return GenerateSlug(name)
}

// resolvePrimaryImage picks an image in resolution order: media.primary,
// the image entry flagged isPrimary, the first image entry, then the
// placeholder path. The legacy images field is either a plain array of
// strings/objects or an object with a primary key.
func resolvePrimaryImage(media *LegacyMedia, images interface{}) string {
	if media != nil && media.Primary != "" {
		return media.Primary
	}

	switch imgs := images.(type) {
	case []interface{}:
		var first string
		for _, entry := range imgs {
			url, isPrimary := imageEntry(entry)
			if url == "" {
				continue
			}
			if isPrimary {
				return url
			}
			if first == "" {
				first = url
			}
		}
		if first != "" {
			return first
		}
	case primitive.A:
		return resolvePrimaryImage(media, []interface{}(imgs))
	case map[string]interface{}:
		if url, ok := imgs["primary"].(string); ok && url != "" {
			return url
		}
	case primitive.M:
		if url, ok := imgs["primary"].(string); ok && url != "" {
			return url
		}
	case primitive.D:
		return resolvePrimaryImage(media, primitive.M(imgs.Map()))
	}

	return PlaceholderImage
}

func imageEntry(entry interface{}) (url string, isPrimary bool) {
	switch img := entry.(type) {
	case string:
		return img, false
	case map[string]interface{}:
		url, _ = img["url"].(string)
		return url, util.IsTruthy(img["isPrimary"])
	case primitive.M:
		url, _ = img["url"].(string)
		return url, util.IsTruthy(img["isPrimary"])
	case primitive.D:
		return imageEntry(img.Map())
	}
	return "", false
}

func extractPricing(legacy *LegacyProduct) PricingInfo {
	pricing := PricingInfo{Currency: DefaultCurrency}
	var raw interface{}
	if legacy.Pricing != nil {
		raw = legacy.Pricing.BasePrice
		if legacy.Pricing.Currency != "" {
			pricing.Currency = legacy.Pricing.Currency
		}
	}
	if raw == nil {
		raw = legacy.BasePrice
	}
	if price, ok := util.ToFloat64(raw); ok && price > 0 {
		pricing.BasePrice = price
	}
	return pricing
}

func extractInventory(inv *LegacyInventory) InventoryInfo {
	if inv == nil {
		return InventoryInfo{}
	}
	quantity, _ := util.ToInt64(inv.Quantity)
	available := util.IsTruthy(inv.Available)
	if inv.Available == nil {
		available = quantity > 0
	}
	return InventoryInfo{Available: available, Quantity: quantity}
}

func extractMetal(custom *LegacyCustomization) MetalSpec {
	metal := MetalSpec{Type: DefaultMetalType}
	if custom == nil || len(custom.Materials) == 0 {
		return metal
	}
	material := custom.Materials[0]
	metal.Type = MapMetalType(material.Type)
	metal.Purity = material.Purity
	metal.Finish = material.Finish
	metal.Sustainability = extractSustainability(material.Sustainability)
	return metal
}

func extractStone(custom *LegacyCustomization) *StoneSpec {
	if custom == nil || len(custom.Gemstones) == 0 {
		return nil
	}
	gem := custom.Gemstones[0]
	stone := &StoneSpec{
		Type:           MapStoneType(gem.Type, util.IsTruthy(gem.IsLabGrown)),
		Carat:          ClampCarat(gem.Carat),
		Cut:            firstNonEmpty(gem.Cut, "brilliant"),
		Clarity:        firstNonEmpty(gem.Clarity, "VS1"),
		Color:          firstNonEmpty(gem.Color, "colorless"),
		Sustainability: extractSustainability(gem.Sustainability),
	}
	if gem.Certification != nil {
		stone.Certification = gem.Certification.Agency
	}
	if stone.Certification == "" {
		stone.Certification = "none"
	}
	return stone
}

func extractSustainability(s *LegacySustainability) Sustainability {
	if s == nil {
		return Sustainability{}
	}
	return Sustainability{
		Recycled:         util.IsTruthy(s.Recycled) || util.IsTruthy(s.LabGrown),
		EthicallySourced: util.IsTruthy(s.EthicallySourced) || util.IsTruthy(s.ConflictFree),
	}
}

func extractMetadata(
	meta *LegacyMetadata,
	createdAt interface{},
	metal MetalSpec,
	stone *StoneSpec,
	category string,
	now time.Time,
) MetadataInfo {
	info := MetadataInfo{}
	if meta != nil {
		info.Featured = util.IsTruthy(meta.Featured)
		info.Bestseller = util.IsTruthy(meta.Bestseller)
		info.NewArrival = util.IsTruthy(meta.NewArrival)
	}
	if !info.NewArrival {
		if created, ok := coerceTime(createdAt); ok {
			info.NewArrival = now.Sub(created) <= newArrivalWindow && !created.After(now)
		}
	}

	tags := []string{metal.Type}
	if stone != nil {
		tags = append(tags, stone.Type)
	}
	tags = append(tags, category)
	if meta != nil {
		for _, t := range meta.Tags {
			if s, ok := t.(string); ok && s != "" {
				tags = append(tags, s)
			}
		}
	}
	tags = lo.Uniq(tags)
	if len(tags) > MaxTags {
		tags = tags[:MaxTags]
	}
	info.Tags = tags
	return info
}

func coerceTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

func firstNonEmpty(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
