// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"context"
	"fmt"
	"math"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/meridian-labs/catalog-migrate/common/db"
	"github.com/meridian-labs/catalog-migrate/common/log"
	"github.com/meridian-labs/catalog-migrate/common/util"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
)

// Verification thresholds. Each is the minimum rate (percent) a sampled
// check must reach for its suite to pass.
const (
	countRetentionThreshold   = 95.0
	identityMatchThreshold    = 98.0
	materialPresenceThreshold = 95.0
	caratMatchThreshold       = 90.0
	caratMatchTolerance       = 0.01
	perfComplianceThreshold   = 80.0
	pricingMatchThreshold     = 98.0
	pricingMatchTolerance     = 0.01
	availabilityThreshold     = 95.0

	// MaxCatalogPrice bounds plausible prices; anything above it in the
	// migrated collection is treated as corrupt.
	MaxCatalogPrice = 100000.0

	identitySampleSize = 50
	dtoSampleSize      = 20
	materialSampleSize = 100
	caratSampleSize    = 50
	pricingSampleSize  = 50
)

// VerificationSuite is the outcome of one independent test suite.
type VerificationSuite struct {
	Name    string   `json:"name"`
	Passed  int      `json:"passed"`
	Failed  int      `json:"failed"`
	Details []string `json:"details"`
}

func (s *VerificationSuite) pass(detail string) {
	s.Passed++
	s.Details = append(s.Details, detail)
}

func (s *VerificationSuite) fail(detail string) {
	s.Failed++
	s.Details = append(s.Details, "FAIL: "+detail)
}

// VerificationReport aggregates all suites. Overall success requires zero
// failed tests and zero critical issues.
type VerificationReport struct {
	Suites         []VerificationSuite `json:"suites"`
	CriticalIssues []string            `json:"criticalIssues"`
	Passed         bool                `json:"passed"`
}

var (
	metalEnum    = mapset.NewSet(MetalTypes...)
	categoryEnum = mapset.NewSet(Categories...)
)

// Verifier runs the integrity battery between a source collection and the
// migrated target collection.
type Verifier struct {
	SessionProvider *db.SessionProvider
	DB              string
	Source          string
	Target          string
	PerfConfig      PerfConfig
}

func (v *Verifier) sourceColl() *mongo.Collection {
	return v.SessionProvider.DB(v.DB).Collection(v.Source)
}

func (v *Verifier) targetColl() *mongo.Collection {
	return v.SessionProvider.DB(v.DB).Collection(v.Target)
}

// Run executes the five verification suites and merges their outcomes.
func (v *Verifier) Run(ctx context.Context) (*VerificationReport, error) {
	report := &VerificationReport{}

	suiteRunners := []func(context.Context) (VerificationSuite, error){
		v.verifyDataCompleteness,
		v.verifyMaterialSpecs,
		v.verifyPerformance,
		v.verifyBusinessLogic,
		v.verifyEdgeCases,
	}

	for _, run := range suiteRunners {
		suite, err := run(ctx)
		if err != nil {
			return nil, err
		}
		log.Logvf(log.Info, "verification suite %s: %d passed, %d failed",
			suite.Name, suite.Passed, suite.Failed)
		report.Suites = append(report.Suites, suite)
		for _, detail := range suite.Details {
			if suite.Failed > 0 && len(detail) > 5 && detail[:5] == "FAIL:" {
				report.CriticalIssues = append(report.CriticalIssues,
					fmt.Sprintf("%s: %s", suite.Name, detail[6:]))
			}
		}
	}

	report.Passed = len(report.CriticalIssues) == 0
	for _, suite := range report.Suites {
		if suite.Failed > 0 {
			report.Passed = false
		}
	}
	return report, nil
}

// ReadinessCheck validates the source collection before any mutation: it
// must exist, be non-empty, and its documents must be readable. It also
// logs field-population statistics so the operator can see how dirty the
// source data is before committing to a run.
func (v *Verifier) ReadinessCheck(ctx context.Context) error {
	exists, err := v.SessionProvider.CollectionExists(v.DB, v.Source)
	if err != nil {
		return errors.Wrap(err, "error checking source collection")
	}
	if !exists {
		return errors.Errorf("source collection %s.%s does not exist", v.DB, v.Source)
	}

	count, err := v.sourceColl().CountDocuments(ctx, bson.D{})
	if err != nil {
		return errors.Wrap(err, "error counting source collection")
	}
	if count == 0 {
		return errors.Errorf("source collection %s.%s is empty", v.DB, v.Source)
	}
	log.Logvf(log.Info, "source collection %s.%s holds %d documents", v.DB, v.Source, count)

	fields := []string{"name", "pricing", "customization", "media", "metadata", "seo"}
	for _, field := range fields {
		populated, err := v.sourceColl().CountDocuments(ctx, bson.D{
			{Key: field, Value: bson.D{{Key: "$exists", Value: true}}},
		})
		if err != nil {
			return errors.Wrapf(err, "error sampling field population for %s", field)
		}
		log.Logvf(log.Info, "  field %-13s populated on %d%% of documents",
			field, ratePercentInt(populated, count))
	}

	// Duplicate slugs would collide on the unique slug index after the
	// transform, so surface them before any mutation happens.
	dupes, err := v.duplicateSlugCount(ctx)
	if err != nil {
		return errors.Wrap(err, "error checking for duplicate slugs")
	}
	if dupes > 0 {
		log.Logvf(log.Always, "source collection has %d duplicated slug values; "+
			"affected documents will be rejected during transformation", dupes)
	}
	return nil
}

func (v *Verifier) duplicateSlugCount(ctx context.Context) (int64, error) {
	cursor, err := v.sourceColl().Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "seo.slug", Value: bson.D{{Key: "$type", Value: "string"}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$seo.slug"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$match", Value: bson.D{
			{Key: "count", Value: bson.D{{Key: "$gt", Value: 1}}},
		}}},
	})
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var dupes int64
	for cursor.Next(ctx) {
		dupes++
	}
	return dupes, cursor.Err()
}

func (v *Verifier) verifyDataCompleteness(ctx context.Context) (VerificationSuite, error) {
	suite := VerificationSuite{Name: "data-completeness"}

	sourceCount, err := v.sourceColl().CountDocuments(ctx, bson.D{})
	if err != nil {
		return suite, errors.Wrap(err, "error counting source collection")
	}
	targetCount, err := v.targetColl().CountDocuments(ctx, bson.D{})
	if err != nil {
		return suite, errors.Wrap(err, "error counting target collection")
	}

	if RateMeetsThreshold(targetCount, sourceCount, countRetentionThreshold) {
		suite.pass(fmt.Sprintf("document count retained: %d of %d", targetCount, sourceCount))
	} else {
		suite.fail(fmt.Sprintf("document count dropped below %.0f%%: %d of %d",
			countRetentionThreshold, targetCount, sourceCount))
	}

	// Identity fields of sampled source documents must survive into the
	// target. Category is compared post-normalization since the transform
	// rewrites it deliberately.
	sample, err := sampleDocuments(ctx, v.sourceColl(), identitySampleSize)
	if err != nil {
		return suite, err
	}
	matched := int64(0)
	for _, src := range sample {
		var target bson.M
		err := v.targetColl().FindOne(ctx, bson.D{{Key: "_id", Value: src["_id"]}}).Decode(&target)
		if err == mongo.ErrNoDocuments {
			continue
		}
		if err != nil {
			return suite, errors.Wrap(err, "error fetching target document")
		}
		srcCategory, _ := src["category"].(string)
		if target["name"] == src["name"] &&
			target["description"] == src["description"] &&
			target["category"] == normalizeCategory(srcCategory) {
			matched++
		}
	}
	if RateMeetsThreshold(matched, int64(len(sample)), identityMatchThreshold) {
		suite.pass(fmt.Sprintf("identity fields preserved on %d of %d sampled documents",
			matched, len(sample)))
	} else {
		suite.fail(fmt.Sprintf("identity field match rate below %.0f%%: %d of %d",
			identityMatchThreshold, matched, len(sample)))
	}

	// Every sampled target document must satisfy the full DTO contract.
	targetSample, err := sampleDocuments(ctx, v.targetColl(), dtoSampleSize)
	if err != nil {
		return suite, err
	}
	invalid := 0
	for _, doc := range targetSample {
		if err := ValidateDocument(doc); err != nil {
			invalid++
			log.Logvf(log.DebugLow, "document %v fails schema check: %v", doc["_id"], err)
		}
	}
	if invalid == 0 {
		suite.pass(fmt.Sprintf("all %d sampled target documents satisfy the schema contract",
			len(targetSample)))
	} else {
		suite.fail(fmt.Sprintf("%d of %d sampled target documents violate the schema contract",
			invalid, len(targetSample)))
	}

	return suite, nil
}

func (v *Verifier) verifyMaterialSpecs(ctx context.Context) (VerificationSuite, error) {
	suite := VerificationSuite{Name: "material-specs-accuracy"}

	sample, err := sampleDocuments(ctx, v.targetColl(), materialSampleSize)
	if err != nil {
		return suite, err
	}
	withSpecs, withMetal, withStone := int64(0), 0, 0
	for _, doc := range sample {
		specs, ok := asDocument(doc["materialSpecs"])
		if !ok {
			continue
		}
		withSpecs++
		if metal, ok := asDocument(specs["metal"]); ok {
			if metalType, _ := metal["type"].(string); metalEnum.Contains(metalType) {
				withMetal++
			}
		}
		if _, ok := asDocument(specs["stone"]); ok {
			withStone++
		}
	}
	if RateMeetsThreshold(withSpecs, int64(len(sample)), materialPresenceThreshold) {
		suite.pass(fmt.Sprintf(
			"materialSpecs present on %d of %d sampled documents (%d valid metal, %d with stone)",
			withSpecs, len(sample), withMetal, withStone))
	} else {
		suite.fail(fmt.Sprintf("materialSpecs presence below %.0f%%: %d of %d",
			materialPresenceThreshold, withSpecs, len(sample)))
	}

	// Carat fidelity: transformed carat must match the clamped source carat.
	caratMatched, caratTotal, err := v.checkCaratFidelity(ctx)
	if err != nil {
		return suite, err
	}
	if caratTotal == 0 {
		suite.pass("no source documents with gemstones to compare")
	} else if RateMeetsThreshold(caratMatched, caratTotal, caratMatchThreshold) {
		suite.pass(fmt.Sprintf("carat values preserved on %d of %d gemstone documents",
			caratMatched, caratTotal))
	} else {
		suite.fail(fmt.Sprintf("carat match rate below %.0f%%: %d of %d",
			caratMatchThreshold, caratMatched, caratTotal))
	}

	// The full metal-type distribution must stay inside the enum.
	outliers, err := distributionOutliers(ctx, v.targetColl(), "$materialSpecs.metal.type", metalEnum)
	if err != nil {
		return suite, err
	}
	if len(outliers) == 0 {
		suite.pass("metal type distribution contains only enum values")
	} else {
		suite.fail(fmt.Sprintf("metal types outside the enum: %v", outliers))
	}

	return suite, nil
}

func (v *Verifier) checkCaratFidelity(ctx context.Context) (matched, total int64, err error) {
	filter := bson.D{{Key: "customization.gemstones.0", Value: bson.D{{Key: "$exists", Value: true}}}}
	findOpts := mopt.Find().SetLimit(caratSampleSize)
	cursor, err := v.sourceColl().Find(ctx, filter, findOpts)
	if err != nil {
		return 0, 0, errors.Wrap(err, "error sampling gemstone documents")
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var src LegacyProduct
		if err := cursor.Decode(&src); err != nil {
			continue
		}
		if src.Customization == nil || len(src.Customization.Gemstones) == 0 {
			continue
		}
		total++

		var target struct {
			MaterialSpecs struct {
				Stone *StoneSpec `bson:"stone"`
			} `bson:"materialSpecs"`
		}
		err := v.targetColl().FindOne(ctx, bson.D{{Key: "_id", Value: src.ID}}).Decode(&target)
		if err != nil || target.MaterialSpecs.Stone == nil {
			continue
		}

		expected := ClampCarat(src.Customization.Gemstones[0].Carat)
		if math.Abs(target.MaterialSpecs.Stone.Carat-expected) <= caratMatchTolerance {
			matched++
		}
	}
	return matched, total, cursor.Err()
}

func (v *Verifier) verifyPerformance(ctx context.Context) (VerificationSuite, error) {
	suite := VerificationSuite{Name: "performance-compliance"}

	report, err := RunPerformanceSuite(ctx, v.targetColl(), CatalogQuerySpecs(), v.PerfConfig)
	if err != nil {
		return suite, err
	}

	passedQueries := int64(0)
	for _, result := range report.Results {
		if result.Passed {
			passedQueries++
		}
	}
	if RateMeetsThreshold(passedQueries, int64(len(report.Results)), perfComplianceThreshold) {
		suite.pass(fmt.Sprintf("%d of %d queries met their latency targets (%.0f%% global compliance)",
			passedQueries, len(report.Results), report.ComplianceRate))
	} else {
		suite.fail(fmt.Sprintf("only %d of %d queries met their latency targets",
			passedQueries, len(report.Results)))
	}
	return suite, nil
}

func (v *Verifier) verifyBusinessLogic(ctx context.Context) (VerificationSuite, error) {
	suite := VerificationSuite{Name: "business-logic-preservation"}

	// Pricing fidelity against the source.
	sample, err := sampleDocuments(ctx, v.sourceColl(), pricingSampleSize)
	if err != nil {
		return suite, err
	}
	priceMatched, priceTotal := int64(0), int64(0)
	for _, src := range sample {
		var legacy LegacyProduct
		raw, err := bson.Marshal(src)
		if err != nil {
			continue
		}
		if err := bson.Unmarshal(raw, &legacy); err != nil {
			continue
		}
		priceTotal++

		var target struct {
			Pricing PricingInfo `bson:"pricing"`
		}
		err = v.targetColl().FindOne(ctx, bson.D{{Key: "_id", Value: src["_id"]}}).Decode(&target)
		if err != nil {
			continue
		}
		expected := extractPricing(&legacy).BasePrice
		if math.Abs(target.Pricing.BasePrice-expected) <= pricingMatchTolerance {
			priceMatched++
		}
	}
	if RateMeetsThreshold(priceMatched, priceTotal, pricingMatchThreshold) {
		suite.pass(fmt.Sprintf("pricing preserved on %d of %d sampled documents",
			priceMatched, priceTotal))
	} else {
		suite.fail(fmt.Sprintf("pricing match rate below %.0f%%: %d of %d",
			pricingMatchThreshold, priceMatched, priceTotal))
	}

	// Availability must be a well-formed boolean.
	targetSample, err := sampleDocuments(ctx, v.targetColl(), materialSampleSize)
	if err != nil {
		return suite, err
	}
	wellFormed := int64(0)
	for _, doc := range targetSample {
		if inv, ok := asDocument(doc["inventory"]); ok {
			if _, ok := inv["available"].(bool); ok {
				wellFormed++
			}
		}
	}
	if RateMeetsThreshold(wellFormed, int64(len(targetSample)), availabilityThreshold) {
		suite.pass(fmt.Sprintf("inventory availability is boolean on %d of %d sampled documents",
			wellFormed, len(targetSample)))
	} else {
		suite.fail(fmt.Sprintf("well-formed availability below %.0f%%: %d of %d",
			availabilityThreshold, wellFormed, len(targetSample)))
	}

	// The full category distribution must stay inside the enum.
	outliers, err := distributionOutliers(ctx, v.targetColl(), "$category", categoryEnum)
	if err != nil {
		return suite, err
	}
	if len(outliers) == 0 {
		suite.pass("category distribution contains only enum values")
	} else {
		suite.fail(fmt.Sprintf("categories outside the enum: %v", outliers))
	}

	return suite, nil
}

func (v *Verifier) verifyEdgeCases(ctx context.Context) (VerificationSuite, error) {
	suite := VerificationSuite{Name: "edge-case-handling"}
	coll := v.targetColl()

	// Whole-collection scans, not samples: these invariants must hold on
	// every live document.
	emptyImages, err := coll.CountDocuments(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "primaryImage", Value: bson.D{{Key: "$exists", Value: false}}}},
		bson.D{{Key: "primaryImage", Value: nil}},
		bson.D{{Key: "primaryImage", Value: ""}},
	}}})
	if err != nil {
		return suite, errors.Wrap(err, "error scanning for empty primary images")
	}
	if emptyImages == 0 {
		suite.pass("every document has a non-empty primaryImage")
	} else {
		suite.fail(fmt.Sprintf("%d documents have an empty primaryImage", emptyImages))
	}

	missingCritical := int64(0)
	for _, field := range CriticalFields {
		count, err := coll.CountDocuments(ctx, bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: field, Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: field, Value: nil}},
		}}})
		if err != nil {
			return suite, errors.Wrapf(err, "error scanning for missing %s", field)
		}
		missingCritical += count
	}
	if missingCritical == 0 {
		suite.pass("every document has all critical fields populated")
	} else {
		suite.fail(fmt.Sprintf("%d critical-field gaps found across the collection", missingCritical))
	}

	corrupt, err := coll.CountDocuments(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "pricing.basePrice", Value: bson.D{{Key: "$lt", Value: 0}}}},
		bson.D{{Key: "pricing.basePrice", Value: bson.D{{Key: "$gt", Value: MaxCatalogPrice}}}},
		bson.D{{Key: "materialSpecs.stone.carat", Value: bson.D{{Key: "$lte", Value: 0}}}},
		bson.D{{Key: "materialSpecs.stone.carat", Value: bson.D{{Key: "$gt", Value: MaxCarat}}}},
	}}})
	if err != nil {
		return suite, errors.Wrap(err, "error scanning for out-of-range values")
	}
	if corrupt == 0 {
		suite.pass("no documents with out-of-range price or carat")
	} else {
		suite.fail(fmt.Sprintf("%d documents have out-of-range price or carat", corrupt))
	}

	return suite, nil
}

// RateMeetsThreshold reports whether matched/total, as a percentage, is at
// or above the threshold. A zero total passes: an empty sample has no
// evidence of failure.
func RateMeetsThreshold(matched, total int64, threshold float64) bool {
	if total == 0 {
		return true
	}
	return util.PercentageInt64(matched, total) >= threshold
}

func ratePercentInt(part, total int64) int64 {
	return int64(math.Round(util.PercentageInt64(part, total)))
}

func sampleDocuments(ctx context.Context, coll *mongo.Collection, limit int64) ([]bson.M, error) {
	cursor, err := coll.Find(ctx, bson.D{}, mopt.Find().SetLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "error sampling documents")
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "error reading document sample")
	}
	return docs, nil
}

// distributionOutliers aggregates the distinct values of a field across the
// whole collection and returns any that fall outside the allowed set.
func distributionOutliers(
	ctx context.Context,
	coll *mongo.Collection,
	fieldPath string,
	allowed mapset.Set[string],
) ([]string, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: fieldPath}}}},
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrapf(err, "error aggregating distribution of %s", fieldPath)
	}
	defer cursor.Close(ctx)

	var outliers []string
	for cursor.Next(ctx) {
		var group struct {
			Value interface{} `bson:"_id"`
		}
		if err := cursor.Decode(&group); err != nil {
			return nil, errors.Wrap(err, "error decoding distribution group")
		}
		if group.Value == nil {
			// Absent optional fields group under nil; not an outlier.
			continue
		}
		s, ok := group.Value.(string)
		if !ok {
			outliers = append(outliers, fmt.Sprintf("%v", group.Value))
			continue
		}
		if !allowed.Contains(s) {
			outliers = append(outliers, s)
		}
	}
	return outliers, cursor.Err()
}
