// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package catmigrate orchestrates a blue-green schema migration of a
// product catalog collection: every legacy document is transformed into the
// list-optimized shape inside a shadow collection, the shadow is indexed
// and validated, and an atomic rename swap promotes it to live with the old
// collection retained as a backup.
package catmigrate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-labs/catalog-migrate/common/db"
	"github.com/meridian-labs/catalog-migrate/common/log"
	"github.com/meridian-labs/catalog-migrate/common/options"
	"github.com/meridian-labs/catalog-migrate/common/util"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogMigrate is the top-level migration coordinator. Phases run
// strictly sequentially; no phase starts before its predecessor completes.
type CatalogMigrate struct {
	ToolOptions       *options.ToolOptions
	MigrationOptions  *MigrationOptions
	ValidationOptions *ValidationOptions

	SessionProvider *db.SessionProvider

	runID  string
	ledger *Ledger
	report *MigrationReport

	// backupCollection is set once the live collection has been renamed
	// away; it is the precondition for rollback.
	backupCollection string
}

// New constructs a CatalogMigrate, validating settings and connecting to
// the server.
func New(opts Options) (*CatalogMigrate, error) {
	migrator := &CatalogMigrate{
		ToolOptions:       opts.ToolOptions,
		MigrationOptions:  opts.MigrationOptions,
		ValidationOptions: opts.ValidationOptions,
		runID:             uuid.New().String(),
		ledger:            NewLedger(),
	}
	if err := migrator.validateSettings(); err != nil {
		return nil, errors.Wrap(err, "error validating settings")
	}

	sessionProvider, err := db.NewSessionProvider(*opts.ToolOptions)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to host")
	}
	migrator.SessionProvider = sessionProvider
	return migrator, nil
}

// Close disconnects from the server.
func (cm *CatalogMigrate) Close() {
	if cm.SessionProvider != nil {
		cm.SessionProvider.Close()
	}
}

func (cm *CatalogMigrate) validateSettings() error {
	if cm.ToolOptions.Namespace.DB == "" {
		cm.ToolOptions.Namespace.DB = "jewelry"
	}
	if cm.ToolOptions.Namespace.Collection == "" {
		cm.ToolOptions.Namespace.Collection = "products"
	}
	if err := util.ValidateCollectionName(cm.ToolOptions.Namespace.Collection); err != nil {
		return err
	}

	if cm.MigrationOptions.ShadowCollection == "" {
		cm.MigrationOptions.ShadowCollection = cm.ToolOptions.Namespace.Collection + "_migration_shadow"
	}
	if err := util.ValidateCollectionName(cm.MigrationOptions.ShadowCollection); err != nil {
		return err
	}
	if cm.MigrationOptions.ShadowCollection == cm.ToolOptions.Namespace.Collection {
		return errors.New("shadow collection must differ from the source collection")
	}

	if cm.MigrationOptions.BatchSize < 1 {
		return errors.Errorf("invalid batch size: %d", cm.MigrationOptions.BatchSize)
	}
	if cm.MigrationOptions.NumInsertionWorkers < 1 {
		return errors.Errorf("invalid number of insertion workers: %d",
			cm.MigrationOptions.NumInsertionWorkers)
	}
	if rate := cm.ValidationOptions.MinSuccessRate; rate <= 0 || rate > 100 {
		return errors.Errorf("minimum success rate must be in (0, 100], got %v", rate)
	}
	if cm.ValidationOptions.QueryBudget <= 0 {
		return errors.Errorf("query budget must be positive, got %d",
			cm.ValidationOptions.QueryBudget)
	}
	if cm.ValidationOptions.PerfRuns < 1 {
		return errors.Errorf("perf runs must be at least 1, got %d",
			cm.ValidationOptions.PerfRuns)
	}
	return nil
}

func (cm *CatalogMigrate) dbName() string {
	return cm.ToolOptions.Namespace.DB
}

func (cm *CatalogMigrate) liveName() string {
	return cm.ToolOptions.Namespace.Collection
}

func (cm *CatalogMigrate) shadowName() string {
	return cm.MigrationOptions.ShadowCollection
}

func (cm *CatalogMigrate) liveColl() *mongo.Collection {
	return cm.SessionProvider.DB(cm.dbName()).Collection(cm.liveName())
}

func (cm *CatalogMigrate) shadowColl() *mongo.Collection {
	return cm.SessionProvider.DB(cm.dbName()).Collection(cm.shadowName())
}

func (cm *CatalogMigrate) perfConfig() PerfConfig {
	return PerfConfig{
		Runs:           cm.ValidationOptions.PerfRuns,
		GlobalBudgetMs: cm.ValidationOptions.QueryBudget,
	}
}

func (cm *CatalogMigrate) verifier(source, target string) *Verifier {
	return &Verifier{
		SessionProvider: cm.SessionProvider,
		DB:              cm.dbName(),
		Source:          source,
		Target:          target,
		PerfConfig:      cm.perfConfig(),
	}
}

// Run executes the full migration sequence. The process-level contract: a
// nil return means every phase completed and the report's success flag is
// true; any error leaves a failure report on disk.
func (cm *CatalogMigrate) Run(ctx context.Context) error {
	if cm.MigrationOptions.RestoreFrom != "" {
		return cm.runRestore(ctx)
	}

	cm.report = &MigrationReport{
		RunID:      cm.runID,
		Version:    cm.ToolOptions.VersionStr,
		Database:   cm.dbName(),
		Collection: cm.liveName(),
		StartedAt:  time.Now(),
	}
	log.Logvf(log.Always, "starting migration %s of %s.%s (shadow: %s)",
		cm.runID, cm.dbName(), cm.liveName(), cm.shadowName())
	if cm.MigrationOptions.DryRun {
		log.Logvf(log.Always, "dry run: the blue-green switch will be skipped")
	}

	err := cm.runPhases(ctx)

	cm.report.FinishedAt = time.Now()
	cm.report.Success = err == nil
	cm.report.Phases = cm.ledger.Records()
	cm.report.BuildRecommendations()

	reportPath, reportErr := WriteReport(cm.MigrationOptions.ReportDir, cm.report)
	if reportErr != nil {
		log.Logvf(log.Always, "error writing migration report: %v", reportErr)
	} else {
		log.Logvf(log.Always, "migration report written to %s", reportPath)
	}
	cm.report.RenderSummary(log.Writer(0))

	if err == nil && reportErr != nil {
		return reportErr
	}
	return err
}

// runPhases drives the phase sequence. A phase failure records the phase in
// the report and halts immediately.
func (cm *CatalogMigrate) runPhases(ctx context.Context) error {
	phases := []struct {
		name PhaseName
		run  func(context.Context) (interface{}, error)
	}{
		{PhasePreFlight, cm.preFlightPhase},
		{PhaseBackup, cm.backupPhase},
		{PhaseShadowCreation, cm.shadowCreationPhase},
		{PhaseDataTransformation, cm.transformationPhase},
		{PhaseIndexOptimization, cm.indexPhase},
		{PhasePerformanceValidation, cm.performancePhase},
		{PhaseBlueGreenSwitch, cm.switchPhase},
		{PhasePostValidation, cm.postValidationPhase},
		{PhaseCleanup, cm.cleanupPhase},
	}

	for _, phase := range phases {
		if cm.MigrationOptions.DryRun && phase.name == PhaseBlueGreenSwitch {
			return cm.finishDryRun(ctx)
		}

		cm.ledger.Begin(phase.name)
		log.Logvf(log.Info, "phase %s started", phase.name)

		result, err := phase.run(ctx)
		if err != nil {
			cm.ledger.Fail(phase.name, err)
			cm.report.FailedPhase = phase.name
			cm.report.Error = err.Error()
			log.Logvf(log.Always, "phase %s failed: %v", phase.name, err)
			return errors.Wrapf(err, "phase %s failed", phase.name)
		}

		cm.ledger.Complete(phase.name, result)
		log.Logvf(log.Info, "phase %s completed", phase.name)
	}
	return nil
}

// finishDryRun discards the validated shadow collection instead of
// switching. The live collection is never touched.
func (cm *CatalogMigrate) finishDryRun(ctx context.Context) error {
	log.Logvf(log.Always, "dry run complete: shadow collection validated, dropping it")
	if err := cm.SessionProvider.DropCollection(cm.dbName(), cm.shadowName()); err != nil {
		return errors.Wrap(err, "error dropping shadow collection after dry run")
	}
	return nil
}

func (cm *CatalogMigrate) preFlightPhase(ctx context.Context) (interface{}, error) {
	verifier := cm.verifier(cm.liveName(), cm.shadowName())
	if err := verifier.ReadinessCheck(ctx); err != nil {
		return nil, err
	}
	return "source collection ready", nil
}

func (cm *CatalogMigrate) backupPhase(ctx context.Context) (interface{}, error) {
	cfg := BackupConfig{
		ShadowCollection: cm.shadowName(),
		BatchSize:        cm.MigrationOptions.BatchSize,
		MinSuccessRate:   cm.ValidationOptions.MinSuccessRate,
		QueryBudgetMs:    cm.ValidationOptions.QueryBudget,
	}
	path, artifact, err := WriteBackup(ctx, cm.liveColl(), cm.MigrationOptions.BackupDir, cm.runID, cfg)
	if err != nil {
		return nil, err
	}
	cm.report.BackupPath = path
	return map[string]interface{}{"path": path, "documents": artifact.Count}, nil
}

func (cm *CatalogMigrate) shadowCreationPhase(ctx context.Context) (interface{}, error) {
	// A stale shadow from a previous failed run would poison the counts.
	if err := cm.SessionProvider.DropCollection(cm.dbName(), cm.shadowName()); err != nil {
		return nil, errors.Wrap(err, "error dropping stale shadow collection")
	}
	return fmt.Sprintf("shadow collection %s ready", cm.shadowName()), nil
}

func (cm *CatalogMigrate) transformationPhase(ctx context.Context) (interface{}, error) {
	pipeline := newTransformPipeline(
		cm.liveColl(),
		cm.shadowColl(),
		cm.MigrationOptions.BatchSize,
		cm.MigrationOptions.NumInsertionWorkers,
		cm.MigrationOptions.StopOnError,
		time.Now(),
	)
	stats, err := pipeline.run(ctx)
	if err != nil {
		return nil, err
	}
	cm.report.Transform = stats

	log.Logvf(log.Always, "transformed %d of %d documents (%.1f%% success rate, %.1f%% inserted)",
		stats.Transformed, stats.Sourced, stats.SuccessRate, stats.InsertedRate)

	if !stats.MeetsFloor(cm.ValidationOptions.MinSuccessRate) {
		return nil, errors.Errorf(
			"transformation success rate %.1f%% (%.1f%% inserted) is below the %.1f%% floor",
			stats.SuccessRate, stats.InsertedRate, cm.ValidationOptions.MinSuccessRate)
	}
	return stats, nil
}

func (cm *CatalogMigrate) indexPhase(ctx context.Context) (interface{}, error) {
	buildOpts := IndexBuildOptions{
		Background:  true,
		Parallelism: cm.MigrationOptions.NumInsertionWorkers,
	}
	results, err := EnsureIndexes(ctx, cm.shadowColl(), CatalogIndexPlans(), buildOpts)
	if err != nil {
		return nil, err
	}
	cm.report.IndexBuilds = results

	for _, result := range results {
		log.Logvf(log.Info, "index %-22s %s in %v",
			result.Name, indexOutcome(result), result.Duration.Round(time.Millisecond))
	}

	indexes, err := ListIndexes(ctx, cm.shadowColl())
	if err != nil {
		return nil, err
	}
	cm.report.Indexes = indexes
	return results, nil
}

func indexOutcome(result IndexBuildResult) string {
	if result.AlreadyExists {
		return "already existed"
	}
	return "created"
}

func (cm *CatalogMigrate) performancePhase(ctx context.Context) (interface{}, error) {
	specs := CriticalSpecs(CatalogQuerySpecs())
	report, err := RunPerformanceSuite(ctx, cm.shadowColl(), specs, cm.perfConfig())
	if err != nil {
		return nil, err
	}
	cm.report.Performance = report

	log.Logvf(log.Always, "performance gate: %.0f%% of critical queries within the %dms global budget",
		report.ComplianceRate, report.GlobalBudgetMs)

	if !report.CriticalPassed && !cm.ValidationOptions.SkipPerfGate {
		return nil, errors.New("one or more critical queries missed their latency targets")
	}
	return report, nil
}

// switchPhase is the point of no return: the live collection is renamed to
// a timestamped backup, then the shadow is renamed into the live name. A
// failure partway through triggers the automatic rollback.
func (cm *CatalogMigrate) switchPhase(ctx context.Context) (interface{}, error) {
	backupName := fmt.Sprintf("%s_backup_%s", cm.liveName(), time.Now().Format(backupTimeFormat))

	log.Logvf(log.Always, "switching: renaming %s to %s", cm.liveName(), backupName)
	if err := cm.SessionProvider.RenameCollection(cm.dbName(), cm.liveName(), backupName, false); err != nil {
		if db.IsNamespaceExistsError(err) {
			return nil, errors.Errorf(
				"backup collection %s already exists; drop or rename it before rerunning", backupName)
		}
		return nil, errors.Wrap(err, "error renaming live collection to backup")
	}
	cm.backupCollection = backupName
	cm.report.BackupColl = backupName

	log.Logvf(log.Always, "switching: renaming %s to %s", cm.shadowName(), cm.liveName())
	if err := cm.SessionProvider.RenameCollection(cm.dbName(), cm.shadowName(), cm.liveName(), false); err != nil {
		cm.report.RollbackRun = true
		if rollbackErr := cm.Rollback(); rollbackErr != nil {
			return nil, errors.Wrapf(rollbackErr,
				"error promoting shadow collection (%v); rollback also failed", err)
		}
		cm.report.RollbackOK = true
		return nil, errors.Wrap(err, "error promoting shadow collection; rollback succeeded")
	}

	return map[string]string{"backupCollection": backupName}, nil
}

// postValidationPhase re-verifies the now-live collection against the
// renamed backup. A failure here fails the migration but does not undo the
// switch: the backup collection and artifact remain for a manual rollback
// decision.
func (cm *CatalogMigrate) postValidationPhase(ctx context.Context) (interface{}, error) {
	verifier := cm.verifier(cm.backupCollection, cm.liveName())
	report, err := verifier.Run(ctx)
	if err != nil {
		return nil, err
	}
	cm.report.Verification = report

	if !report.Passed {
		log.Logvf(log.Always,
			"post-validation found %d critical issues; the new schema remains live, backup collection %s is intact",
			len(report.CriticalIssues), cm.backupCollection)
		return nil, errors.Errorf("post-validation failed with %d critical issues",
			len(report.CriticalIssues))
	}
	return report, nil
}

func (cm *CatalogMigrate) cleanupPhase(ctx context.Context) (interface{}, error) {
	// Backup retention is an operator decision; nothing is deleted here.
	log.Logvf(log.Always, "migration complete; backup collection %s and artifact %s retained",
		cm.backupCollection, cm.report.BackupPath)
	return "cleanup complete", nil
}

// runRestore loads a backup artifact from disk into the live collection
// name, for manual recovery after a failed or regretted migration.
func (cm *CatalogMigrate) runRestore(ctx context.Context) error {
	artifact, err := ReadArtifactFile(cm.MigrationOptions.RestoreFrom)
	if err != nil {
		return err
	}
	log.Logvf(log.Always, "restoring %d documents from %s into %s.%s",
		artifact.Count, cm.MigrationOptions.RestoreFrom, cm.dbName(), cm.liveName())

	restored, err := RestoreBackup(ctx, cm.SessionProvider, artifact,
		cm.dbName(), cm.liveName(), cm.MigrationOptions.BatchSize)
	if err != nil {
		return errors.Wrap(err, "error restoring backup")
	}
	log.Logvf(log.Always, "restore complete: %d documents", restored)
	return nil
}

// RunID returns the unique identifier of this migration run.
func (cm *CatalogMigrate) RunID() string {
	return cm.runID
}

// Report returns the report of the last Run, or nil before any run.
func (cm *CatalogMigrate) Report() *MigrationReport {
	return cm.report
}
