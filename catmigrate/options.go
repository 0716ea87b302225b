// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"fmt"
	"strings"

	"github.com/meridian-labs/catalog-migrate/common/options"
	"github.com/meridian-labs/catalog-migrate/common/util"
)

var Usage = `<options> <connection-string>

Migrate a product catalog collection to the list-optimized schema with a
blue-green switch and automatic rollback.

Connection strings must begin with mongodb:// or mongodb+srv://.`

// Options contains all the possible options for configuring catmigrate.
type Options struct {
	*options.ToolOptions
	*MigrationOptions
	*ValidationOptions
}

// MigrationOptions controls how the shadow collection is built and switched.
type MigrationOptions struct {
	ShadowCollection    string `long:"shadowCollection"    value-name:"<collection>" description:"name of the shadow collection (default: <collection>_migration_shadow)"`
	BackupDir           string `long:"backupDir"           value-name:"<directory>"  default:"migration-backups" description:"directory for pre-migration backup artifacts"`
	ReportDir           string `long:"reportDir"           value-name:"<directory>"  default:"migration-reports" description:"directory for migration report files"`
	BatchSize           int    `long:"batchSize"           value-name:"<count>"      default:"25" description:"number of documents per transform batch"`
	NumInsertionWorkers int    `long:"numInsertionWorkers" value-name:"<count>"      default:"1" description:"number of insert operations to run concurrently"`
	DryRun              bool   `long:"dryRun"              description:"build and validate the shadow collection, then discard it without switching"`
	StopOnError         bool   `long:"stopOnError"         description:"halt the migration on the first document that fails to transform"`
	RestoreFrom         string `long:"restoreFrom"         value-name:"<file>"       description:"restore a backup artifact into the collection instead of migrating"`
}

// Name returns a human-readable group name for migration options.
func (*MigrationOptions) Name() string {
	return "migration"
}

// ApplyConfig binds config-file values to migration options.
func (opts *MigrationOptions) ApplyConfig(args map[string]interface{}) error {
	if v, ok := args["shadowCollection"]; ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("shadowCollection must be a string, got %v", v)
		}
		opts.ShadowCollection = s
	}
	if v, ok := args["batchSize"]; ok {
		n, ok := util.ToInt64(v)
		if !ok {
			return fmt.Errorf("batchSize must be a number, got %v", v)
		}
		opts.BatchSize = int(n)
	}
	return nil
}

// ValidationOptions controls the quality gates applied before the switch.
type ValidationOptions struct {
	MinSuccessRate float64 `long:"minSuccessRate" value-name:"<percent>" default:"95" description:"minimum transformation success rate required to proceed (percent)"`
	QueryBudget    int64   `long:"queryBudget"    value-name:"<ms>"      default:"300" description:"global per-query latency budget in milliseconds"`
	PerfRuns       int     `long:"perfRuns"       value-name:"<count>"   default:"3" description:"number of timed runs per benchmark query"`
	SkipPerfGate   bool    `long:"skipPerfGate"   description:"run the performance suite but do not fail the migration on it"`
}

// Name returns a human-readable group name for validation options.
func (*ValidationOptions) Name() string {
	return "validation"
}

// ApplyConfig binds config-file values to validation options.
func (opts *ValidationOptions) ApplyConfig(args map[string]interface{}) error {
	if v, ok := args["minSuccessRate"]; ok {
		f, ok := util.ToFloat64(v)
		if !ok {
			return fmt.Errorf("minSuccessRate must be a number, got %v", v)
		}
		opts.MinSuccessRate = f
	}
	if v, ok := args["queryBudget"]; ok {
		n, ok := util.ToInt64(v)
		if !ok {
			return fmt.Errorf("queryBudget must be a number, got %v", v)
		}
		opts.QueryBudget = n
	}
	return nil
}

// ParseOptions reads the command line arguments and returns a fully
// constructed Options.
func ParseOptions(rawArgs []string, versionStr, gitCommit string) (Options, error) {
	opts := options.New("catmigrate", versionStr, gitCommit, Usage)

	migrationOpts := &MigrationOptions{}
	opts.AddOptions(migrationOpts)
	validationOpts := &ValidationOptions{}
	opts.AddOptions(validationOpts)

	args, err := rewritePositionalURI(rawArgs)
	if err != nil {
		return Options{}, err
	}

	extraArgs, err := opts.ParseArgs(args)
	if err != nil {
		return Options{}, err
	}

	if len(extraArgs) > 0 {
		return Options{}, fmt.Errorf("error parsing positional arguments: " +
			"provide only one MongoDB connection string. " +
			"Connection strings must begin with mongodb:// or mongodb+srv:// schemes")
	}

	return Options{opts, migrationOpts, validationOpts}, nil
}

// rewritePositionalURI turns a single positional connection string into a
// --uri flag so the arg parser accepts it. Positional arguments that are not
// connection strings, more than one connection string, or a positional
// connection string combined with --uri are all rejected.
func rewritePositionalURI(rawArgs []string) ([]string, error) {
	args := make([]string, 0, len(rawArgs))
	var haveURIFlag, havePositional bool
	for _, arg := range rawArgs {
		if strings.HasPrefix(arg, "--uri") {
			haveURIFlag = true
		}
		if strings.HasPrefix(arg, "mongodb://") || strings.HasPrefix(arg, "mongodb+srv://") {
			if havePositional {
				return nil, fmt.Errorf("too many URIs found in positional arguments: " +
					"only one URI can be set as a positional argument")
			}
			havePositional = true
			args = append(args, "--uri="+arg)
			continue
		}
		args = append(args, arg)
	}
	if haveURIFlag && havePositional {
		return nil, fmt.Errorf(
			"illegal argument combination: cannot specify a URI in a positional argument and --uri",
		)
	}
	return args, nil
}
