// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Main package for the catmigrate tool.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/meridian-labs/catalog-migrate/catmigrate"
	"github.com/meridian-labs/catalog-migrate/common/log"
	"github.com/meridian-labs/catalog-migrate/common/signals"
	"github.com/meridian-labs/catalog-migrate/common/util"
)

var (
	VersionStr = "built-without-version-string"
	GitCommit  = "build-without-git-commit"
)

func main() {
	opts, err := catmigrate.ParseOptions(os.Args[1:], VersionStr, GitCommit)
	if err != nil {
		log.Logvf(log.Always, "error parsing command line options: %s", err.Error())
		log.Logvf(log.Always, util.ShortUsage("catmigrate"))
		os.Exit(util.ExitBadOptions)
	}

	// print help, if specified
	if opts.PrintHelp(false) {
		return
	}

	// print version, if specified
	if opts.PrintVersion() {
		return
	}

	log.SetVerbosity(opts.Verbosity)
	opts.URI.LogUnsupportedOptions()

	migrator, err := catmigrate.New(opts)
	if err != nil {
		log.Logvf(log.Always, "Failed: %v", err)
		os.Exit(util.ExitFailure)
	}
	defer migrator.Close()

	ctx, cancel := context.WithCancel(context.Background())
	finishedChan := signals.HandleWithInterrupt(cancel)
	defer close(finishedChan)

	if err := migrator.Run(ctx); err != nil {
		log.Logvf(log.Always, "Failed: %v", err)
		var rollbackErr *catmigrate.CriticalRollbackError
		if errors.As(err, &rollbackErr) {
			os.Exit(util.ExitRollbackFailed)
		}
		os.Exit(util.ExitFailure)
	}
}
