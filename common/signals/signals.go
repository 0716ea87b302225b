// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package signals wires OS interrupt handling into tool shutdown.
package signals

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/meridian-labs/catalog-migrate/common/log"
	"github.com/meridian-labs/catalog-migrate/common/util"
)

// Handle starts a goroutine that exits the process on an interrupt signal.
// The returned channel should be closed when the tool finishes so the
// goroutine does not leak.
func Handle() chan struct{} {
	return HandleWithInterrupt(nil)
}

// HandleWithInterrupt is like Handle but calls onInterrupt before exiting,
// giving the tool a chance to release resources or cancel in-flight work.
// A second signal forces immediate exit without waiting for onInterrupt.
func HandleWithInterrupt(onInterrupt func()) chan struct{} {
	finishedChan := make(chan struct{})
	go handleSignals(onInterrupt, finishedChan)
	return finishedChan
}

func handleSignals(onInterrupt func(), finishedChan chan struct{}) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Logvf(log.Always, "signal '%s' received; attempting to shut down", sig)
		if onInterrupt != nil {
			go func() {
				onInterrupt()
				os.Exit(util.ExitFailure)
			}()
			// A second signal skips the graceful path.
			sig := <-sigChan
			log.Logvf(log.Always, "signal '%s' received again; forcing shutdown", sig)
		}
		os.Exit(util.ExitFailure)
	case <-finishedChan:
	}
}
