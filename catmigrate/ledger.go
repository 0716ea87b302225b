// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"time"

	"github.com/meridian-labs/catalog-migrate/common/log"
)

// PhaseName identifies one step of the migration sequence.
type PhaseName string

const (
	PhasePreFlight             PhaseName = "pre-flight"
	PhaseBackup                PhaseName = "backup"
	PhaseShadowCreation        PhaseName = "shadow-creation"
	PhaseDataTransformation    PhaseName = "data-transformation"
	PhaseIndexOptimization     PhaseName = "index-optimization"
	PhasePerformanceValidation PhaseName = "performance-validation"
	PhaseBlueGreenSwitch       PhaseName = "blue-green-switch"
	PhasePostValidation        PhaseName = "post-validation"
	PhaseCleanup               PhaseName = "cleanup"
)

// MigrationPhases lists every phase in execution order.
var MigrationPhases = []PhaseName{
	PhasePreFlight,
	PhaseBackup,
	PhaseShadowCreation,
	PhaseDataTransformation,
	PhaseIndexOptimization,
	PhasePerformanceValidation,
	PhaseBlueGreenSwitch,
	PhasePostValidation,
	PhaseCleanup,
}

// PhaseStatus is the lifecycle state of one phase.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
)

// PhaseRecord is one ledger entry. Result holds the phase's output payload
// on success; Error holds the failure message otherwise.
type PhaseRecord struct {
	Name      PhaseName     `json:"name"`
	Status    PhaseStatus   `json:"status"`
	StartTime time.Time     `json:"startTime,omitempty"`
	Duration  time.Duration `json:"durationMs"`
	Result    interface{}   `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Ledger tracks every phase of a migration run. All phases start pending;
// each transitions to running when entered and to completed or failed when
// exited. A terminal record is never revisited: attempts to transition it
// again are logged and ignored.
type Ledger struct {
	records []PhaseRecord
	index   map[PhaseName]int
}

// NewLedger creates a ledger with every migration phase pending.
func NewLedger() *Ledger {
	ledger := &Ledger{index: make(map[PhaseName]int, len(MigrationPhases))}
	for i, name := range MigrationPhases {
		ledger.records = append(ledger.records, PhaseRecord{Name: name, Status: PhasePending})
		ledger.index[name] = i
	}
	return ledger
}

// Begin marks a phase running and stamps its start time.
func (l *Ledger) Begin(name PhaseName) {
	record := l.record(name)
	if record == nil || record.Status != PhasePending {
		l.refuse(name, PhaseRunning)
		return
	}
	record.Status = PhaseRunning
	record.StartTime = time.Now()
}

// Complete marks a running phase completed and attaches its result payload.
func (l *Ledger) Complete(name PhaseName, result interface{}) {
	record := l.record(name)
	if record == nil || record.Status != PhaseRunning {
		l.refuse(name, PhaseCompleted)
		return
	}
	record.Status = PhaseCompleted
	record.Duration = time.Since(record.StartTime)
	record.Result = result
}

// Fail marks a running phase failed and records the error message.
func (l *Ledger) Fail(name PhaseName, err error) {
	record := l.record(name)
	if record == nil || record.Status != PhaseRunning {
		l.refuse(name, PhaseFailed)
		return
	}
	record.Status = PhaseFailed
	record.Duration = time.Since(record.StartTime)
	if err != nil {
		record.Error = err.Error()
	}
}

// Status returns the current status of a phase, or pending for an unknown
// name.
func (l *Ledger) Status(name PhaseName) PhaseStatus {
	if record := l.record(name); record != nil {
		return record.Status
	}
	return PhasePending
}

// Records returns a copy of every ledger entry in execution order.
func (l *Ledger) Records() []PhaseRecord {
	records := make([]PhaseRecord, len(l.records))
	copy(records, l.records)
	return records
}

func (l *Ledger) record(name PhaseName) *PhaseRecord {
	i, ok := l.index[name]
	if !ok {
		return nil
	}
	return &l.records[i]
}

func (l *Ledger) refuse(name PhaseName, to PhaseStatus) {
	log.Logvf(log.DebugLow, "ignoring phase transition %s -> %s: phase is %s",
		name, to, l.Status(name))
}
