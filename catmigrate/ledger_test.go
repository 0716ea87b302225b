// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerLifecycle(t *testing.T) {
	ledger := NewLedger()

	t.Run("every phase starts pending in execution order", func(t *testing.T) {
		records := ledger.Records()
		require.Len(t, records, len(MigrationPhases))
		for i, record := range records {
			assert.Equal(t, MigrationPhases[i], record.Name)
			assert.Equal(t, PhasePending, record.Status)
		}
	})

	t.Run("begin/complete transitions", func(t *testing.T) {
		ledger.Begin(PhasePreFlight)
		assert.Equal(t, PhaseRunning, ledger.Status(PhasePreFlight))

		ledger.Complete(PhasePreFlight, "ready")
		assert.Equal(t, PhaseCompleted, ledger.Status(PhasePreFlight))

		records := ledger.Records()
		assert.Equal(t, "ready", records[0].Result)
		assert.False(t, records[0].StartTime.IsZero())
	})

	t.Run("begin/fail transitions record the error", func(t *testing.T) {
		ledger.Begin(PhaseBackup)
		ledger.Fail(PhaseBackup, errors.New("count mismatch"))

		records := ledger.Records()
		assert.Equal(t, PhaseFailed, records[1].Status)
		assert.Equal(t, "count mismatch", records[1].Error)
	})
}

func TestLedgerTerminalStatesAreFinal(t *testing.T) {
	ledger := NewLedger()

	ledger.Begin(PhasePreFlight)
	ledger.Complete(PhasePreFlight, "done")

	// None of these may move a terminal phase.
	ledger.Begin(PhasePreFlight)
	ledger.Fail(PhasePreFlight, errors.New("late failure"))
	ledger.Complete(PhasePreFlight, "second result")

	records := ledger.Records()
	assert.Equal(t, PhaseCompleted, records[0].Status)
	assert.Equal(t, "done", records[0].Result)
	assert.Empty(t, records[0].Error)
}

func TestLedgerIgnoresInvalidTransitions(t *testing.T) {
	ledger := NewLedger()

	// Completing or failing a phase that never began is a no-op.
	ledger.Complete(PhaseCleanup, "skipped ahead")
	assert.Equal(t, PhasePending, ledger.Status(PhaseCleanup))

	ledger.Fail(PhaseCleanup, errors.New("never ran"))
	assert.Equal(t, PhasePending, ledger.Status(PhaseCleanup))

	// Unknown phases report pending rather than panicking.
	assert.Equal(t, PhasePending, ledger.Status(PhaseName("no-such-phase")))
}

func TestLedgerRecordsReturnsACopy(t *testing.T) {
	ledger := NewLedger()
	records := ledger.Records()
	records[0].Status = PhaseFailed

	assert.Equal(t, PhasePending, ledger.Status(MigrationPhases[0]))
}
