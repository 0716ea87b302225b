// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"fmt"

	"github.com/meridian-labs/catalog-migrate/common/log"
	"github.com/pkg/errors"
)

// CriticalRollbackError marks a rollback that itself failed. There is no
// second-level fallback: the database is left in a state that needs manual
// operator intervention using the backup artifact.
type CriticalRollbackError struct {
	BackupCollection string
	Err              error
}

func (e *CriticalRollbackError) Error() string {
	return fmt.Sprintf(
		"CRITICAL: rollback failed, manual intervention required using backup collection %s: %v",
		e.BackupCollection, e.Err)
}

func (e *CriticalRollbackError) Unwrap() error {
	return e.Err
}

// Rollback restores the pre-switch state: it drops whatever currently holds
// the live collection name, then renames the recorded backup collection
// back into place. It requires that the switch phase already renamed the
// live collection away.
func (cm *CatalogMigrate) Rollback() error {
	if cm.backupCollection == "" {
		return errors.New("cannot roll back: no backup collection was recorded")
	}

	log.Logvf(log.Always, "EMERGENCY ROLLBACK: restoring %s from %s",
		cm.liveName(), cm.backupCollection)

	if err := cm.SessionProvider.DropCollection(cm.dbName(), cm.liveName()); err != nil {
		criticalErr := &CriticalRollbackError{
			BackupCollection: cm.backupCollection,
			Err:              errors.Wrap(err, "error dropping failed live collection"),
		}
		log.Logvf(log.Always, "%v", criticalErr)
		return criticalErr
	}

	if err := cm.SessionProvider.RenameCollection(
		cm.dbName(), cm.backupCollection, cm.liveName(), false,
	); err != nil {
		criticalErr := &CriticalRollbackError{
			BackupCollection: cm.backupCollection,
			Err:              errors.Wrap(err, "error renaming backup collection back to live"),
		}
		log.Logvf(log.Always, "%v", criticalErr)
		return criticalErr
	}

	cm.backupCollection = ""
	log.Logvf(log.Always, "rollback complete: %s restored", cm.liveName())
	return nil
}
