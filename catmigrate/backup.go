// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/meridian-labs/catalog-migrate/common/db"
	"github.com/meridian-labs/catalog-migrate/common/log"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// backupTimeFormat stamps artifact filenames and backup collection names.
// Filesystem-safe: no colons.
const backupTimeFormat = "2006-01-02T15-04-05"

// BackupArtifact is the on-disk snapshot of the source collection taken
// before any mutation. It is the rollback source of truth alongside the
// renamed backup collection, and is retained until the operator deletes it.
type BackupArtifact struct {
	CreatedAt  time.Time         `json:"createdAt"`
	RunID      string            `json:"runId"`
	Database   string            `json:"database"`
	Collection string            `json:"collection"`
	Config     BackupConfig      `json:"config"`
	Count      int64             `json:"documentCount"`
	Documents  []json.RawMessage `json:"documents"`
}

// BackupConfig records the migration settings in effect when the snapshot
// was taken, so a later restore can be audited against them.
type BackupConfig struct {
	ShadowCollection string  `json:"shadowCollection"`
	BatchSize        int     `json:"batchSize"`
	MinSuccessRate   float64 `json:"minSuccessRate"`
	QueryBudgetMs    int64   `json:"queryBudgetMs"`
}

// WriteBackup snapshots every document in the collection into a timestamped
// JSON artifact under dir, then verifies the artifact count against the
// live count. Documents are stored as canonical extended JSON so types
// survive the round trip.
func WriteBackup(
	ctx context.Context,
	coll *mongo.Collection,
	dir, runID string,
	cfg BackupConfig,
) (string, *BackupArtifact, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, errors.Wrapf(err, "error creating backup directory %s", dir)
	}

	artifact := &BackupArtifact{
		CreatedAt:  time.Now(),
		RunID:      runID,
		Database:   coll.Database().Name(),
		Collection: coll.Name(),
		Config:     cfg,
	}

	cursor, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return "", nil, errors.Wrap(err, "error reading collection for backup")
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		extJSON, err := bson.MarshalExtJSON(cursor.Current, true, false)
		if err != nil {
			return "", nil, errors.Wrap(err, "error encoding document for backup")
		}
		artifact.Documents = append(artifact.Documents, extJSON)
	}
	if err := cursor.Err(); err != nil {
		return "", nil, errors.Wrap(err, "error iterating collection for backup")
	}
	artifact.Count = int64(len(artifact.Documents))

	liveCount, err := coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return "", nil, errors.Wrap(err, "error counting collection for backup verification")
	}
	if liveCount != artifact.Count {
		return "", nil, errors.Errorf(
			"backup verification failed: artifact holds %d documents but collection holds %d",
			artifact.Count, liveCount)
	}

	path := filepath.Join(dir, fmt.Sprintf("backup-%s-%s.json",
		coll.Name(), artifact.CreatedAt.Format(backupTimeFormat)))
	if err := WriteArtifactFile(path, artifact); err != nil {
		return "", nil, err
	}

	log.Logvf(log.Info, "backed up %d documents to %s", artifact.Count, path)
	return path, artifact, nil
}

// WriteArtifactFile persists a backup artifact as indented JSON.
func WriteArtifactFile(path string, artifact *BackupArtifact) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return errors.Wrap(err, "error encoding backup artifact")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "error writing backup artifact %s", path)
	}
	return nil
}

// ReadArtifactFile loads a backup artifact written by WriteArtifactFile.
func ReadArtifactFile(path string) (*BackupArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading backup artifact %s", path)
	}
	artifact := &BackupArtifact{}
	if err := json.Unmarshal(data, artifact); err != nil {
		return nil, errors.Wrapf(err, "error decoding backup artifact %s", path)
	}
	if int64(len(artifact.Documents)) != artifact.Count {
		return nil, errors.Errorf(
			"backup artifact %s is corrupt: header says %d documents, found %d",
			path, artifact.Count, len(artifact.Documents))
	}
	return artifact, nil
}

// RestoreBackup inserts every document from an artifact into the named
// collection. Duplicate keys are tolerated so a partially-restored
// collection can be resumed.
func RestoreBackup(
	ctx context.Context,
	session *db.SessionProvider,
	artifact *BackupArtifact,
	dbName, collName string,
	batchSize int,
) (int64, error) {
	coll := session.DB(dbName).Collection(collName)
	inserter := db.NewUnorderedBufferedBulkInserter(coll, batchSize)

	var restored int64
	for _, extJSON := range artifact.Documents {
		var doc bson.D
		if err := bson.UnmarshalExtJSON(extJSON, true, &doc); err != nil {
			return restored, errors.Wrap(err, "error decoding backup document")
		}
		if _, err := inserter.Insert(doc); err != nil {
			if filtered := db.FilterError(false, err); filtered != nil {
				return restored, errors.Wrap(filtered, "error restoring backup document")
			}
		}
		restored++
	}
	if _, err := inserter.Flush(); err != nil {
		if filtered := db.FilterError(false, err); filtered != nil {
			return restored, errors.Wrap(filtered, "error flushing restored documents")
		}
	}

	log.Logvf(log.Info, "restored %d documents into %s.%s", restored, dbName, collName)
	return restored, nil
}
