// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/meridian-labs/catalog-migrate/common/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func sampleArtifact(t *testing.T) *BackupArtifact {
	artifact := &BackupArtifact{
		CreatedAt:  time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
		RunID:      "run-1",
		Database:   "jewelry",
		Collection: "products",
		Config: BackupConfig{
			ShadowCollection: "products_migration_shadow",
			BatchSize:        25,
			MinSuccessRate:   95,
			QueryBudgetMs:    300,
		},
	}
	for _, doc := range []bson.M{
		{"_id": "prod-1", "name": "Solaris Aura Ring", "basePrice": 1200.5},
		{"_id": "prod-2", "name": "Eterna Band"},
	} {
		extJSON, err := bson.MarshalExtJSON(doc, true, false)
		require.NoError(t, err)
		artifact.Documents = append(artifact.Documents, extJSON)
	}
	artifact.Count = int64(len(artifact.Documents))
	return artifact
}

func TestArtifactFileRoundTrip(t *testing.T) {
	dir, cleanup := testutil.MakeTempDir(t)
	defer cleanup()

	artifact := sampleArtifact(t)
	path := filepath.Join(dir, "backup-products-test.json")
	require.NoError(t, WriteArtifactFile(path, artifact))

	loaded, err := ReadArtifactFile(path)
	require.NoError(t, err)

	assert.Equal(t, artifact.RunID, loaded.RunID)
	assert.Equal(t, artifact.Database, loaded.Database)
	assert.Equal(t, artifact.Collection, loaded.Collection)
	assert.Equal(t, artifact.Config, loaded.Config)
	assert.Equal(t, artifact.Count, loaded.Count)
	require.Len(t, loaded.Documents, 2)

	// The extended JSON payloads survive byte-compatibly.
	var doc bson.M
	require.NoError(t, bson.UnmarshalExtJSON(loaded.Documents[0], true, &doc))
	assert.Equal(t, "Solaris Aura Ring", doc["name"])
	assert.Equal(t, 1200.5, doc["basePrice"])
}

func TestReadArtifactRejectsCorruptCount(t *testing.T) {
	dir, cleanup := testutil.MakeTempDir(t)
	defer cleanup()

	artifact := sampleArtifact(t)
	artifact.Count = 99
	path := filepath.Join(dir, "backup-corrupt.json")
	require.NoError(t, WriteArtifactFile(path, artifact))

	_, err := ReadArtifactFile(path)
	assert.ErrorContains(t, err, "corrupt")
}

func TestReadArtifactMissingFile(t *testing.T) {
	_, err := ReadArtifactFile("/nonexistent/backup.json")
	assert.Error(t, err)
}

func TestArtifactJSONShape(t *testing.T) {
	// The artifact must stay plain JSON so operators can inspect it with
	// standard tooling.
	data, err := json.Marshal(sampleArtifact(t))
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Contains(t, generic, "documents")
	assert.Contains(t, generic, "config")
	assert.Contains(t, generic, "documentCount")
}
