// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertRawRejectsOversizedDocuments(t *testing.T) {
	// the size check fires before any buffering, so no collection is needed
	bb := NewUnorderedBufferedBulkInserter(nil, 10)

	result, err := bb.InsertRaw(make([]byte, MaxBSONSize+1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum BSON size")
	assert.Nil(t, result)
	assert.Equal(t, 0, bb.docCount)
	assert.Equal(t, 0, bb.byteCount)
}

func TestInsertRawBuffersUntilDocLimit(t *testing.T) {
	bb := NewUnorderedBufferedBulkInserter(nil, 10)

	doc := make([]byte, 64)
	result, err := bb.InsertRaw(doc)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 1, bb.docCount)
	assert.Equal(t, 64, bb.byteCount)
}
