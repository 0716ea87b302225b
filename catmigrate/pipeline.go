// Copyright (C) Meridian Labs, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package catmigrate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meridian-labs/catalog-migrate/common/db"
	"github.com/meridian-labs/catalog-migrate/common/log"
	"github.com/meridian-labs/catalog-migrate/common/util"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/tomb.v2"
)

// maxRecordedFailures caps how many per-document failures are kept for the
// report; the counters keep exact totals regardless.
const maxRecordedFailures = 100

// progressInterval is how often the reader logs throughput.
const progressInterval = 1000

// FailedDocument identifies one source document that could not be migrated.
type FailedDocument struct {
	ID     interface{} `json:"id"`
	Reason string      `json:"reason"`
}

// TransformStats summarizes the data-transformation phase.
type TransformStats struct {
	Sourced      int64            `json:"sourced"`
	Transformed  int64            `json:"transformed"`
	Inserted     int64            `json:"inserted"`
	SuccessRate  float64          `json:"successRate"`
	InsertedRate float64          `json:"insertedRate"`
	Failures     []FailedDocument `json:"failures,omitempty"`
}

// MeetsFloor reports whether the phase cleared the minimum success rate.
// Both rates must clear it: a document that transformed cleanly but never
// reached the shadow collection is still missing from the migration.
func (s *TransformStats) MeetsFloor(min float64) bool {
	return s.SuccessRate >= min && s.InsertedRate >= min
}

// transformPipeline streams every source document through transform and
// validation into the shadow collection. A reader goroutine feeds decoded
// documents to a bounded set of insertion workers; each worker owns its own
// buffered bulk inserter so batches never interleave.
type transformPipeline struct {
	source      *mongo.Collection
	shadow      *mongo.Collection
	batchSize   int
	numWorkers  int
	stopOnError bool
	now         time.Time

	sourced     int64
	transformed int64
	inserted    int64

	failureMu sync.Mutex
	failures  []FailedDocument
	failed    int64
}

func newTransformPipeline(
	source, shadow *mongo.Collection,
	batchSize, numWorkers int,
	stopOnError bool,
	now time.Time,
) *transformPipeline {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &transformPipeline{
		source:      source,
		shadow:      shadow,
		batchSize:   batchSize,
		numWorkers:  numWorkers,
		stopOnError: stopOnError,
		now:         now,
	}
}

// run drains the source collection and returns stats for the phase gate.
// The returned error covers pipeline-fatal conditions only; per-document
// failures are recorded in the stats.
func (p *transformPipeline) run(ctx context.Context) (*TransformStats, error) {
	cursor, err := p.source.Find(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(err, "error reading source collection")
	}
	defer cursor.Close(ctx)

	docChan := make(chan bson.Raw, p.batchSize*p.numWorkers)

	workers := &tomb.Tomb{}
	for i := 0; i < p.numWorkers; i++ {
		workers.Go(func() error {
			return p.insertionWorker(workers, docChan)
		})
	}

	readErr := func() error {
		defer close(docChan)
		started := time.Now()
		for cursor.Next(ctx) {
			raw := make(bson.Raw, len(cursor.Current))
			copy(raw, cursor.Current)
			if n := atomic.AddInt64(&p.sourced, 1); n%progressInterval == 0 {
				elapsed := time.Since(started).Seconds()
				log.Logvf(log.Info, "migrated %d documents (%.0f docs/sec)",
					n, float64(n)/elapsed)
			}
			select {
			case docChan <- raw:
			case <-ctx.Done():
				return util.ErrTerminated
			case <-workers.Dying():
				return nil
			}
		}
		return cursor.Err()
	}()

	workErr := workers.Wait()
	if readErr != nil {
		return nil, errors.Wrap(readErr, "error iterating source collection")
	}
	if workErr != nil {
		return nil, workErr
	}

	return p.stats(), nil
}

func (p *transformPipeline) insertionWorker(workers *tomb.Tomb, docChan <-chan bson.Raw) error {
	inserter := db.NewUnorderedBufferedBulkInserter(p.shadow, p.batchSize)

	for {
		select {
		case raw, ok := <-docChan:
			if !ok {
				return p.flush(inserter)
			}
			if err := p.processDocument(raw, inserter); err != nil {
				return err
			}
		case <-workers.Dying():
			return nil
		}
	}
}

func (p *transformPipeline) processDocument(raw bson.Raw, inserter *db.BufferedBulkInserter) error {
	dto, err := transformRaw(raw, p.now)
	if err != nil {
		p.recordFailure(err)
		if p.stopOnError {
			return err
		}
		return nil
	}
	atomic.AddInt64(&p.transformed, 1)

	result, err := inserter.Insert(dto)
	p.accountBulkResult(result, err)
	if err != nil && p.stopOnError {
		return err
	}
	return nil
}

func (p *transformPipeline) flush(inserter *db.BufferedBulkInserter) error {
	result, err := inserter.Flush()
	p.accountBulkResult(result, err)
	if err != nil && p.stopOnError {
		return err
	}
	return nil
}

// accountBulkResult credits inserted documents and records partial bulk
// failures. Ignorable write errors (duplicate keys, document validation)
// count against individual documents, not the phase.
func (p *transformPipeline) accountBulkResult(result *mongo.BulkWriteResult, err error) {
	if result != nil {
		atomic.AddInt64(&p.inserted, result.InsertedCount)
	}
	if err == nil {
		return
	}
	if bulkErr, ok := err.(mongo.BulkWriteException); ok {
		for _, writeErr := range bulkErr.WriteErrors {
			p.recordFailure(errors.Errorf("bulk insert error: %s", writeErr.Message))
		}
		return
	}
	p.recordFailure(errors.Wrap(err, "bulk insert error"))
}

func (p *transformPipeline) recordFailure(err error) {
	atomic.AddInt64(&p.failed, 1)

	var id interface{}
	if terr, ok := err.(*TransformError); ok {
		id = terr.DocID
	}
	log.Logvf(log.DebugLow, "document migration failure: %v", err)

	p.failureMu.Lock()
	defer p.failureMu.Unlock()
	if len(p.failures) < maxRecordedFailures {
		p.failures = append(p.failures, FailedDocument{ID: id, Reason: err.Error()})
	}
}

func (p *transformPipeline) stats() *TransformStats {
	stats := &TransformStats{
		Sourced:     atomic.LoadInt64(&p.sourced),
		Transformed: atomic.LoadInt64(&p.transformed),
		Inserted:    atomic.LoadInt64(&p.inserted),
		Failures:    p.failures,
	}
	if stats.Sourced > 0 {
		stats.SuccessRate = float64(stats.Transformed) / float64(stats.Sourced) * 100
		stats.InsertedRate = float64(stats.Inserted) / float64(stats.Sourced) * 100
	}
	return stats
}

// transformRaw decodes one source document and runs it through transform
// and schema validation. Every failure mode comes back as a
// *TransformError carrying the document identifier.
func transformRaw(raw bson.Raw, now time.Time) (*ProductListDTO, error) {
	var legacy LegacyProduct
	if err := bson.Unmarshal(raw, &legacy); err != nil {
		var id interface{}
		if idValue, lookupErr := raw.LookupErr("_id"); lookupErr == nil {
			id = idValue
		}
		return nil, &TransformError{DocID: id, Err: errors.Wrap(err, "undecodable document")}
	}

	dto, err := Transform(&legacy, now)
	if err != nil {
		return nil, err
	}
	if err := ValidateDTO(dto); err != nil {
		return nil, &TransformError{DocID: legacy.ID, Err: err}
	}
	return dto, nil
}
