// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package objtable keeps the records of exported objects, addressable both
// by object id and by the identity of the implementation object.
package objtable

import (
	"sync"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/dgc/pkg/dgcid"
	"storj.io/dgc/pkg/liveness"
	"storj.io/dgc/private/lifecycle"
)

var (
	mon = monkit.Package()

	// Error is the error class for object table errors.
	Error = errs.Class("objtable")

	// ErrDuplicate is returned when either key of a record is already in use.
	ErrDuplicate = Error.New("object already registered")
)

// Table maps object ids and implementation identities to records.
type Table struct {
	log     *zap.Logger
	spawner lifecycle.Spawner

	mu    sync.Mutex
	byID  map[dgcid.ObjectID]*Record
	byKey map[liveness.Key]*Record
}

// New creates an empty table. Unreferenced notifications of its records are
// started with spawner.
func New(log *zap.Logger, spawner lifecycle.Spawner) *Table {
	return &Table{
		log:     log,
		spawner: spawner,
		byID:    map[dgcid.ObjectID]*Record{},
		byKey:   map[liveness.Key]*Record{},
	}
}

// Add registers record under its id and its reference key.
func (table *Table) Add(record *Record) error {
	table.mu.Lock()
	defer table.mu.Unlock()

	key := record.Ref.Key()
	if _, ok := table.byID[record.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := table.byKey[key]; ok {
		return ErrDuplicate
	}

	record.log = table.log.With(zap.Stringer("object", record.ID))
	record.spawner = table.spawner

	table.byID[record.ID] = record
	table.byKey[key] = record
	mon.IntVal("objtable_records").Observe(int64(len(table.byID))) //mon:locked
	return nil
}

// Get returns the record with the given id or nil.
func (table *Table) Get(id dgcid.ObjectID) *Record {
	table.mu.Lock()
	defer table.mu.Unlock()
	return table.byID[id]
}

// Lookup returns the record whose implementation has the given identity or nil.
func (table *Table) Lookup(key liveness.Key) *Record {
	table.mu.Lock()
	defer table.mu.Unlock()
	return table.byKey[key]
}

// Remove drops record from the table. It returns false when record is not
// the registered record for its keys.
func (table *Table) Remove(record *Record) bool {
	table.mu.Lock()
	defer table.mu.Unlock()

	if table.byID[record.ID] != record {
		return false
	}
	delete(table.byID, record.ID)
	if key := record.Ref.Key(); table.byKey[key] == record {
		delete(table.byKey, key)
	}
	return true
}

// Len returns the number of records.
func (table *Table) Len() int {
	table.mu.Lock()
	defer table.mu.Unlock()
	return len(table.byID)
}

// Records returns a snapshot of all records.
func (table *Table) Records() []*Record {
	table.mu.Lock()
	defer table.mu.Unlock()

	records := make([]*Record, 0, len(table.byID))
	for _, record := range table.byID {
		records = append(records, record)
	}
	return records
}
