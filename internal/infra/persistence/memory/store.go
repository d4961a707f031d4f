// Package memory provides an in-memory implementation of the model store
// used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"gridcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the
// domain persistence interface.
var _ domain.ModelStore = (*Store)(nil)

type (
	// Record aliases domain.Record for in-memory persistence operations.
	Record = domain.Record
	// Snapshot aliases domain.Snapshot captured by exports.
	Snapshot = domain.Snapshot
	// ModelTx aliases domain.ModelTx representing a mutable unit of work.
	ModelTx = domain.ModelTx
	// ModelView aliases domain.ModelView providing read-only state.
	ModelView = domain.ModelView
)

type memoryState struct {
	schemaVersion string
	components    map[string][]Record
}

func newMemoryState(schemaVersion string) memoryState {
	return memoryState{
		schemaVersion: schemaVersion,
		components:    make(map[string][]Record),
	}
}

func (st memoryState) clone() memoryState {
	out := newMemoryState(st.schemaVersion)
	for bucket, records := range st.components {
		copied := make([]Record, len(records))
		for i, rec := range records {
			copied[i] = rec.Clone()
		}
		out.components[bucket] = copied
	}
	return out
}

func (st memoryState) snapshot() Snapshot {
	snap := Snapshot{
		SchemaVersion: st.schemaVersion,
		Components:    make(map[string][]Record, len(st.components)),
	}
	for bucket, records := range st.components {
		copied := make([]Record, len(records))
		for i, rec := range records {
			copied[i] = rec.Clone()
		}
		snap.Components[bucket] = copied
	}
	return snap
}

func stateFromSnapshot(snap Snapshot) memoryState {
	version := snap.SchemaVersion
	if version == "" {
		version = domain.BaselineSchemaVersion
	}
	state := newMemoryState(version)
	for bucket, records := range snap.Components {
		copied := make([]Record, len(records))
		for i, rec := range records {
			copied[i] = rec.Clone()
		}
		state.components[bucket] = copied
	}
	return state
}

// Store keeps the full model in process memory. Transactions clone the
// state, mutate the clone, and commit it back on success, so a failed
// transaction leaves the store untouched.
type Store struct {
	mu    sync.RWMutex
	state memoryState
}

// NewStore constructs an empty store at the baseline schema version.
func NewStore() *Store {
	return &Store{state: newMemoryState(domain.BaselineSchemaVersion)}
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState captures a point-in-time snapshot of the store state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snapshot()
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateFromSnapshot(snapshot)
}

type transaction struct {
	state memoryState
}

var _ domain.ModelTx = (*transaction)(nil)

func (tx *transaction) SchemaVersion() string { return tx.state.schemaVersion }

func (tx *transaction) SetSchemaVersion(version string) { tx.state.schemaVersion = version }

func (tx *transaction) ListComponents(componentType string) []Record {
	records := tx.state.components[componentType]
	out := make([]Record, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}
	return out
}

func (tx *transaction) ComponentTypes() []string {
	out := make([]string, 0, len(tx.state.components))
	for bucket := range tx.state.components {
		out = append(out, bucket)
	}
	sort.Strings(out)
	return out
}

func (tx *transaction) Snapshot() Snapshot { return tx.state.snapshot() }

func (tx *transaction) PutComponent(record Record) (Record, error) {
	if record.Type == "" {
		return Record{}, fmt.Errorf("component record needs a type")
	}
	stored := record.Clone()
	if stored.ID == "" {
		stored.ID = newID()
	}
	bucket := tx.state.components[record.Type]
	for i, existing := range bucket {
		if existing.ID == stored.ID {
			bucket[i] = stored
			return stored.Clone(), nil
		}
	}
	tx.state.components[record.Type] = append(bucket, stored)
	return stored.Clone(), nil
}

func (tx *transaction) ReplaceComponents(componentType string, records []Record) {
	copied := make([]Record, len(records))
	for i, rec := range records {
		copied[i] = rec.Clone()
		copied[i].Type = componentType
	}
	tx.state.components[componentType] = copied
}

func (tx *transaction) DeleteComponent(componentType, id string) error {
	bucket := tx.state.components[componentType]
	for i, existing := range bucket {
		if existing.ID == id {
			tx.state.components[componentType] = append(bucket[:i], bucket[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("component %s/%s not found", componentType, id)
}

func (tx *transaction) RestoreSnapshot(snapshot Snapshot) {
	tx.state = stateFromSnapshot(snapshot)
}

// RunInTransaction clones the state, applies fn to the clone, and commits
// the clone when fn returns nil. Any error from fn discards the clone.
func (s *Store) RunInTransaction(_ context.Context, fn func(domain.ModelTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View runs fn over a read-only clone of the current state.
func (s *Store) View(_ context.Context, fn func(domain.ModelView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(&transaction{state: snapshot})
}

// Close implements domain.ModelStore; the in-memory store holds no external
// resources.
func (s *Store) Close() error { return nil }
