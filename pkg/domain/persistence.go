package domain

import "context"

// ModelView provides read-only access to store state within a transaction or
// view scope.
type ModelView interface {
	SchemaVersion() string
	ListComponents(componentType string) []Record
	ComponentTypes() []string
	Snapshot() Snapshot
}

// ModelTx exposes the mutations a persistence implementation must support
// within an atomic scope.
type ModelTx interface {
	ModelView
	SetSchemaVersion(version string)
	PutComponent(record Record) (Record, error)
	ReplaceComponents(componentType string, records []Record)
	DeleteComponent(componentType, id string) error
	RestoreSnapshot(snapshot Snapshot)
}

// ModelStore is a minimal abstraction over durable model backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type ModelStore interface {
	RunInTransaction(ctx context.Context, fn func(ModelTx) error) error
	View(ctx context.Context, fn func(ModelView) error) error
	Close() error
}
