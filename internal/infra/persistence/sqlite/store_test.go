package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"gridcore/pkg/domain"
)

func TestStorePersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	store, err := NewStore(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	ctx := context.Background()
	if err := store.RunInTransaction(ctx, func(tx domain.ModelTx) error {
		tx.SetSchemaVersion("v2.1.0")
		_, err := tx.PutComponent(domain.Record{Type: "bus", ID: "b1", Fields: map[string]any{
			"name":       "north",
			"voltage_kv": 110.0,
		}})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if err := reloaded.View(ctx, func(view domain.ModelView) error {
		if got := view.SchemaVersion(); got != "v2.1.0" {
			t.Fatalf("expected persisted schema version, got %s", got)
		}
		records := view.ListComponents("bus")
		if len(records) != 1 {
			t.Fatalf("expected 1 bus, got %d", len(records))
		}
		if got := records[0].Fields["voltage_kv"]; got != 110.0 {
			t.Fatalf("expected voltage to survive reload, got %v", got)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestStoreFailedTransactionPersistsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	if err := store.RunInTransaction(ctx, func(tx domain.ModelTx) error {
		_, err := tx.PutComponent(domain.Record{Fields: map[string]any{"name": "typeless"}})
		return err
	}); err == nil {
		t.Fatalf("expected failure for typeless record")
	}

	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count state rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no persisted rows after failed transaction, got %d", count)
	}
}

func TestStoreDropsStaleBuckets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	if err := store.RunInTransaction(ctx, func(tx domain.ModelTx) error {
		_, err := tx.PutComponent(domain.Record{Type: "line", ID: "l1", Fields: map[string]any{}})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.RunInTransaction(ctx, func(tx domain.ModelTx) error {
		tx.RestoreSnapshot(domain.Snapshot{
			SchemaVersion: "v2.0.0",
			Components: map[string][]domain.Record{
				"branch": {{Type: "branch", ID: "br1", Fields: map[string]any{}}},
			},
		})
		return nil
	}); err != nil {
		t.Fatalf("restore: %v", err)
	}

	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state WHERE bucket = 'line'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected stale line bucket removed, found %d rows", count)
	}
}

func TestStoreDefaultPath(t *testing.T) {
	t.Chdir(t.TempDir())
	store, err := NewStore("")
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if store.Path() != "gridcore.db" {
		t.Fatalf("expected default path, got %s", store.Path())
	}
}
