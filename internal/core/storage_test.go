package core

import (
	"context"
	"path/filepath"
	"testing"

	"gridcore/pkg/domain"
)

func TestOpenModelStoreMemoryDriver(t *testing.T) {
	t.Setenv("GRIDCORE_STORAGE_DRIVER", string(StorageMemory))
	store, err := OpenModelStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	err = store.View(context.Background(), func(view domain.ModelView) error {
		if view.SchemaVersion() != domain.BaselineSchemaVersion {
			t.Fatalf("unexpected baseline version %s", view.SchemaVersion())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestOpenModelStoreSQLiteDriver(t *testing.T) {
	t.Setenv("GRIDCORE_STORAGE_DRIVER", string(StorageSQLite))
	t.Setenv("GRIDCORE_SQLITE_PATH", filepath.Join(t.TempDir(), "grid.db"))
	store, err := OpenModelStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenModelStoreDefaultsToSQLite(t *testing.T) {
	t.Setenv("GRIDCORE_STORAGE_DRIVER", "")
	t.Setenv("GRIDCORE_SQLITE_PATH", filepath.Join(t.TempDir(), "default.db"))
	store, err := OpenModelStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenModelStoreUnknownDriver(t *testing.T) {
	t.Setenv("GRIDCORE_STORAGE_DRIVER", "etcd")
	if _, err := OpenModelStore(); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
