package core

import (
	"fmt"
	"os"

	"gridcore/internal/infra/persistence/memory"
	"gridcore/internal/infra/persistence/postgres"
	"gridcore/internal/infra/persistence/sqlite"
	"gridcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenModelStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	GRIDCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	GRIDCORE_SQLITE_PATH: path to sqlite file (default ./gridcore.db)
//	GRIDCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenModelStore() (domain.ModelStore, error) {
	driver := os.Getenv("GRIDCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		path := os.Getenv("GRIDCORE_SQLITE_PATH")
		return sqlite.NewStore(path)
	case StoragePostgres:
		dsn := os.Getenv("GRIDCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
