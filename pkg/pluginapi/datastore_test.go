package pluginapi_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gridcore/pkg/pluginapi"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestOpenDataStoreResolvesPackResources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "resources.json"), `{"voltage_bands":{"file":"bands.csv"}}`)
	writeFile(t, filepath.Join(dir, "bands.csv"), "band,min_kv,max_kv\nmv,1,52\nhv,52,300\n")

	store, err := pluginapi.OpenDataStore(pluginapi.DataStoreConfig{"pack": "mvnet"}, dir, nil)
	if err != nil {
		t.Fatalf("open data store: %v", err)
	}
	if got := store.Config()["pack"]; got != "mvnet" {
		t.Fatalf("config lost: %v", got)
	}

	table, err := store.ReadData("voltage_bands")
	if err != nil {
		t.Fatalf("read data: %v", err)
	}
	rows, err := table.Rows()
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 || rows[0]["band"] != "mv" || rows[0]["max_kv"] != int64(52) {
		t.Fatalf("unexpected rows %v", rows)
	}

	if _, err := store.ReadData("missing"); !errors.Is(err, pluginapi.ErrResourceNotMapped) {
		t.Fatalf("expected ErrResourceNotMapped, got %v", err)
	}
}

func TestOpenDataStoreRunsUpgradeHandlerOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bands.json"), `[{"band":"mv"}]`)

	calls := 0
	handler := func(store *pluginapi.DataStore) error {
		calls++
		mapping := `{"voltage_bands":{"file":"bands.json"}}`
		return os.WriteFile(filepath.Join(store.Path(), "resources.json"), []byte(mapping), 0o644)
	}

	store, err := pluginapi.OpenDataStore(nil, dir, handler)
	if err != nil {
		t.Fatalf("open data store: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
	if _, err := store.ReadData("voltage_bands"); err != nil {
		t.Fatalf("read after upgrade: %v", err)
	}
	// A second miss must not rerun the handler.
	if _, err := store.ReadData("still-missing"); err == nil {
		t.Fatalf("expected miss")
	}
	if calls != 1 {
		t.Fatalf("handler reran: %d", calls)
	}
}
