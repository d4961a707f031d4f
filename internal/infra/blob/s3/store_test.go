package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"gridcore/internal/blob/core"
)

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket requirement")
	}
}

func TestOpenFromEnvRequiresBucket(t *testing.T) {
	t.Setenv("GRIDCORE_ARCHIVE_S3_BUCKET", "")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatalf("expected env bucket requirement")
	}
}

func TestMockPutGetRoundTrip(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	payload := `{"schema_version":"v2.0.0"}`
	info, err := store.Put(ctx, "exports/model.json", strings.NewReader(payload), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "exports/model.json" {
		t.Fatalf("unexpected key %s", info.Key)
	}
	if _, err := store.Put(ctx, "exports/model.json", strings.NewReader(payload), core.PutOptions{}); err == nil {
		t.Fatalf("expected create-only violation")
	}

	got, rc, err := store.Get(ctx, "exports/model.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != payload {
		t.Fatalf("payload mismatch: %s", body)
	}
	if got.Size != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", got.Size)
	}
}

func TestMockListAndDelete(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	for _, key := range []string{"exports/a.json", "exports/b.json", "misc/c.json"} {
		if _, err := store.Put(ctx, key, strings.NewReader("{}"), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "exports/a.json" || infos[1].Key != "exports/b.json" {
		t.Fatalf("unexpected listing %v", infos)
	}
	existed, err := store.Delete(ctx, "exports/a.json")
	if err != nil || !existed {
		t.Fatalf("delete: %v %v", existed, err)
	}
	if _, err := store.Head(ctx, "exports/a.json"); err == nil {
		t.Fatalf("expected head miss after delete")
	}
}

func TestMockPresignGet(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.PresignURL(ctx, "exports/a.json", core.SignedURLOptions{Method: "DELETE"}); err == nil {
		t.Fatalf("expected unsupported method")
	}
	u, err := store.PresignURL(ctx, "exports/a.json", core.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(u, "exports/a.json") {
		t.Fatalf("unexpected url %s", u)
	}
}
