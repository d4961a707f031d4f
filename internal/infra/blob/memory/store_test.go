package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"gridcore/internal/blob/core"
)

func TestRoundTripAndCreateOnly(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Put(ctx, "exports/a.json", strings.NewReader(`{"v":1}`), core.PutOptions{ContentType: "application/json"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "exports/a.json", strings.NewReader("{}"), core.PutOptions{}); err == nil {
		t.Fatalf("expected create-only violation")
	}
	info, rc, err := store.Get(ctx, "exports/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"v":1}` {
		t.Fatalf("payload mismatch: %s", body)
	}
	if info.ContentType != "application/json" {
		t.Fatalf("content type lost: %s", info.ContentType)
	}
}

func TestHeadMissingKey(t *testing.T) {
	store := New()
	if _, err := store.Head(context.Background(), "absent"); err == nil {
		t.Fatalf("expected miss")
	}
}

func TestListPrefixAndDelete(t *testing.T) {
	store := New()
	ctx := context.Background()
	for _, key := range []string{"runs/1.json", "runs/2.json", "misc/x.json"} {
		if _, err := store.Put(ctx, key, strings.NewReader("{}"), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "runs/1.json" {
		t.Fatalf("unexpected listing %v", infos)
	}
	existed, err := store.Delete(ctx, "runs/1.json")
	if err != nil || !existed {
		t.Fatalf("delete: %v %v", existed, err)
	}
	existed, _ = store.Delete(ctx, "runs/1.json")
	if existed {
		t.Fatalf("expected second delete to miss")
	}
}

func TestPresignUnsupported(t *testing.T) {
	store := New()
	if _, err := store.PresignURL(context.Background(), "k", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
