package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	t.Run("Get on missing key", func(t *testing.T) {
		_, found, err := m.Get(ctx, "nope")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if found {
			t.Error("expected found=false for a missing key")
		}
	})

	t.Run("Set then Get", func(t *testing.T) {
		if err := m.Set(ctx, "key1", []byte("value1")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		v, found, err := m.Get(ctx, "key1")
		if err != nil || !found {
			t.Fatalf("expected found=true, got found=%v err=%v", found, err)
		}
		if string(v) != "value1" {
			t.Errorf("got %q, want value1", v)
		}
	})
}

func TestMemorySetNX(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ok, err := m.SetNX(ctx, "guard", []byte("1"), time.Hour)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = m.SetNX(ctx, "guard", []byte("2"), time.Hour)
	if err != nil || ok {
		t.Fatalf("expected second SetNX to fail while key still exists, got ok=%v err=%v", ok, err)
	}

	if err := m.Delete(ctx, "guard"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err = m.SetNX(ctx, "guard", []byte("3"), time.Hour)
	if err != nil || !ok {
		t.Fatalf("expected SetNX to succeed after delete, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryRenameMissingSourceIsNoop(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Rename(ctx, "missing", "dest"); err != nil {
		t.Errorf("Rename of a missing source key must not error, got %v", err)
	}
	if exists, _ := m.Exists(ctx, "dest"); exists {
		t.Error("Rename of a missing source key must not create the destination")
	}
}

func TestMemoryRenameMovesSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.SAdd(ctx, "src", "a", "b")
	if err := m.Rename(ctx, "src", "dst"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	members, _ := m.SMembers(ctx, "dst")
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	if exists, _ := m.Exists(ctx, "src"); exists {
		t.Error("source key must no longer exist after rename")
	}
}

func TestMemorySUnionStore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.SAdd(ctx, "a", "x", "y")
	m.SAdd(ctx, "b", "y", "z")
	if err := m.SUnionStore(ctx, "dest", "a", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	members, _ := m.SMembers(ctx, "dest")
	if len(members) != 3 {
		t.Fatalf("got %d members, want 3 (x, y, z)", len(members))
	}
}

func TestMemoryHashOperations(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.HSet(ctx, "h", "f1", "v1")
	m.HSet(ctx, "h", "f2", "v2")

	all, err := m.HGetAll(ctx, "h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 || all["f1"] != "v1" || all["f2"] != "v2" {
		t.Fatalf("unexpected hash contents: %+v", all)
	}

	if err := m.HDel(ctx, "h", "f1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	all, _ = m.HGetAll(ctx, "h")
	if _, ok := all["f1"]; ok {
		t.Error("f1 should have been deleted")
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.mu.Lock()
	m.expiry["k"] = time.Now().Add(-time.Second)
	m.mu.Unlock()

	_, found, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("an expired key must not be returned")
	}
}
