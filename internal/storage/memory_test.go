package storage

import (
	"context"
	"testing"
)

func TestMemoryStoreReadWriteRemove(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Read(ctx, "memory", "pref", "user-1"); err != ErrNotFound {
		t.Fatalf("Read() before write error = %v, want ErrNotFound", err)
	}

	rec := &Record{
		Path: []string{"memory", "pref", "user-1"},
		Kind: "preference",
		Data: []byte(`{"editor":"vim"}`),
	}
	if err := store.Write(ctx, rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := store.Read(ctx, "memory", "pref", "user-1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Kind != "preference" || string(got.Data) != `{"editor":"vim"}` {
		t.Fatalf("Read() = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("Read() expected UpdatedAt to be stamped")
	}

	if err := store.Remove(ctx, "memory", "pref", "user-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := store.Read(ctx, "memory", "pref", "user-1"); err != ErrNotFound {
		t.Fatalf("Read() after remove error = %v, want ErrNotFound", err)
	}

	if err := store.Remove(ctx, "memory", "pref", "nonexistent"); err != nil {
		t.Fatalf("Remove() of absent path should not error, got %v", err)
	}
}

func TestMemoryStoreWriteIsUpsert(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	path := []string{"memory", "style", "user-1"}
	if err := store.Write(ctx, &Record{Path: path, Kind: "style", Data: []byte(`{"v":1}`)}); err != nil {
		t.Fatalf("Write() first error = %v", err)
	}
	if err := store.Write(ctx, &Record{Path: path, Kind: "style", Data: []byte(`{"v":2}`)}); err != nil {
		t.Fatalf("Write() second error = %v", err)
	}

	got, err := store.Read(ctx, path...)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got.Data) != `{"v":2}` {
		t.Fatalf("Read() = %s, want second write to win", got.Data)
	}
}

func TestMemoryStoreListByPrefix(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	paths := [][]string{
		{"memory", "pref", "user-1", "editor"},
		{"memory", "pref", "user-1", "shell"},
		{"memory", "pref", "user-2", "editor"},
		{"memory", "preferences", "legacy"},
		{"causal", "decision", "dec-1"},
	}
	for _, p := range paths {
		if err := store.Write(ctx, &Record{Path: p, Kind: "x", Data: []byte("{}")}); err != nil {
			t.Fatalf("Write(%v) error = %v", p, err)
		}
	}

	got, err := store.List(ctx, "memory", "pref", "user-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List() returned %d records, want 2 (got %v)", len(got), got)
	}
	if got[0].Path[len(got[0].Path)-1] != "editor" || got[1].Path[len(got[1].Path)-1] != "shell" {
		t.Fatalf("List() unexpected order: %+v", got)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() with empty prefix error = %v", err)
	}
	if len(all) != len(paths) {
		t.Fatalf("List() with empty prefix returned %d, want %d", len(all), len(paths))
	}

	none, err := store.List(ctx, "memory", "pref", "user-1", "editor", "extra")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("List() with over-specified prefix returned %d, want 0", len(none))
	}
}

func TestMemoryStoreCloneIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	path := []string{"memory", "knowledge", "note-1"}
	data := []byte(`{"text":"original"}`)
	if err := store.Write(ctx, &Record{Path: path, Kind: "note", Data: data}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := store.Read(ctx, path...)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	got.Data[0] = 'X'

	got2, err := store.Read(ctx, path...)
	if err != nil {
		t.Fatalf("Read() second error = %v", err)
	}
	if string(got2.Data) != `{"text":"original"}` {
		t.Fatalf("mutating a returned record leaked into the store: %s", got2.Data)
	}
}
