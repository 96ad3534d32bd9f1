package state

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("opening sqlite store: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{"memory": NewMemory(), "sqlite": sq}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := store.Get(ctx, "job:directory:task"); err != nil || ok {
				t.Fatalf("expected absent key, ok=%v err=%v", ok, err)
			}
			if err := store.Set(ctx, "job:directory:task", []byte("v1")); err != nil {
				t.Fatalf("set: %v", err)
			}
			value, ok, err := store.Get(ctx, "job:directory:task")
			if err != nil || !ok || string(value) != "v1" {
				t.Fatalf("get: %q ok=%v err=%v", value, ok, err)
			}
			if err := store.Set(ctx, "job:directory:task", []byte("v2")); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			value, _, _ = store.Get(ctx, "job:directory:task")
			if string(value) != "v2" {
				t.Fatalf("expected overwrite, got %q", value)
			}
			if err := store.Delete(ctx, "job:directory:task"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, ok, _ := store.Get(ctx, "job:directory:task"); ok {
				t.Fatalf("expected key gone after delete")
			}
			// Deleting an absent key is not an error.
			if err := store.Delete(ctx, "job:directory:task"); err != nil {
				t.Fatalf("repeat delete: %v", err)
			}
		})
	}
}

func TestStoreUpdate(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				err := store.Update(ctx, "counter", func(old []byte, ok bool) ([]byte, error) {
					n := 0
					if ok {
						fmt.Sscanf(string(old), "%d", &n)
					}
					return []byte(fmt.Sprintf("%d", n+1)), nil
				})
				if err != nil {
					t.Fatalf("update %d: %v", i, err)
				}
			}
			value, ok, err := store.Get(ctx, "counter")
			if err != nil || !ok || string(value) != "3" {
				t.Fatalf("expected counter 3, got %q ok=%v err=%v", value, ok, err)
			}

			// Returning nil removes the key.
			err = store.Update(ctx, "counter", func(old []byte, ok bool) ([]byte, error) {
				return nil, nil
			})
			if err != nil {
				t.Fatalf("deleting update: %v", err)
			}
			if _, ok, _ := store.Get(ctx, "counter"); ok {
				t.Fatalf("expected key removed by nil update")
			}
		})
	}
}

func TestStoreUpdateErrorLeavesValue(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Set(ctx, "k", []byte("keep")); err != nil {
				t.Fatalf("set: %v", err)
			}
			err := store.Update(ctx, "k", func(old []byte, ok bool) ([]byte, error) {
				return nil, fmt.Errorf("refuse")
			})
			if err == nil {
				t.Fatalf("expected update error surfaced")
			}
			value, _, _ := store.Get(ctx, "k")
			if string(value) != "keep" {
				t.Fatalf("failed update must not change the value, got %q", value)
			}
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	first, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Set(ctx, "job:directory:task", []byte("resume-me")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	value, ok, err := second.Get(ctx, "job:directory:task")
	if err != nil || !ok || string(value) != "resume-me" {
		t.Fatalf("expected persisted task, got %q ok=%v err=%v", value, ok, err)
	}
}
