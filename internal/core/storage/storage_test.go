package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/tamalebot/tamalebot-core/internal/core/storage"
)

func backends(t *testing.T) map[string]storage.Backend {
	t.Helper()
	fs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	sq, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]storage.Backend{
		"mem":    storage.NewMemStore(),
		"fs":     fs,
		"sqlite": sq,
	}
}

func TestBackendPutGetDelete(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := b.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := b.Put(ctx, "greeting", []byte("hello")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := b.Get(ctx, "greeting")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != "hello" {
				t.Fatalf("Get() = %q, want %q", got, "hello")
			}

			if err := b.Put(ctx, "greeting", []byte("updated")); err != nil {
				t.Fatalf("Put overwrite: %v", err)
			}
			got, _ = b.Get(ctx, "greeting")
			if string(got) != "updated" {
				t.Fatalf("Get() after overwrite = %q, want %q", got, "updated")
			}

			if err := b.Delete(ctx, "greeting"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := b.Get(ctx, "greeting"); !errors.Is(err, storage.ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}

			if err := b.Delete(ctx, "never-existed"); err != nil {
				t.Fatalf("Delete of absent key should not error, got %v", err)
			}
		})
	}
}

func TestBackendListByPrefix(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			entries := []string{"vault/A.json", "vault/B.json", "schedules/x.json"}
			for _, k := range entries {
				if err := b.Put(ctx, k, []byte("v")); err != nil {
					t.Fatalf("Put(%q): %v", k, err)
				}
			}

			keys, err := b.List(ctx, "vault/")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			sort.Strings(keys)
			want := []string{"vault/A.json", "vault/B.json"}
			if len(keys) != len(want) {
				t.Fatalf("List() = %v, want %v", keys, want)
			}
			for i := range want {
				if keys[i] != want[i] {
					t.Fatalf("List()[%d] = %q, want %q", i, keys[i], want[i])
				}
			}
		})
	}
}

func TestFSStoreRejectsPathTraversal(t *testing.T) {
	fs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	ctx := context.Background()
	if err := fs.Put(ctx, "../escape", []byte("x")); err == nil {
		t.Fatal("expected error for path-traversal key")
	}
}
