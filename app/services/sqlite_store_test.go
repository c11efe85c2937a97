package services

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func openTestSQLite(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreGetPut(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t, filepath.Join(t.TempDir(), "store.db"))

	if _, found, err := store.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("Get(missing) = found=%v err=%v", found, err)
	}

	if err := store.Put(ctx, "vkey1", []byte(`{"places":[]}`)); err != nil {
		t.Fatal(err)
	}
	got, found, err := store.Get(ctx, "vkey1")
	if err != nil || !found || string(got) != `{"places":[]}` {
		t.Fatalf("Get after Put = %q, found=%v, err=%v", got, found, err)
	}

	// Put is insert-or-replace.
	if err := store.Put(ctx, "vkey1", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	got, _, _ = store.Get(ctx, "vkey1")
	if string(got) != "v2" {
		t.Errorf("replaced value = %q, want v2", got)
	}
}

func TestSQLiteStoreLedger(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")
	store := openTestSQLite(t, path)

	if fresh, err := store.IsNew(ctx, "cid:1"); err != nil || !fresh {
		t.Fatalf("first IsNew = %v, %v", fresh, err)
	}
	if fresh, err := store.IsNew(ctx, "cid:1"); err != nil || fresh {
		t.Fatalf("second IsNew = %v, %v", fresh, err)
	}
	if fresh, _ := store.IsNew(ctx, "cid:2"); !fresh {
		t.Fatal("distinct key not fresh")
	}

	if n, err := store.Count(ctx); err != nil || n != 2 {
		t.Errorf("Count = %d, %v, want 2", n, err)
	}
}

func TestSQLiteStoreLedgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")

	first := openTestSQLite(t, path)
	if fresh, _ := first.IsNew(ctx, "cid:persist"); !fresh {
		t.Fatal("key not fresh in new database")
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second := openTestSQLite(t, path)
	if fresh, _ := second.IsNew(ctx, "cid:persist"); fresh {
		t.Error("ledger entry lost across reopen")
	}
}
