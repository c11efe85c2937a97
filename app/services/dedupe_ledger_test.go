package services

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestDedupeLedgerIsNewOnce(t *testing.T) {
	ctx := context.Background()
	ledger := NewDedupeLedger(NewMemoryStore(), zap.NewNop())

	fresh, err := ledger.IsNew(ctx, "cid:12345")
	if err != nil || !fresh {
		t.Fatalf("first IsNew = %v, %v, want true", fresh, err)
	}
	fresh, err = ledger.IsNew(ctx, "cid:12345")
	if err != nil || fresh {
		t.Fatalf("second IsNew = %v, %v, want false", fresh, err)
	}

	// A different identity is independent.
	fresh, err = ledger.IsNew(ctx, "na:city hospital|mg road bangalore")
	if err != nil || !fresh {
		t.Fatalf("unrelated identity IsNew = %v, %v, want true", fresh, err)
	}

	count, err := ledger.Count(ctx)
	if err != nil || count != 2 {
		t.Errorf("Count = %d, %v, want 2", count, err)
	}
}

func TestDedupeLedgerSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := NewDedupeLedger(store, zap.NewNop())
	if fresh, _ := first.IsNew(ctx, "cid:777"); !fresh {
		t.Fatal("identity not fresh on first sight")
	}

	// Same durable store, new ledger wrapper - as after a process restart.
	second := NewDedupeLedger(store, zap.NewNop())
	if fresh, _ := second.IsNew(ctx, "cid:777"); fresh {
		t.Error("identity fresh again after restart")
	}
}
