package ledger

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clintrovert/gantry/internal/store"
	"github.com/clintrovert/gantry/pkg/types"
)

func newTestLedger(t *testing.T) (*Ledger, *store.Store, *types.WorkItem) {
	t.Helper()
	s, err := store.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	item := &types.WorkItem{ExternalKey: "DEV-1", LifecycleState: types.StateNew}
	if err := s.DB().Create(item).Error; err != nil {
		t.Fatalf("failed to create work item: %v", err)
	}
	return New(zap.NewNop()), s, item
}

func TestAppendTerminalEntryStampedImmediately(t *testing.T) {
	lg, s, item := newTestLedger(t)

	var entry *types.ProgressEntry
	err := s.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		entry, err = lg.Append(tx, item.ID, types.ActionSync, types.OutcomeCompleted, "imported", "")
		return err
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if entry.CompletedAt == nil {
		t.Error("terminal entry has no CompletedAt stamp")
	}
}

func TestAppendOpenEntryThenFinalize(t *testing.T) {
	lg, s, item := newTestLedger(t)
	ctx := context.Background()

	var entry *types.ProgressEntry
	err := s.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = lg.Append(tx, item.ID, types.ActionBranchCreation, types.OutcomeInProgress, "creating branch", "")
		return err
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if entry.CompletedAt != nil {
		t.Fatal("open entry has a CompletedAt stamp")
	}

	err = s.WithTx(ctx, func(tx *gorm.DB) error {
		final, err := lg.Finalize(tx, entry.ID, types.OutcomeCompleted, "")
		if err != nil {
			return err
		}
		if final.CompletedAt == nil {
			t.Error("finalized entry has no CompletedAt stamp")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
}

func TestFinalizeTerminalEntryFails(t *testing.T) {
	lg, s, item := newTestLedger(t)
	ctx := context.Background()

	var entry *types.ProgressEntry
	s.WithTx(ctx, func(tx *gorm.DB) error {
		entry, _ = lg.Append(tx, item.ID, types.ActionSync, types.OutcomeCompleted, "imported", "")
		return nil
	})

	err := s.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := lg.Finalize(tx, entry.ID, types.OutcomeFailed, "boom")
		return err
	})
	if !errors.Is(err, ErrEntryFinalized) {
		t.Errorf("Finalize on terminal entry = %v, want ErrEntryFinalized", err)
	}
}

func TestFinalizeToOpenOutcomeFails(t *testing.T) {
	lg, s, item := newTestLedger(t)
	ctx := context.Background()

	var entry *types.ProgressEntry
	s.WithTx(ctx, func(tx *gorm.DB) error {
		entry, _ = lg.Append(tx, item.ID, types.ActionBranchCreation, types.OutcomePending, "", "")
		return nil
	})

	err := s.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := lg.Finalize(tx, entry.ID, types.OutcomeInProgress, "")
		return err
	})
	if err == nil {
		t.Error("Finalize to a non-terminal outcome succeeded, want error")
	}
}

func TestHistoryForOrdering(t *testing.T) {
	lg, s, item := newTestLedger(t)
	ctx := context.Background()

	kinds := []types.ActionKind{types.ActionSync, types.ActionRepositoryAssignment, types.ActionBranchCreation}
	for _, kind := range kinds {
		err := s.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := lg.Append(tx, item.ID, kind, types.OutcomeCompleted, "", "")
			return err
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	history, err := lg.HistoryFor(ctx, s.DB(), item.ID)
	if err != nil {
		t.Fatalf("HistoryFor failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d entries, want 3", len(history))
	}
	for i, kind := range kinds {
		if history[i].ActionKind != kind {
			t.Errorf("entry %d kind = %s, want %s", i, history[i].ActionKind, kind)
		}
	}

	latest, err := lg.Latest(ctx, s.DB(), item.ID)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.ActionKind != types.ActionBranchCreation {
		t.Errorf("latest kind = %s, want %s", latest.ActionKind, types.ActionBranchCreation)
	}
}

func TestLatestEmptyLedger(t *testing.T) {
	lg, s, item := newTestLedger(t)

	latest, err := lg.Latest(context.Background(), s.DB(), item.ID)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest != nil {
		t.Errorf("Latest on empty ledger = %+v, want nil", latest)
	}
}
