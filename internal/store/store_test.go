package store

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clintrovert/gantry/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return s
}

func TestExternalKeyUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&types.WorkItem{ExternalKey: "DEV-1", LifecycleState: types.StateNew}).Error
	})
	if err != nil {
		t.Fatalf("failed to create first item: %v", err)
	}

	err = s.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&types.WorkItem{ExternalKey: "DEV-1", LifecycleState: types.StateNew}).Error
	})
	if err == nil {
		t.Fatal("second create with same external key succeeded, want unique violation")
	}
}

func TestFindByExternalKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.FindByExternalKey(ctx, "DEV-404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByExternalKey for missing key = %v, want ErrNotFound", err)
	}

	s.DB().Create(&types.WorkItem{ExternalKey: "DEV-1", Title: "Fix login bug", LifecycleState: types.StateNew})

	item, err := s.FindByExternalKey(ctx, "DEV-1")
	if err != nil {
		t.Fatalf("FindByExternalKey failed: %v", err)
	}
	if item.Title != "Fix login bug" {
		t.Errorf("title = %q, want %q", item.Title, "Fix login bug")
	}
}

func TestWorkItemsInStateFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.DB().Create(&types.WorkItem{ExternalKey: "DEV-1", LifecycleState: types.StateNew})
	s.DB().Create(&types.WorkItem{ExternalKey: "DEV-2", LifecycleState: types.StateInProgress})
	s.DB().Create(&types.WorkItem{ExternalKey: "DEV-3", LifecycleState: types.StateNew})

	items, err := s.WorkItemsInState(ctx, types.StateNew)
	if err != nil {
		t.Fatalf("WorkItemsInState failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items in new state, want 2", len(items))
	}
	if items[0].ExternalKey != "DEV-1" || items[1].ExternalKey != "DEV-3" {
		t.Errorf("items out of order: %s, %s", items[0].ExternalKey, items[1].ExternalKey)
	}

	all, err := s.WorkItemsInState(ctx)
	if err != nil {
		t.Fatalf("WorkItemsInState without filter failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d items without filter, want 3", len(all))
	}
}

func TestProgressEntriesCascadeDelete(t *testing.T) {
	s := newTestStore(t)

	item := types.WorkItem{ExternalKey: "DEV-1", LifecycleState: types.StateNew}
	s.DB().Create(&item)
	s.DB().Create(&types.ProgressEntry{WorkItemID: item.ID, ActionKind: types.ActionSync, Outcome: types.OutcomeCompleted})

	if err := s.DB().Delete(&item).Error; err != nil {
		t.Fatalf("failed to delete work item: %v", err)
	}

	var count int64
	s.DB().Model(&types.ProgressEntry{}).Where("work_item_id = ?", item.ID).Count(&count)
	if count != 0 {
		t.Errorf("found %d orphaned progress entries after delete, want 0", count)
	}
}

func TestUpsertRepositories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []types.Repository{
		{Name: "auth-service", Provider: types.ProviderGitHub, DefaultBranch: "main", Active: true, Description: "handles authentication"},
	}
	if err := s.UpsertRepositories(ctx, first); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	second := []types.Repository{
		{Name: "auth-service", Provider: types.ProviderGitHub, DefaultBranch: "trunk", Active: true, Description: "authn and authz"},
		{Name: "billing", Provider: types.ProviderGitHub, DefaultBranch: "main", Active: true, Description: "invoices"},
	}
	if err := s.UpsertRepositories(ctx, second); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	repos, err := s.ActiveRepositories(ctx)
	if err != nil {
		t.Fatalf("ActiveRepositories failed: %v", err)
	}
	if len(repos) != 2 {
		t.Fatalf("got %d repositories, want 2", len(repos))
	}
	if repos[0].DefaultBranch != "trunk" {
		t.Errorf("default branch = %q, want updated value %q", repos[0].DefaultBranch, "trunk")
	}
}
