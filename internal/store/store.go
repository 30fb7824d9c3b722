package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clintrovert/gantry/pkg/types"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Store wraps the database handle and the typed queries the orchestration
// engine needs. Every orchestrator action runs inside a single transaction
// so the WorkItem row and its ledger entries stay consistent.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (or creates) the SQLite database at path and migrates the
// schema. Use ":memory:" for tests.
func Open(path string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: sqlite has one writer, and a pooled second
	// connection to ":memory:" would be a different database entirely.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// SQLite enforces FK cascades only when told to.
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := db.AutoMigrate(&types.Repository{}, &types.WorkItem{}, &types.ProgressEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db, logger: log}, nil
}

// DB exposes the raw handle for transaction-scoped helpers.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithTx runs fn inside a single transaction. A non-nil error from fn rolls
// everything back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// FindByExternalKey looks up a WorkItem by its tracker key, preloading the
// assigned repository if any.
func (s *Store) FindByExternalKey(ctx context.Context, key string) (*types.WorkItem, error) {
	var item types.WorkItem
	err := s.db.WithContext(ctx).Preload("Repository").Where("external_key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find work item %s: %w", key, err)
	}
	return &item, nil
}

// FindWorkItem looks up a WorkItem by internal id.
func (s *Store) FindWorkItem(ctx context.Context, id uint) (*types.WorkItem, error) {
	var item types.WorkItem
	err := s.db.WithContext(ctx).Preload("Repository").First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find work item %d: %w", id, err)
	}
	return &item, nil
}

// WorkItemsInState returns all WorkItems in any of the given states, oldest
// first. With no states it returns everything.
func (s *Store) WorkItemsInState(ctx context.Context, states ...types.LifecycleState) ([]types.WorkItem, error) {
	q := s.db.WithContext(ctx).Preload("Repository").Order("id asc")
	if len(states) > 0 {
		q = q.Where("lifecycle_state IN ?", states)
	}
	var items []types.WorkItem
	if err := q.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	return items, nil
}

// ActiveRepositories returns the matching catalog in stable insertion order.
func (s *Store) ActiveRepositories(ctx context.Context) ([]types.Repository, error) {
	var repos []types.Repository
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("id asc").Find(&repos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	return repos, nil
}

// UpsertRepositories merges the provider's current repository list into the
// catalog, keyed by (provider, name).
func (s *Store) UpsertRepositories(ctx context.Context, repos []types.Repository) error {
	return s.WithTx(ctx, func(tx *gorm.DB) error {
		for i := range repos {
			r := &repos[i]
			var existing types.Repository
			err := tx.Where("provider = ? AND name = ?", r.Provider, r.Name).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(r).Error; err != nil {
					return fmt.Errorf("failed to create repository %s: %w", r.Name, err)
				}
			case err != nil:
				return fmt.Errorf("failed to look up repository %s: %w", r.Name, err)
			default:
				existing.CloneURL = r.CloneURL
				existing.DefaultBranch = r.DefaultBranch
				existing.Active = r.Active
				existing.Description = r.Description
				if err := tx.Save(&existing).Error; err != nil {
					return fmt.Errorf("failed to update repository %s: %w", r.Name, err)
				}
			}
		}
		return nil
	})
}
