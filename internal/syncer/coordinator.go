// Package syncer reconciles the local work item set with the external
// tracker's current result set.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clintrovert/gantry/internal/ledger"
	"github.com/clintrovert/gantry/internal/store"
	"github.com/clintrovert/gantry/pkg/types"
)

// Result summarizes one sync pass. RunID correlates the pass across log
// lines and ledger descriptions.
type Result struct {
	RunID   string
	Created int
	Updated int
}

// Coordinator merges tracker items into the local store: unseen keys become
// new WorkItems, known keys get their mirrored fields refreshed. Lifecycle
// fields are never touched for existing items and nothing is ever deleted,
// so the pass is idempotent and safe to repeat.
type Coordinator struct {
	store  *store.Store
	ledger *ledger.Ledger
	logger *zap.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(st *store.Store, lg *ledger.Ledger, logger *zap.Logger) *Coordinator {
	return &Coordinator{store: st, ledger: lg, logger: logger}
}

// Sync merges the external items in a single transaction. On error no
// partial state is durable; callers retry the whole pass.
func (c *Coordinator) Sync(ctx context.Context, externalItems []types.ExternalWorkItem) (Result, error) {
	result := Result{RunID: uuid.NewString()}
	now := time.Now().UTC()

	err := c.store.WithTx(ctx, func(tx *gorm.DB) error {
		for i := range externalItems {
			ext := &externalItems[i]

			var item types.WorkItem
			err := tx.Where("external_key = ?", ext.Key).First(&item).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				created, err := c.createItem(tx, ext, now, result.RunID)
				if err != nil {
					return err
				}
				if created {
					result.Created++
				} else {
					result.Updated++
				}
			case err != nil:
				return fmt.Errorf("failed to look up %s: %w", ext.Key, err)
			default:
				if err := c.updateMirroredFields(tx, &item, ext, now); err != nil {
					return err
				}
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return Result{RunID: result.RunID}, fmt.Errorf("sync failed: %w", err)
	}

	c.logger.Info("sync pass finished",
		zap.String("run_id", result.RunID),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
	)
	return result, nil
}

// createItem inserts a new WorkItem with its import ledger entry. A
// duplicate-key race on the unique external key falls back to update
// semantics instead of failing the pass.
func (c *Coordinator) createItem(tx *gorm.DB, ext *types.ExternalWorkItem, now time.Time, runID string) (bool, error) {
	item := types.WorkItem{
		ExternalKey:      ext.Key,
		LifecycleState:   types.StateNew,
		LastSyncedAt:     now,
		Title:            ext.Title,
		Description:      ext.Description,
		TrackerStatus:    ext.Status,
		Priority:         ext.Priority,
		Assignee:         ext.Assignee,
		Reporter:         ext.Reporter,
		TrackerCreatedAt: ext.CreatedAt,
		TrackerUpdatedAt: ext.UpdatedAt,
		DueDate:          ext.DueDate,
	}

	if err := tx.Create(&item).Error; err != nil {
		if isUniqueViolation(err) {
			var existing types.WorkItem
			if err := tx.Where("external_key = ?", ext.Key).First(&existing).Error; err != nil {
				return false, fmt.Errorf("failed to resolve key conflict for %s: %w", ext.Key, err)
			}
			return false, c.updateMirroredFields(tx, &existing, ext, now)
		}
		return false, fmt.Errorf("failed to create work item %s: %w", ext.Key, err)
	}

	_, err := c.ledger.Append(tx, item.ID, types.ActionSync, types.OutcomeCompleted,
		fmt.Sprintf("imported from tracker (sync run %s)", runID), "")
	if err != nil {
		return false, err
	}
	return true, nil
}

// updateMirroredFields refreshes the tracker-owned fields only, leaving
// every lifecycle field exactly as the orchestrator last wrote it. No extra
// ledger entry is appended for a refresh.
func (c *Coordinator) updateMirroredFields(tx *gorm.DB, item *types.WorkItem, ext *types.ExternalWorkItem, now time.Time) error {
	item.Title = ext.Title
	item.Description = ext.Description
	item.TrackerStatus = ext.Status
	item.Priority = ext.Priority
	item.Assignee = ext.Assignee
	item.Reporter = ext.Reporter
	item.TrackerUpdatedAt = ext.UpdatedAt
	item.DueDate = ext.DueDate
	item.LastSyncedAt = now

	if err := tx.Omit(clause.Associations).Save(item).Error; err != nil {
		return fmt.Errorf("failed to update work item %s: %w", item.ExternalKey, err)
	}
	return nil
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// The sqlite driver surfaces these as plain errors rather than
// gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
