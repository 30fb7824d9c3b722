package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clintrovert/gantry/pkg/types"
)

// ErrEntryFinalized is returned when finalizing an entry whose outcome is
// already terminal.
var ErrEntryFinalized = errors.New("ledger: entry already finalized")

// Ledger is the append-only audit log of actions taken against WorkItems.
// Writes go through the transaction handle passed by the caller so an entry
// lands atomically with the lifecycle change it records.
type Ledger struct {
	logger *zap.Logger
}

// New creates a Ledger.
func New(logger *zap.Logger) *Ledger {
	return &Ledger{logger: logger}
}

// Append inserts a new ProgressEntry for a WorkItem. Entries created with a
// terminal outcome are stamped completed immediately; open outcomes
// (pending, in_progress, awaiting_approval) are finalized later.
func (l *Ledger) Append(tx *gorm.DB, workItemID uint, kind types.ActionKind, outcome types.Outcome, description, errMsg string) (*types.ProgressEntry, error) {
	entry := &types.ProgressEntry{
		WorkItemID:   workItemID,
		ActionKind:   kind,
		Outcome:      outcome,
		Description:  description,
		ErrorMessage: errMsg,
		CreatedAt:    time.Now().UTC(),
	}
	if !outcome.Open() {
		now := entry.CreatedAt
		entry.CompletedAt = &now
	}

	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to append progress entry: %w", err)
	}

	l.logger.Debug("appended progress entry",
		zap.Uint("work_item_id", workItemID),
		zap.String("action", string(kind)),
		zap.String("outcome", string(outcome)),
	)
	return entry, nil
}

// Finalize moves a still-open entry to a terminal outcome and stamps its
// completion time. Terminal entries are immutable.
func (l *Ledger) Finalize(tx *gorm.DB, entryID uint, outcome types.Outcome, errMsg string) (*types.ProgressEntry, error) {
	var entry types.ProgressEntry
	if err := tx.First(&entry, entryID).Error; err != nil {
		return nil, fmt.Errorf("failed to load progress entry %d: %w", entryID, err)
	}

	if !entry.Outcome.Open() {
		return nil, ErrEntryFinalized
	}
	if outcome.Open() {
		return nil, fmt.Errorf("ledger: outcome %s is not terminal", outcome)
	}

	now := time.Now().UTC()
	entry.Outcome = outcome
	entry.CompletedAt = &now
	if errMsg != "" {
		entry.ErrorMessage = errMsg
	}

	if err := tx.Save(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to finalize progress entry %d: %w", entryID, err)
	}
	return &entry, nil
}

// HistoryFor returns a WorkItem's full ledger, oldest first. The last entry
// doubles as the resumption cursor for parked items.
func (l *Ledger) HistoryFor(ctx context.Context, db *gorm.DB, workItemID uint) ([]types.ProgressEntry, error) {
	var entries []types.ProgressEntry
	err := db.WithContext(ctx).
		Where("work_item_id = ?", workItemID).
		Order("created_at asc, id asc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history for work item %d: %w", workItemID, err)
	}
	return entries, nil
}

// Latest returns the most recent entry for a WorkItem, or nil when the
// ledger is empty.
func (l *Ledger) Latest(ctx context.Context, db *gorm.DB, workItemID uint) (*types.ProgressEntry, error) {
	var entry types.ProgressEntry
	err := db.WithContext(ctx).
		Where("work_item_id = ?", workItemID).
		Order("created_at desc, id desc").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest entry for work item %d: %w", workItemID, err)
	}
	return &entry, nil
}
