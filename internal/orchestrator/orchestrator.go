// Package orchestrator drives tracked work items through their lifecycle:
// sync from the tracker, repository assignment, branch provisioning, and
// human approval decisions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clintrovert/gantry/internal/branch"
	"github.com/clintrovert/gantry/internal/ledger"
	"github.com/clintrovert/gantry/internal/lifecycle"
	"github.com/clintrovert/gantry/internal/match"
	"github.com/clintrovert/gantry/internal/provider"
	"github.com/clintrovert/gantry/internal/store"
	"github.com/clintrovert/gantry/internal/syncer"
	"github.com/clintrovert/gantry/internal/tracker"
	"github.com/clintrovert/gantry/pkg/types"
)

// ErrNotAwaitingApproval is returned when an approval decision targets an
// entry that is not an open approval gate.
var ErrNotAwaitingApproval = errors.New("orchestrator: progress entry is not awaiting approval")

// Options carry the orchestrator's tunables.
type Options struct {
	// MaxConcurrentTasks bounds how many work items are advanced in
	// parallel during backlog processing.
	MaxConcurrentTasks int
	// RequestTimeout bounds every external call.
	RequestTimeout time.Duration
	// TrackerQuery is the query handed to the task source on sync.
	TrackerQuery string
}

// Orchestrator composes the sync coordinator, matcher, provisioner and
// ledger into the operations exposed to callers. Each work item is advanced
// by exactly one goroutine at a time; items are independent of each other.
type Orchestrator struct {
	store       *store.Store
	ledger      *ledger.Ledger
	coordinator *syncer.Coordinator
	matcher     match.Matcher
	provisioner *branch.Provisioner
	source      tracker.TaskSource
	provider    provider.RepositoryProvider
	logger      *zap.Logger
	opts        Options
}

// New creates an Orchestrator.
func New(
	st *store.Store,
	lg *ledger.Ledger,
	coordinator *syncer.Coordinator,
	matcher match.Matcher,
	provisioner *branch.Provisioner,
	source tracker.TaskSource,
	prov provider.RepositoryProvider,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	if opts.MaxConcurrentTasks < 1 {
		opts.MaxConcurrentTasks = 1
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Orchestrator{
		store:       st,
		ledger:      lg,
		coordinator: coordinator,
		matcher:     matcher,
		provisioner: provisioner,
		source:      source,
		provider:    prov,
		logger:      logger,
		opts:        opts,
	}
}

// Sync refreshes the repository catalog, merges the tracker's open items
// into the local store, and processes everything left in the new state.
func (o *Orchestrator) Sync(ctx context.Context) (syncer.Result, error) {
	if err := o.refreshCatalog(ctx); err != nil {
		// A stale catalog is usable; matching falls back to what is stored.
		o.logger.Warn("failed to refresh repository catalog", zap.Error(err))
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()
	items, err := o.source.FetchOpenItems(fetchCtx, o.opts.TrackerQuery)
	if err != nil {
		return syncer.Result{}, fmt.Errorf("failed to fetch open items: %w", err)
	}

	result, err := o.coordinator.Sync(ctx, items)
	if err != nil {
		return result, err
	}

	if err := o.ProcessNewTasks(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// ProcessNewTasks runs repository assignment for every work item in the new
// state, fanning out across the bounded worker pool.
func (o *Orchestrator) ProcessNewTasks(ctx context.Context) error {
	items, err := o.store.WorkItemsInState(ctx, types.StateNew)
	if err != nil {
		return err
	}
	return o.forEachItem(ctx, items, o.processNew)
}

// ProcessPendingTasks resumes every in-flight work item from the position
// recorded in its ledger.
func (o *Orchestrator) ProcessPendingTasks(ctx context.Context) error {
	items, err := o.store.WorkItemsInState(ctx, types.StateInProgress, types.StateApproved)
	if err != nil {
		return err
	}
	return o.forEachItem(ctx, items, o.resume)
}

// GetTasks returns work items, optionally filtered by lifecycle state.
func (o *Orchestrator) GetTasks(ctx context.Context, states ...types.LifecycleState) ([]types.WorkItem, error) {
	return o.store.WorkItemsInState(ctx, states...)
}

// History returns a work item's full ledger, oldest first.
func (o *Orchestrator) History(ctx context.Context, taskID uint) ([]types.ProgressEntry, error) {
	if _, err := o.store.FindWorkItem(ctx, taskID); err != nil {
		return nil, err
	}
	return o.ledger.HistoryFor(ctx, o.store.DB(), taskID)
}

// ApproveTaskProgress resolves an open approval gate in the item's favor:
// the awaiting entry is finalized approved, the item moves to approved, and
// a human-review entry records the decision. The item re-enters the
// pipeline on the next processing pass.
func (o *Orchestrator) ApproveTaskProgress(ctx context.Context, taskID, progressID uint) error {
	item, entry, err := o.loadDecisionTarget(ctx, taskID, progressID)
	if err != nil {
		return err
	}
	if entry.Outcome != types.OutcomeAwaitingApproval {
		return ErrNotAwaitingApproval
	}

	nextState, err := lifecycle.Transition(item.LifecycleState, lifecycle.TriggerHumanApproved)
	if err != nil {
		return err
	}

	err = o.store.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := o.ledger.Finalize(tx, entry.ID, types.OutcomeApproved, ""); err != nil {
			return err
		}
		item.LifecycleState = nextState
		item.RequiresApproval = false
		if err := tx.Omit(clause.Associations).Save(item).Error; err != nil {
			return fmt.Errorf("failed to save work item: %w", err)
		}
		_, err := o.ledger.Append(tx, item.ID, types.ActionHumanReview, types.OutcomeApproved,
			fmt.Sprintf("approved %s", entry.ActionKind), "")
		return err
	})
	if err != nil {
		return err
	}

	o.logger.Info("approved task progress",
		zap.Uint("task_id", taskID),
		zap.Uint("progress_id", progressID),
	)
	return nil
}

// RejectTaskProgress resolves a progress entry against the item. Rejecting
// an open approval gate moves the item to rejected; rejecting any other
// in-flight entry blocks the item outright. Either way the reason lands in
// the item's notes and automatic progression halts.
func (o *Orchestrator) RejectTaskProgress(ctx context.Context, taskID, progressID uint, reason string) error {
	item, entry, err := o.loadDecisionTarget(ctx, taskID, progressID)
	if err != nil {
		return err
	}

	trigger := lifecycle.TriggerProgressRejected
	if item.LifecycleState == types.StateAwaitingApproval && entry.Outcome == types.OutcomeAwaitingApproval {
		trigger = lifecycle.TriggerHumanRejected
	}
	nextState, err := lifecycle.Transition(item.LifecycleState, trigger)
	if err != nil {
		return err
	}

	err = o.store.WithTx(ctx, func(tx *gorm.DB) error {
		if entry.Outcome.Open() {
			if _, err := o.ledger.Finalize(tx, entry.ID, types.OutcomeRejected, ""); err != nil {
				return err
			}
		}
		item.LifecycleState = nextState
		item.Notes = reason
		if err := tx.Omit(clause.Associations).Save(item).Error; err != nil {
			return fmt.Errorf("failed to save work item: %w", err)
		}
		_, err := o.ledger.Append(tx, item.ID, types.ActionHumanReview, types.OutcomeRejected,
			fmt.Sprintf("rejected %s", entry.ActionKind), reason)
		return err
	})
	if err != nil {
		return err
	}

	o.logger.Info("rejected task progress",
		zap.Uint("task_id", taskID),
		zap.Uint("progress_id", progressID),
		zap.String("state", string(nextState)),
	)
	return nil
}

// processNew runs repository assignment for a freshly imported item.
func (o *Orchestrator) processNew(ctx context.Context, item *types.WorkItem) error {
	return o.assignRepository(ctx, item)
}

// resume picks up an in-flight item from its ledger cursor. Only the most
// recent entry is consulted; an open approval gate always stops progression.
func (o *Orchestrator) resume(ctx context.Context, item *types.WorkItem) error {
	latest, err := o.ledger.Latest(ctx, o.store.DB(), item.ID)
	if err != nil {
		return err
	}

	switch step := lifecycle.Next(item, latest); step {
	case lifecycle.StepAssignRepository:
		return o.assignRepository(ctx, item)
	case lifecycle.StepCreateBranch:
		return o.createBranch(ctx, item)
	case lifecycle.StepDone:
		return o.complete(ctx, item)
	case lifecycle.StepAwaitApproval, lifecycle.StepHalt:
		o.logger.Debug("no automatic progression",
			zap.String("external_key", item.ExternalKey),
			zap.String("step", step.String()),
		)
		return nil
	default:
		return nil
	}
}

// assignRepository matches the item against the active catalog. A match
// moves the item into progress and straight on to branch creation; no match
// parks it behind the approval gate.
func (o *Orchestrator) assignRepository(ctx context.Context, item *types.WorkItem) error {
	catalog, err := o.store.ActiveRepositories(ctx)
	if err != nil {
		return err
	}

	matchCtx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()
	repo, err := o.matcher.FindSuitable(matchCtx, item, catalog)
	if err != nil {
		// Matching failures park the item exactly like a missing match, but
		// carry the error in the ledger.
		o.logger.Warn("repository matching failed",
			zap.String("external_key", item.ExternalKey),
			zap.Error(err),
		)
		return o.parkUnassigned(ctx, item, err.Error())
	}
	if repo == nil {
		return o.parkUnassigned(ctx, item, "")
	}

	nextState, err := lifecycle.Transition(item.LifecycleState, lifecycle.TriggerRepositoryMatched)
	if err != nil {
		return err
	}
	err = o.store.WithTx(ctx, func(tx *gorm.DB) error {
		item.LifecycleState = nextState
		item.RepositoryID = &repo.ID
		item.Repository = repo
		if err := tx.Omit(clause.Associations).Save(item).Error; err != nil {
			return fmt.Errorf("failed to save work item: %w", err)
		}
		_, err := o.ledger.Append(tx, item.ID, types.ActionRepositoryAssignment, types.OutcomeCompleted,
			fmt.Sprintf("assigned repository %s", repo.Name), "")
		return err
	})
	if err != nil {
		return err
	}

	o.logger.Info("assigned repository",
		zap.String("external_key", item.ExternalKey),
		zap.String("repository", repo.Name),
	)
	return o.createBranch(ctx, item)
}

// parkUnassigned routes an item with no suitable repository to the approval
// gate.
func (o *Orchestrator) parkUnassigned(ctx context.Context, item *types.WorkItem, errMsg string) error {
	nextState, err := lifecycle.Transition(item.LifecycleState, lifecycle.TriggerNoRepositoryMatch)
	if err != nil {
		return err
	}
	return o.store.WithTx(ctx, func(tx *gorm.DB) error {
		item.LifecycleState = nextState
		item.RequiresApproval = true
		if err := tx.Omit(clause.Associations).Save(item).Error; err != nil {
			return fmt.Errorf("failed to save work item: %w", err)
		}
		_, err := o.ledger.Append(tx, item.ID, types.ActionRepositoryAssignment, types.OutcomeAwaitingApproval,
			"no suitable repository found, awaiting human decision", errMsg)
		return err
	})
}

// createBranch provisions the deterministic branch in the item's assigned
// repository.
func (o *Orchestrator) createBranch(ctx context.Context, item *types.WorkItem) error {
	if item.RepositoryID == nil {
		return o.parkUnassigned(ctx, item, "")
	}
	repo := item.Repository
	if repo == nil {
		loaded, err := o.store.FindWorkItem(ctx, item.ID)
		if err != nil {
			return err
		}
		repo = loaded.Repository
	}
	if repo == nil {
		return fmt.Errorf("work item %s references repository %d which no longer exists", item.ExternalKey, *item.RepositoryID)
	}

	_, err := o.provisioner.Provision(ctx, item, repo, "")
	return err
}

// complete marks an item whose pipeline has run through as completed.
func (o *Orchestrator) complete(ctx context.Context, item *types.WorkItem) error {
	nextState, err := lifecycle.Transition(item.LifecycleState, lifecycle.TriggerWorkCompleted)
	if err != nil {
		return err
	}
	return o.store.WithTx(ctx, func(tx *gorm.DB) error {
		item.LifecycleState = nextState
		if err := tx.Omit(clause.Associations).Save(item).Error; err != nil {
			return fmt.Errorf("failed to save work item: %w", err)
		}
		return nil
	})
}

// forEachItem fans the backlog out across the bounded worker pool. A
// failure on one item is recorded and does not stop the others; the first
// error is reported once the pass finishes.
func (o *Orchestrator) forEachItem(ctx context.Context, items []types.WorkItem, fn func(context.Context, *types.WorkItem) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxConcurrentTasks)

	errc := make(chan error, len(items))
	for i := range items {
		item := items[i]
		g.Go(func() error {
			if err := fn(ctx, &item); err != nil {
				o.logger.Error("failed to process work item",
					zap.String("external_key", item.ExternalKey),
					zap.Error(err),
				)
				errc <- fmt.Errorf("%s: %w", item.ExternalKey, err)
			}
			return nil
		})
	}

	_ = g.Wait()
	close(errc)
	if err, ok := <-errc; ok {
		return err
	}
	return nil
}

// refreshCatalog pulls the provider's current repository list into the
// local catalog.
func (o *Orchestrator) refreshCatalog(ctx context.Context) error {
	listCtx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()
	repos, err := o.provider.ListActive(listCtx)
	if err != nil {
		return err
	}
	return o.store.UpsertRepositories(ctx, repos)
}

// loadDecisionTarget loads a work item and one of its progress entries for
// an approve/reject decision, verifying ownership.
func (o *Orchestrator) loadDecisionTarget(ctx context.Context, taskID, progressID uint) (*types.WorkItem, *types.ProgressEntry, error) {
	item, err := o.store.FindWorkItem(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}

	var entry types.ProgressEntry
	err = o.store.DB().WithContext(ctx).First(&entry, progressID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, store.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load progress entry %d: %w", progressID, err)
	}
	if entry.WorkItemID != item.ID {
		return nil, nil, fmt.Errorf("progress entry %d does not belong to work item %d: %w", progressID, taskID, store.ErrNotFound)
	}
	return item, &entry, nil
}
