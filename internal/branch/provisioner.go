// Package branch derives deterministic branch names and provisions them
// through the configured repository provider.
package branch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/clintrovert/gantry/internal/ledger"
	"github.com/clintrovert/gantry/internal/lifecycle"
	"github.com/clintrovert/gantry/internal/provider"
	"github.com/clintrovert/gantry/internal/store"
	"github.com/clintrovert/gantry/internal/tracker"
	"github.com/clintrovert/gantry/pkg/types"
)

// Provisioner requests branch creation from the repository provider and
// records the outcome in the work item's ledger. No retry is attempted;
// a failure parks the item for human review.
type Provisioner struct {
	store           *store.Store
	ledger          *ledger.Ledger
	provider        provider.RepositoryProvider
	source          tracker.TaskSource
	logger          *zap.Logger
	requestTimeout  time.Duration
	commentOnCreate bool
}

// NewProvisioner creates a Provisioner. source may be nil when tracker
// comments are disabled.
func NewProvisioner(
	st *store.Store,
	lg *ledger.Ledger,
	prov provider.RepositoryProvider,
	source tracker.TaskSource,
	requestTimeout time.Duration,
	commentOnCreate bool,
	logger *zap.Logger,
) *Provisioner {
	return &Provisioner{
		store:           st,
		ledger:          lg,
		provider:        prov,
		source:          source,
		logger:          logger,
		requestTimeout:  requestTimeout,
		commentOnCreate: commentOnCreate,
	}
}

// Provision creates a branch for the item in the assigned repository. With
// an empty explicitName the deterministic name is used. The work item row
// and its ledger entry are written in one transaction after the provider
// call resolves; the reported bool is whether the branch now exists.
func (p *Provisioner) Provision(ctx context.Context, item *types.WorkItem, repo *types.Repository, explicitName string) (bool, error) {
	branchName := explicitName
	if branchName == "" {
		branchName = Name(item.ExternalKey, item.Title)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()
	createErr := p.provider.CreateBranch(callCtx, repo, branchName, repo.DefaultBranch)

	if createErr != nil {
		p.logger.Warn("branch creation failed",
			zap.String("external_key", item.ExternalKey),
			zap.String("branch", branchName),
			zap.Error(createErr),
		)

		nextState, err := lifecycle.Transition(item.LifecycleState, lifecycle.TriggerBranchCreationFailed)
		if err != nil {
			return false, err
		}
		err = p.store.WithTx(ctx, func(tx *gorm.DB) error {
			item.LifecycleState = nextState
			item.RequiresApproval = true
			if err := tx.Omit(clause.Associations).Save(item).Error; err != nil {
				return fmt.Errorf("failed to save work item: %w", err)
			}
			// The entry stays open so the human decision (approve to retry,
			// reject to stop) resolves it like any other gate.
			_, err := p.ledger.Append(tx, item.ID, types.ActionBranchCreation, types.OutcomeAwaitingApproval,
				fmt.Sprintf("branch %s could not be created in %s, awaiting human decision", branchName, repo.Name),
				createErr.Error())
			return err
		})
		return false, err
	}

	nextState, err := lifecycle.Transition(item.LifecycleState, lifecycle.TriggerBranchCreated)
	if err != nil {
		return false, err
	}
	err = p.store.WithTx(ctx, func(tx *gorm.DB) error {
		item.LifecycleState = nextState
		item.BranchName = branchName
		if err := tx.Omit(clause.Associations).Save(item).Error; err != nil {
			return fmt.Errorf("failed to save work item: %w", err)
		}
		_, err := p.ledger.Append(tx, item.ID, types.ActionBranchCreation, types.OutcomeCompleted,
			fmt.Sprintf("created branch %s in %s", branchName, repo.Name), "")
		return err
	})
	if err != nil {
		return false, err
	}

	p.logger.Info("provisioned branch",
		zap.String("external_key", item.ExternalKey),
		zap.String("repository", repo.Name),
		zap.String("branch", branchName),
	)

	if p.commentOnCreate && p.source != nil {
		commentCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
		defer cancel()
		comment := fmt.Sprintf("Branch %s created in repository %s.", branchName, repo.Name)
		if err := p.source.PostComment(commentCtx, item.ExternalKey, comment); err != nil {
			// Comment delivery is best effort; the branch already exists.
			p.logger.Warn("failed to post tracker comment",
				zap.String("external_key", item.ExternalKey),
				zap.Error(err),
			)
		}
	}

	return true, nil
}
