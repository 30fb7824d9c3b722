// Package lifecycle defines the state machine that governs how a WorkItem
// advances, and derives the next orchestrator step from the item's ledger.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/clintrovert/gantry/pkg/types"
)

// ErrInvalidTransition is returned for a (state, trigger) pair outside the
// transition table.
var ErrInvalidTransition = errors.New("lifecycle: invalid transition")

// Trigger names the event that moves a WorkItem between states.
type Trigger string

const (
	TriggerSyncImport           Trigger = "sync_import"
	TriggerRepositoryMatched    Trigger = "repository_matched"
	TriggerNoRepositoryMatch    Trigger = "no_repository_match"
	TriggerBranchCreated        Trigger = "branch_created"
	TriggerBranchCreationFailed Trigger = "branch_creation_failed"
	TriggerHumanApproved        Trigger = "human_approved"
	TriggerHumanRejected        Trigger = "human_rejected"
	TriggerProgressRejected     Trigger = "progress_rejected"
	TriggerWorkCompleted        Trigger = "work_completed"
)

// transitions is the full table of allowed moves. Approved carries the same
// resumable triggers as New/InProgress so an approved item re-enters the
// normal pipeline on the next processing pass.
var transitions = map[types.LifecycleState]map[Trigger]types.LifecycleState{
	types.StateNew: {
		TriggerSyncImport:        types.StateNew,
		TriggerRepositoryMatched: types.StateInProgress,
		TriggerNoRepositoryMatch: types.StateAwaitingApproval,
	},
	types.StateInProgress: {
		TriggerBranchCreated:        types.StateInProgress,
		TriggerBranchCreationFailed: types.StateAwaitingApproval,
		TriggerWorkCompleted:        types.StateCompleted,
	},
	types.StateAwaitingApproval: {
		TriggerHumanApproved: types.StateApproved,
		TriggerHumanRejected: types.StateRejected,
	},
	types.StateApproved: {
		TriggerRepositoryMatched:    types.StateInProgress,
		TriggerNoRepositoryMatch:    types.StateAwaitingApproval,
		TriggerBranchCreated:        types.StateInProgress,
		TriggerBranchCreationFailed: types.StateAwaitingApproval,
		TriggerWorkCompleted:        types.StateCompleted,
	},
}

// Transition returns the state reached by firing trigger from current.
// Rejecting an in-flight progress entry blocks the item from any
// non-terminal state; every other move must appear in the table.
func Transition(current types.LifecycleState, trigger Trigger) (types.LifecycleState, error) {
	if trigger == TriggerProgressRejected {
		if current.Terminal() {
			return "", fmt.Errorf("%w: %s cannot fire from terminal state %s", ErrInvalidTransition, trigger, current)
		}
		return types.StateBlocked, nil
	}

	next, ok := transitions[current][trigger]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, current)
	}
	return next, nil
}

// NextStep is the action the orchestrator should take when resuming a
// WorkItem, derived once from the ledger instead of re-inferred ad hoc.
type NextStep int

const (
	// StepHalt: terminal or unrecognized position, no automatic progression.
	StepHalt NextStep = iota
	// StepAwaitApproval: an open approval gate, processing stops here.
	StepAwaitApproval
	// StepAssignRepository: the item still needs a repository match.
	StepAssignRepository
	// StepCreateBranch: repository assigned, branch not yet provisioned.
	StepCreateBranch
	// StepDone: the pipeline has run to completion for this item.
	StepDone
)

func (s NextStep) String() string {
	switch s {
	case StepAwaitApproval:
		return "await_approval"
	case StepAssignRepository:
		return "assign_repository"
	case StepCreateBranch:
		return "create_branch"
	case StepDone:
		return "done"
	default:
		return "halt"
	}
}

// Next derives the resumption step from the most recent ledger entry. Only
// the latest entry is consulted: an open approval always wins, otherwise
// the entry's kind/outcome pair tells the orchestrator where the pipeline
// stopped. After a human approval the item's own repository and branch
// fields decide which step was being approved.
func Next(item *types.WorkItem, latest *types.ProgressEntry) NextStep {
	if item.LifecycleState.Terminal() {
		return StepHalt
	}
	if latest == nil {
		return StepAssignRepository
	}
	if latest.Outcome == types.OutcomeAwaitingApproval {
		return StepAwaitApproval
	}

	switch latest.ActionKind {
	case types.ActionSync:
		if latest.Outcome == types.OutcomeCompleted {
			return StepAssignRepository
		}
	case types.ActionRepositoryAssignment:
		if latest.Outcome == types.OutcomeCompleted {
			return StepCreateBranch
		}
	case types.ActionBranchCreation:
		// A failed creation parks the item behind an open gate, which the
		// awaiting check above already stops on.
		if latest.Outcome == types.OutcomeCompleted {
			return StepDone
		}
	case types.ActionHumanReview:
		switch latest.Outcome {
		case types.OutcomeApproved:
			if item.RepositoryID == nil {
				return StepAssignRepository
			}
			if item.BranchName == "" {
				return StepCreateBranch
			}
			return StepDone
		case types.OutcomeRejected:
			return StepHalt
		}
	}
	return StepHalt
}
