package lifecycle

import (
	"errors"
	"testing"

	"github.com/clintrovert/gantry/pkg/types"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from    types.LifecycleState
		trigger Trigger
		want    types.LifecycleState
	}{
		{types.StateNew, TriggerSyncImport, types.StateNew},
		{types.StateNew, TriggerRepositoryMatched, types.StateInProgress},
		{types.StateNew, TriggerNoRepositoryMatch, types.StateAwaitingApproval},
		{types.StateInProgress, TriggerBranchCreated, types.StateInProgress},
		{types.StateInProgress, TriggerBranchCreationFailed, types.StateAwaitingApproval},
		{types.StateInProgress, TriggerWorkCompleted, types.StateCompleted},
		{types.StateAwaitingApproval, TriggerHumanApproved, types.StateApproved},
		{types.StateAwaitingApproval, TriggerHumanRejected, types.StateRejected},
		{types.StateApproved, TriggerRepositoryMatched, types.StateInProgress},
		{types.StateApproved, TriggerNoRepositoryMatch, types.StateAwaitingApproval},
		{types.StateApproved, TriggerBranchCreated, types.StateInProgress},
		{types.StateApproved, TriggerWorkCompleted, types.StateCompleted},
		{types.StateNew, TriggerProgressRejected, types.StateBlocked},
		{types.StateInProgress, TriggerProgressRejected, types.StateBlocked},
		{types.StateAwaitingApproval, TriggerProgressRejected, types.StateBlocked},
	}

	for _, tt := range tests {
		got, err := Transition(tt.from, tt.trigger)
		if err != nil {
			t.Errorf("Transition(%s, %s) returned error: %v", tt.from, tt.trigger, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Transition(%s, %s) = %s, want %s", tt.from, tt.trigger, got, tt.want)
		}
	}
}

func TestTransitionRejectsMovesOutsideTable(t *testing.T) {
	tests := []struct {
		from    types.LifecycleState
		trigger Trigger
	}{
		{types.StateNew, TriggerBranchCreated},
		{types.StateNew, TriggerHumanApproved},
		{types.StateInProgress, TriggerSyncImport},
		{types.StateInProgress, TriggerHumanApproved},
		{types.StateCompleted, TriggerRepositoryMatched},
		{types.StateRejected, TriggerHumanApproved},
		{types.StateBlocked, TriggerBranchCreated},
		{types.StateCompleted, TriggerProgressRejected},
		{types.StateRejected, TriggerProgressRejected},
	}

	for _, tt := range tests {
		if _, err := Transition(tt.from, tt.trigger); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Transition(%s, %s) = %v, want ErrInvalidTransition", tt.from, tt.trigger, err)
		}
	}
}

func TestNext(t *testing.T) {
	repoID := uint(7)

	entry := func(kind types.ActionKind, outcome types.Outcome) *types.ProgressEntry {
		return &types.ProgressEntry{ActionKind: kind, Outcome: outcome}
	}

	tests := []struct {
		name   string
		item   types.WorkItem
		latest *types.ProgressEntry
		want   NextStep
	}{
		{
			name:   "empty ledger assigns repository",
			item:   types.WorkItem{LifecycleState: types.StateNew},
			latest: nil,
			want:   StepAssignRepository,
		},
		{
			name:   "open approval gate stops processing",
			item:   types.WorkItem{LifecycleState: types.StateAwaitingApproval},
			latest: entry(types.ActionRepositoryAssignment, types.OutcomeAwaitingApproval),
			want:   StepAwaitApproval,
		},
		{
			name:   "completed sync implies assignment",
			item:   types.WorkItem{LifecycleState: types.StateNew},
			latest: entry(types.ActionSync, types.OutcomeCompleted),
			want:   StepAssignRepository,
		},
		{
			name:   "completed assignment implies branch creation",
			item:   types.WorkItem{LifecycleState: types.StateInProgress, RepositoryID: &repoID},
			latest: entry(types.ActionRepositoryAssignment, types.OutcomeCompleted),
			want:   StepCreateBranch,
		},
		{
			name:   "completed branch creation implies done",
			item:   types.WorkItem{LifecycleState: types.StateInProgress, RepositoryID: &repoID, BranchName: "feature/dev-1-x"},
			latest: entry(types.ActionBranchCreation, types.OutcomeCompleted),
			want:   StepDone,
		},
		{
			name:   "failed branch creation parks for review",
			item:   types.WorkItem{LifecycleState: types.StateAwaitingApproval, RepositoryID: &repoID},
			latest: entry(types.ActionBranchCreation, types.OutcomeAwaitingApproval),
			want:   StepAwaitApproval,
		},
		{
			name:   "approval without repository re-runs assignment",
			item:   types.WorkItem{LifecycleState: types.StateApproved},
			latest: entry(types.ActionHumanReview, types.OutcomeApproved),
			want:   StepAssignRepository,
		},
		{
			name:   "approval with repository but no branch creates branch",
			item:   types.WorkItem{LifecycleState: types.StateApproved, RepositoryID: &repoID},
			latest: entry(types.ActionHumanReview, types.OutcomeApproved),
			want:   StepCreateBranch,
		},
		{
			name:   "approval with branch is done",
			item:   types.WorkItem{LifecycleState: types.StateApproved, RepositoryID: &repoID, BranchName: "feature/dev-1-x"},
			latest: entry(types.ActionHumanReview, types.OutcomeApproved),
			want:   StepDone,
		},
		{
			name:   "rejection halts",
			item:   types.WorkItem{LifecycleState: types.StateRejected},
			latest: entry(types.ActionHumanReview, types.OutcomeRejected),
			want:   StepHalt,
		},
		{
			name:   "terminal state halts regardless of ledger",
			item:   types.WorkItem{LifecycleState: types.StateCompleted},
			latest: entry(types.ActionBranchCreation, types.OutcomeCompleted),
			want:   StepHalt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(&tt.item, tt.latest); got != tt.want {
				t.Errorf("Next() = %s, want %s", got, tt.want)
			}
		})
	}
}
