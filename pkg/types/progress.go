package types

import (
	"time"
)

// ActionKind identifies which orchestrator action a ProgressEntry records.
type ActionKind string

const (
	ActionSync                 ActionKind = "sync"
	ActionRepositoryAssignment ActionKind = "repository_assignment"
	ActionBranchCreation       ActionKind = "branch_creation"
	ActionHumanReview          ActionKind = "human_review"
)

// Outcome is the result recorded for a ProgressEntry.
type Outcome string

const (
	OutcomePending          Outcome = "pending"
	OutcomeInProgress       Outcome = "in_progress"
	OutcomeCompleted        Outcome = "completed"
	OutcomeFailed           Outcome = "failed"
	OutcomeAwaitingApproval Outcome = "awaiting_approval"
	OutcomeApproved         Outcome = "approved"
	OutcomeRejected         Outcome = "rejected"
)

// Open reports whether the outcome may still be finalized. Everything else
// is terminal and immutable.
func (o Outcome) Open() bool {
	return o == OutcomePending || o == OutcomeInProgress || o == OutcomeAwaitingApproval
}

// ProgressEntry is one row of a WorkItem's append-only ledger. Entries are
// never edited after CompletedAt is stamped; an open entry may only move to
// a terminal outcome.
type ProgressEntry struct {
	ID         uint `gorm:"primaryKey"`
	WorkItemID uint `gorm:"index;not null"`

	ActionKind   ActionKind `gorm:"size:32;index;not null"`
	Outcome      Outcome    `gorm:"size:32;index;not null"`
	Description  string     `gorm:"type:text"`
	ErrorMessage string     `gorm:"type:text"`

	CreatedAt   time.Time
	CompletedAt *time.Time
}
