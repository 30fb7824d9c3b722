package types

import (
	"time"
)

// LifecycleState is the local state-machine value for a WorkItem, distinct
// from the tracker's own status label.
type LifecycleState string

const (
	StateNew              LifecycleState = "new"
	StateInProgress       LifecycleState = "in_progress"
	StateAwaitingApproval LifecycleState = "awaiting_approval"
	StateApproved         LifecycleState = "approved"
	StateRejected         LifecycleState = "rejected"
	StateBlocked          LifecycleState = "blocked"
	StateCompleted        LifecycleState = "completed"
)

// Terminal reports whether the engine will never auto-advance out of s.
func (s LifecycleState) Terminal() bool {
	switch s {
	case StateCompleted, StateRejected, StateBlocked:
		return true
	}
	return false
}

// ParseLifecycleState maps a string onto a known state, or returns false.
func ParseLifecycleState(s string) (LifecycleState, bool) {
	switch LifecycleState(s) {
	case StateNew, StateInProgress, StateAwaitingApproval, StateApproved,
		StateRejected, StateBlocked, StateCompleted:
		return LifecycleState(s), true
	}
	return "", false
}

// WorkItem mirrors a tracker issue and carries the lifecycle state owned by
// this system. The tracker-mirrored fields are informational only; the
// lifecycle fields change exclusively through orchestrator actions.
type WorkItem struct {
	ID          uint   `gorm:"primaryKey"`
	ExternalKey string `gorm:"uniqueIndex;size:64;not null"`

	// Mirrored from the tracker on every sync.
	Title            string `gorm:"not null"`
	Description      string `gorm:"type:text"`
	TrackerStatus    string `gorm:"size:64"`
	Priority         string `gorm:"size:32"`
	Assignee         string `gorm:"size:128"`
	Reporter         string `gorm:"size:128"`
	TrackerCreatedAt time.Time
	TrackerUpdatedAt time.Time
	DueDate          *time.Time

	// Owned by the orchestration engine.
	LifecycleState   LifecycleState `gorm:"size:32;index;default:new"`
	RepositoryID     *uint
	Repository       *Repository `gorm:"foreignKey:RepositoryID"`
	BranchName       string      `gorm:"size:255"`
	RequiresApproval bool
	LastSyncedAt     time.Time
	Notes            string `gorm:"type:text"`

	Entries []ProgressEntry `gorm:"foreignKey:WorkItemID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
