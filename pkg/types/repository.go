package types

import (
	"time"
)

// ProviderTag identifies which source-control provider owns a repository.
type ProviderTag string

const (
	ProviderGitHub   ProviderTag = "github"
	ProviderLocalGit ProviderTag = "local"
)

// Repository is a candidate target for branch provisioning. It is written
// by the repository-provider collaborator and read here for matching and
// branch targeting.
type Repository struct {
	ID            uint        `gorm:"primaryKey"`
	Name          string      `gorm:"index;size:255;not null"`
	CloneURL      string      `gorm:"size:512"`
	Provider      ProviderTag `gorm:"index;size:32;not null"`
	DefaultBranch string      `gorm:"size:255;default:main"`
	Active        bool        `gorm:"index;default:true"`
	Description   string      `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExternalWorkItem is a tracker issue as fetched from the external system,
// before it is merged into the local WorkItem table.
type ExternalWorkItem struct {
	Key         string
	Title       string
	Description string
	Status      string
	Priority    string
	Assignee    string
	Reporter    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DueDate     *time.Time
}
