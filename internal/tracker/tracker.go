// Package tracker defines the issue-tracker collaborator contract and its
// Jira implementation.
package tracker

import (
	"context"

	"github.com/clintrovert/gantry/pkg/types"
)

// TaskSource is the contract the engine consumes from the external issue
// tracker. Failures are reported to the caller, never thrown past it.
type TaskSource interface {
	// FetchOpenItems returns the tracker's current set of open work items
	// for the given query.
	FetchOpenItems(ctx context.Context, query string) ([]types.ExternalWorkItem, error)
	// PostComment adds a comment to the tracker item with the given key.
	PostComment(ctx context.Context, externalKey, text string) error
}
