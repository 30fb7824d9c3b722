// Package provider defines the source-control collaborator contract and
// the registry the engine uses to resolve the configured provider.
package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/clintrovert/gantry/pkg/types"
)

// RepositoryProvider is the contract the engine consumes from a
// source-control system. Exactly one provider is wired at a time.
type RepositoryProvider interface {
	// ListActive returns the repositories available for branch targeting.
	ListActive(ctx context.Context) ([]types.Repository, error)
	// CreateBranch creates branchName from baseBranch. An empty baseBranch
	// means the repository's default branch.
	CreateBranch(ctx context.Context, repo *types.Repository, branchName, baseBranch string) error
	// DefaultBranch reports the repository's default branch.
	DefaultBranch(ctx context.Context, repo *types.Repository) (string, error)
}

// Registry maps provider tags to implementations. Adding a provider means
// registering a variant, not editing a switch.
type Registry struct {
	providers map[types.ProviderTag]RepositoryProvider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[types.ProviderTag]RepositoryProvider)}
}

// Register adds or replaces the implementation for a tag.
func (r *Registry) Register(tag types.ProviderTag, p RepositoryProvider) {
	r.providers[tag] = p
}

// Resolve returns the implementation for a tag.
func (r *Registry) Resolve(tag types.ProviderTag) (RepositoryProvider, error) {
	p, ok := r.providers[tag]
	if !ok {
		return nil, fmt.Errorf("no repository provider registered for %q", tag)
	}
	return p, nil
}

// Tags returns the registered tags in stable order.
func (r *Registry) Tags() []types.ProviderTag {
	tags := make([]types.ProviderTag, 0, len(r.providers))
	for tag := range r.providers {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
