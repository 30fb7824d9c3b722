package provider

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/clintrovert/gantry/pkg/types"
)

// GitHubProvider implements RepositoryProvider against the GitHub API.
type GitHubProvider struct {
	apiClient *github.Client
	logger    *zap.Logger
	owner     string
}

// NewGitHubProvider creates a provider scoped to a single owner (user or
// organization).
func NewGitHubProvider(accessToken, owner string, logger *zap.Logger) *GitHubProvider {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: accessToken},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	return &GitHubProvider{
		apiClient: github.NewClient(tc),
		logger:    logger,
		owner:     owner,
	}
}

// ListActive returns the owner's non-archived repositories.
func (p *GitHubProvider) ListActive(ctx context.Context) ([]types.Repository, error) {
	opts := &github.RepositoryListByUserOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var out []types.Repository
	for {
		repos, resp, err := p.apiClient.Repositories.ListByUser(ctx, p.owner, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories: %w", err)
		}
		for _, r := range repos {
			out = append(out, types.Repository{
				Name:          r.GetName(),
				CloneURL:      r.GetCloneURL(),
				Provider:      types.ProviderGitHub,
				DefaultBranch: r.GetDefaultBranch(),
				Active:        !r.GetArchived(),
				Description:   r.GetDescription(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// CreateBranch creates branchName pointing at the head of baseBranch via
// the git refs API.
func (p *GitHubProvider) CreateBranch(ctx context.Context, repo *types.Repository, branchName, baseBranch string) error {
	if baseBranch == "" {
		baseBranch = repo.DefaultBranch
	}

	baseRef, _, err := p.apiClient.Git.GetRef(ctx, p.owner, repo.Name, "refs/heads/"+baseBranch)
	if err != nil {
		return fmt.Errorf("failed to get base ref %s: %w", baseBranch, err)
	}

	newRef := &github.Reference{
		Ref:    github.String("refs/heads/" + branchName),
		Object: &github.GitObject{SHA: baseRef.Object.SHA},
	}
	if _, _, err := p.apiClient.Git.CreateRef(ctx, p.owner, repo.Name, newRef); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", branchName, err)
	}

	p.logger.Info("created branch",
		zap.String("repository", repo.Name),
		zap.String("branch", branchName),
		zap.String("base", baseBranch),
	)
	return nil
}

// DefaultBranch reports the repository's default branch from the API.
func (p *GitHubProvider) DefaultBranch(ctx context.Context, repo *types.Repository) (string, error) {
	r, _, err := p.apiClient.Repositories.Get(ctx, p.owner, repo.Name)
	if err != nil {
		return "", fmt.Errorf("failed to get repository %s: %w", repo.Name, err)
	}
	return r.GetDefaultBranch(), nil
}
