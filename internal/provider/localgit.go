package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/clintrovert/gantry/pkg/types"
)

// LocalGitProvider implements RepositoryProvider over clones living under a
// workspace directory. Each immediate subdirectory holding a git repository
// is a candidate; branch creation happens in the local clone.
type LocalGitProvider struct {
	workspaceDir string
	logger       *zap.Logger
}

// NewLocalGitProvider creates a provider rooted at workspaceDir.
func NewLocalGitProvider(workspaceDir string, logger *zap.Logger) *LocalGitProvider {
	return &LocalGitProvider{workspaceDir: workspaceDir, logger: logger}
}

// ListActive scans the workspace for git repositories.
func (p *LocalGitProvider) ListActive(_ context.Context) ([]types.Repository, error) {
	dirEntries, err := os.ReadDir(p.workspaceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace %s: %w", p.workspaceDir, err)
	}

	var out []types.Repository
	for _, entry := range dirEntries {
		if !entry.IsDir() {
			continue
		}
		repoPath := filepath.Join(p.workspaceDir, entry.Name())
		r, err := git.PlainOpen(repoPath)
		if err != nil {
			continue
		}

		defaultBranch := "main"
		if head, err := r.Head(); err == nil && head.Name().IsBranch() {
			defaultBranch = head.Name().Short()
		}

		out = append(out, types.Repository{
			Name:          entry.Name(),
			CloneURL:      repoPath,
			Provider:      types.ProviderLocalGit,
			DefaultBranch: defaultBranch,
			Active:        true,
			Description:   readRepoDescription(repoPath),
		})
	}
	return out, nil
}

// CreateBranch creates branchName from baseBranch in the local clone.
func (p *LocalGitProvider) CreateBranch(_ context.Context, repo *types.Repository, branchName, baseBranch string) error {
	if baseBranch == "" {
		baseBranch = repo.DefaultBranch
	}

	repoPath := filepath.Join(p.workspaceDir, repo.Name)
	r, err := git.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}

	baseRef, err := r.Reference(plumbing.NewBranchReferenceName(baseBranch), true)
	if err != nil {
		return fmt.Errorf("failed to resolve base branch %s: %w", baseBranch, err)
	}

	newRef := plumbing.NewHashReference(plumbing.NewBranchReferenceName(branchName), baseRef.Hash())
	if err := r.Storer.SetReference(newRef); err != nil {
		return fmt.Errorf("failed to create branch: %w", err)
	}

	p.logger.Info("created branch",
		zap.String("repository", repo.Name),
		zap.String("branch", branchName),
		zap.String("base", baseBranch),
	)
	return nil
}

// DefaultBranch reports HEAD's branch name for the local clone.
func (p *LocalGitProvider) DefaultBranch(_ context.Context, repo *types.Repository) (string, error) {
	r, err := git.PlainOpen(filepath.Join(p.workspaceDir, repo.Name))
	if err != nil {
		return "", fmt.Errorf("failed to open repository: %w", err)
	}
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return repo.DefaultBranch, nil
	}
	return head.Name().Short(), nil
}

// readRepoDescription returns the contents of .git/description when the
// repository carries one, for keyword matching. git's stock placeholder
// text is treated as no description.
func readRepoDescription(repoPath string) string {
	data, err := os.ReadFile(filepath.Join(repoPath, ".git", "description"))
	if err != nil {
		return ""
	}
	desc := strings.TrimSpace(string(data))
	if strings.HasPrefix(desc, "Unnamed repository") {
		return ""
	}
	return desc
}
