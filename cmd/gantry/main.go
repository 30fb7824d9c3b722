package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clintrovert/gantry/internal/branch"
	"github.com/clintrovert/gantry/internal/config"
	"github.com/clintrovert/gantry/internal/ledger"
	"github.com/clintrovert/gantry/internal/match"
	"github.com/clintrovert/gantry/internal/orchestrator"
	"github.com/clintrovert/gantry/internal/provider"
	"github.com/clintrovert/gantry/internal/store"
	"github.com/clintrovert/gantry/internal/syncer"
	"github.com/clintrovert/gantry/internal/tracker"
	"github.com/clintrovert/gantry/pkg/types"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "gantry",
		Short: "Bridge an issue tracker and a source-control provider",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./gantry.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newTasksCmd())
	root.AddCommand(newProcessCmd())
	root.AddCommand(newApproveCmd())
	root.AddCommand(newRejectCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildEngine wires the orchestrator from configuration.
func buildEngine() (*orchestrator.Orchestrator, *config.Config, *zap.Logger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}

	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	lg := ledger.New(logger)

	source, err := tracker.NewJiraSource(
		cfg.Tracker.BaseURL,
		cfg.Tracker.Username,
		cfg.Tracker.APIToken,
		cfg.Tracker.ProjectKey,
		logger,
	)
	if err != nil {
		return nil, nil, nil, err
	}

	registry := provider.NewRegistry()
	registry.Register(types.ProviderGitHub,
		provider.NewGitHubProvider(cfg.Provider.GitHubToken, cfg.Provider.GitHubOwner, logger))
	registry.Register(types.ProviderLocalGit,
		provider.NewLocalGitProvider(cfg.Provider.WorkspaceDir, logger))

	prov, err := registry.Resolve(types.ProviderTag(cfg.Provider.Name))
	if err != nil {
		return nil, nil, nil, err
	}

	var matcher match.Matcher
	switch cfg.Matcher.Strategy {
	case "ai":
		matcher = match.NewAIMatcher(cfg.Matcher.OpenAIAPIKey, cfg.Matcher.OpenAIModel, logger)
	default:
		matcher = match.NewKeywordMatcher(cfg.Matcher.MinKeywordMatches, logger)
	}

	provisioner := branch.NewProvisioner(
		st, lg, prov, source,
		cfg.Orchestrator.RequestTimeout,
		cfg.Branch.CommentOnCreate,
		logger,
	)
	coordinator := syncer.NewCoordinator(st, lg, logger)

	orch := orchestrator.New(st, lg, coordinator, matcher, provisioner, source, prov,
		orchestrator.Options{
			MaxConcurrentTasks: cfg.Orchestrator.MaxConcurrentTasks,
			RequestTimeout:     cfg.Orchestrator.RequestTimeout,
			TrackerQuery:       cfg.Tracker.Query,
		},
		logger,
	)
	return orch, cfg, logger, nil
}
