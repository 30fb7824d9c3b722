// Package config loads gantry's configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Tracker      TrackerConfig      `mapstructure:"tracker"`
	Provider     ProviderConfig     `mapstructure:"provider"`
	Matcher      MatcherConfig      `mapstructure:"matcher"`
	Branch       BranchConfig       `mapstructure:"branch"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Server       ServerConfig       `mapstructure:"server"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type TrackerConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Username   string `mapstructure:"username"`
	APIToken   string `mapstructure:"api_token"`
	ProjectKey string `mapstructure:"project_key"`
	Query      string `mapstructure:"query"`
}

type ProviderConfig struct {
	// Name selects the registered repository provider: github or local.
	Name         string `mapstructure:"name"`
	GitHubToken  string `mapstructure:"github_token"`
	GitHubOwner  string `mapstructure:"github_owner"`
	WorkspaceDir string `mapstructure:"workspace_dir"`
}

type MatcherConfig struct {
	// Strategy selects the matching implementation: keyword or ai.
	Strategy          string `mapstructure:"strategy"`
	MinKeywordMatches int    `mapstructure:"min_keyword_matches"`
	OpenAIAPIKey      string `mapstructure:"openai_api_key"`
	OpenAIModel       string `mapstructure:"openai_model"`
}

type BranchConfig struct {
	CommentOnCreate bool `mapstructure:"comment_on_create"`
}

type OrchestratorConfig struct {
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

func setDefaults() {
	viper.SetDefault("database.path", "gantry.db")
	viper.SetDefault("tracker.query", "")
	viper.SetDefault("provider.name", "github")
	viper.SetDefault("provider.workspace_dir", "./workspace")
	viper.SetDefault("matcher.strategy", "keyword")
	viper.SetDefault("matcher.min_keyword_matches", 1)
	viper.SetDefault("branch.comment_on_create", true)
	viper.SetDefault("orchestrator.max_concurrent_tasks", 4)
	viper.SetDefault("orchestrator.request_timeout", 30*time.Second)
	viper.SetDefault("server.port", "8080")
}

// Load reads configuration from the given file (optional), the working
// directory, and GANTRY_* environment variables.
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("gantry")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/gantry")
	}

	viper.SetEnvPrefix("GANTRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Orchestrator.MaxConcurrentTasks < 1 {
		return nil, fmt.Errorf("orchestrator.max_concurrent_tasks must be at least 1")
	}
	return &cfg, nil
}
