package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type GitHub struct {
	APIBaseURL string `mapstructure:"api_base_url"`
	Repo       string `mapstructure:"repo"`
	Token      string `mapstructure:"token"`
}

type Jira struct {
	URL        string `mapstructure:"url"`
	Username   string `mapstructure:"username"`
	APIToken   string `mapstructure:"api_token"`
	ProjectKey string `mapstructure:"project_key"`
}

type Config struct {
	HomeAccountID string `mapstructure:"home_account_id" validate:"required"`
	Region        string `mapstructure:"region"`

	// Cross-account trust exchange parameters.
	RoleName   string `mapstructure:"role_name"`
	ExternalID string `mapstructure:"external_id"`

	Workers         int           `mapstructure:"workers"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	BackendTimeout  time.Duration `mapstructure:"backend_timeout"`

	DBPath   string `mapstructure:"db_path"`
	TopicARN string `mapstructure:"topic_arn"`

	// Backends lists ticket destinations in priority order. The durable
	// local store is always appended as the backend of last resort.
	Backends []string `mapstructure:"backends"`
	GitHub   GitHub   `mapstructure:"github"`
	Jira     Jira     `mapstructure:"jira"`
}

// LoadConfig loads the orchestrator configuration from the given file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("workers", 4)
	v.SetDefault("dispatch_timeout", "30s")
	v.SetDefault("backend_timeout", "15s")
	v.SetDefault("db_path", "remedia.db")
	v.SetDefault("role_name", "SecurityAutoRemediationRole")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.HomeAccountID == "" {
		return nil, fmt.Errorf("home_account_id is required")
	}
	return &cfg, nil
}
