package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// EnvGithubToken is the environment variable name for the GitHub API token
	EnvGithubToken = "REPO_PULSE_GITHUB_TOKEN"

	DefaultDatabasePath = "repo_pulse.db"
	DefaultListenAddr   = "127.0.0.1:8080"
	DefaultLogLevel     = "info"
	DefaultCacheTTL     = 30
)

// Config represents the application configuration
type Config struct {
	// GitHub API token for authentication (optional, can be set via REPO_PULSE_GITHUB_TOKEN env var)
	GitHubToken string `yaml:"github_token"`

	// GitHub Enterprise REST base URL, e.g. https://ghe.example.com/api/v3/
	GitHubBaseURL string `yaml:"github_base_url,omitempty"`

	// Path to the SQLite database file, relative to the config file
	DatabasePath string `yaml:"database_path"`

	LogFile    string `yaml:"log_file,omitempty"`
	LogLevel   string `yaml:"log_level"`
	ListenAddr string `yaml:"listen_addr"`

	// Initial cache lifetime in minutes; settings changed at runtime take precedence
	CacheTTLMinutes int `yaml:"cache_ttl_minutes"`

	// Initial item limit; unset means the default caps
	ItemLimit *int `yaml:"item_limit,omitempty"`

	// Cron schedule for refreshing the selected repository, e.g. "@every 15m"
	RefreshSchedule string `yaml:"refresh_schedule,omitempty"`

	// Repository to select on startup in the format "owner/name"
	Repository string `yaml:"repository,omitempty"`
}

// LoadConfig loads the configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Check for GitHub token in environment variable
	if envToken := os.Getenv(EnvGithubToken); envToken != "" {
		config.GitHubToken = envToken
	}

	config.setDefaults()

	// Make database path absolute if it's relative
	if !filepath.IsAbs(config.DatabasePath) {
		configDir := filepath.Dir(path)
		config.DatabasePath = filepath.Join(configDir, config.DatabasePath)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) setDefaults() {
	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.CacheTTLMinutes == 0 {
		c.CacheTTLMinutes = DefaultCacheTTL
	}
	if c.GitHubBaseURL != "" && !strings.HasSuffix(c.GitHubBaseURL, "/") {
		c.GitHubBaseURL += "/"
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.CacheTTLMinutes < 1 || c.CacheTTLMinutes > 1440 {
		return fmt.Errorf("cache_ttl_minutes must be between 1 and 1440, got %d", c.CacheTTLMinutes)
	}
	if c.ItemLimit != nil && (*c.ItemLimit < 1 || *c.ItemLimit > 10000) {
		return fmt.Errorf("item_limit must be between 1 and 10000, got %d", *c.ItemLimit)
	}
	if c.Repository != "" && strings.Count(c.Repository, "/") != 1 {
		return fmt.Errorf("repository must be in the format 'owner/name', got %q", c.Repository)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateDefaultConfig creates a default configuration file if it doesn't exist
func CreateDefaultConfig(path string) error {
	// Check if the file already exists
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, don't overwrite
	}

	config := &Config{
		DatabasePath:    DefaultDatabasePath,
		LogLevel:        DefaultLogLevel,
		ListenAddr:      DefaultListenAddr,
		CacheTTLMinutes: DefaultCacheTTL,
	}

	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return SaveConfig(config, path)
}
