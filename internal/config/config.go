package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort              = 8080
	defaultDataDir           = "data"
	defaultAPIBase           = "https://api.mdbridge.dev"
	defaultRequestTimeout    = 60 * time.Second
	defaultMaxConcurrent     = 6
	defaultMaxConcurrentJobs = 3
	defaultPollInterval      = 5 * time.Second
	defaultMaxWait           = 10 * time.Minute

	// TokenEnv overrides the token from the config file when set.
	TokenEnv = "MDBRIDGE_TOKEN"
)

// Config describes runtime configuration for the service as read from disk.
// It is raw material for a Snapshot; handlers never read it directly.
type Config struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`

	// APIBase serves slot acquisition; QueryBase serves task-status queries.
	// The conversion service exposes them on different domains, so they are
	// configured independently. QueryBase falls back to APIBase when empty.
	APIBase   string `yaml:"api_base"`
	QueryBase string `yaml:"query_base"`
	Token     string `yaml:"token"`

	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
	MaxConcurrentUploads  int `yaml:"max_concurrent_uploads"`
	MaxConcurrentJobs     int `yaml:"max_concurrent_jobs"`
	PollIntervalSeconds   int `yaml:"poll_interval_seconds"`
	MaxWaitSeconds        int `yaml:"max_wait_seconds"`

	AllowedTypes []string `yaml:"allowed_types"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:                  defaultPort,
		DataDir:               defaultDataDir,
		APIBase:               defaultAPIBase,
		RequestTimeoutSeconds: int(defaultRequestTimeout / time.Second),
		MaxConcurrentUploads:  defaultMaxConcurrent,
		MaxConcurrentJobs:     defaultMaxConcurrentJobs,
		PollIntervalSeconds:   int(defaultPollInterval / time.Second),
		MaxWaitSeconds:        int(defaultMaxWait / time.Second),
		AllowedTypes:          []string{"pdf", "doc", "docx", "ppt", "pptx", "png", "jpg"},
	}
}

// Load reads YAML config from the provided path and applies overrides in
// precedence order: environment > file > defaults. A missing or empty file
// yields defaults with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnv(cfg), nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) > 0 {
		if err := yaml.Unmarshal(fileData, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	}
	cfg = applyEnv(cfg)
	if err := cfg.normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg Config) Config {
	if tok := strings.TrimSpace(os.Getenv(TokenEnv)); tok != "" {
		cfg.Token = tok
	}
	return cfg
}

func (c *Config) normalize() error {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	c.APIBase = strings.TrimRight(strings.TrimSpace(c.APIBase), "/")
	c.QueryBase = strings.TrimRight(strings.TrimSpace(c.QueryBase), "/")
	if c.APIBase == "" {
		c.APIBase = defaultAPIBase
	}
	if c.QueryBase == "" {
		c.QueryBase = c.APIBase
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = int(defaultRequestTimeout / time.Second)
	}
	if c.MaxConcurrentUploads < 1 {
		return fmt.Errorf("invalid max_concurrent_uploads: %d (must be >= 1)", c.MaxConcurrentUploads)
	}
	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("invalid max_concurrent_jobs: %d (must be >= 1)", c.MaxConcurrentJobs)
	}
	if c.PollIntervalSeconds < 1 {
		c.PollIntervalSeconds = int(defaultPollInterval / time.Second)
	}
	if c.MaxWaitSeconds < 1 {
		c.MaxWaitSeconds = int(defaultMaxWait / time.Second)
	}
	c.AllowedTypes = normalizeTypes(c.AllowedTypes)
	return nil
}

func normalizeTypes(in []string) []string {
	if len(in) == 0 {
		return Default().AllowedTypes
	}
	seen := make(map[string]struct{}, len(in))
	normalized := make([]string, 0, len(in))
	for _, t := range in {
		v := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(t, ".")))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		normalized = append(normalized, v)
	}
	return normalized
}
