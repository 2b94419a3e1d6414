package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/garnizeh/taosdlc/pkg/ollama"
	"gopkg.in/yaml.v3"
)

const insecureJWTSecret = "supersecretkey"

// Outcome aggregation policies.
const (
	OutcomePolicyVeto     = "veto"
	OutcomePolicyMajority = "majority"
)

// Conditional approval policies.
const (
	ConditionalPending  = "pending"
	ConditionalApproved = "approved"
)

type Config struct {
	Addr           string        `yaml:"addr"`
	JWTSecret      string        `yaml:"jwt_secret"`
	APITimeout     time.Duration `yaml:"timeout"`
	DatabasePath   string        `yaml:"database_path"`
	TokenDuration  time.Duration `yaml:"token_duration"`
	MigrateOnStart bool          `yaml:"migrate_on_start"`
	LogLevel       string        `yaml:"log_level"`

	Workflow WorkflowConfig `yaml:"workflow"`
	AI       AIConfig       `yaml:"ai"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Ollama   ollama.Config  `yaml:"ollama"`
}

type WorkflowConfig struct {
	PhaseCount        int     `yaml:"phase_count"`
	OutcomePolicy     string  `yaml:"outcome_policy"`
	ConditionalPolicy string  `yaml:"conditional_policy"`
	DefaultApprovers  []int64 `yaml:"default_approvers"`
}

type AIConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	Template    string        `yaml:"template"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type JobsConfig struct {
	Workers int `yaml:"workers"`
	// Lease is how long a running job may go without an update before
	// another worker reclaims it.
	Lease time.Duration `yaml:"lease"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:          getEnv("TAO_ADDR", ":8080"),
		JWTSecret:     getEnv("TAO_JWT_SECRET", insecureJWTSecret),
		APITimeout:    15 * time.Second,
		DatabasePath:  getEnv("TAO_DATABASE_PATH", "tao.db"),
		TokenDuration: 8 * time.Hour,
		LogLevel:      "info",
		Workflow: WorkflowConfig{
			PhaseCount:        6,
			OutcomePolicy:     OutcomePolicyVeto,
			ConditionalPolicy: ConditionalPending,
		},
		AI: AIConfig{
			Timeout:     60 * time.Second,
			MaxAttempts: 3,
		},
		Jobs:   JobsConfig{Workers: 2, Lease: 10 * time.Minute},
		Ollama: ollama.DefaultConfig(),
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Validate checks the configuration and fills defaults that depend on other fields.
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	} else if c.JWTSecret == insecureJWTSecret && os.Getenv("TAO_ENV") != "development" {
		errs = append(errs, errors.New("jwt_secret uses the built-in default; set TAO_JWT_SECRET or TAO_ENV=development"))
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = 8 * time.Hour
	}

	switch c.Workflow.PhaseCount {
	case 0:
		c.Workflow.PhaseCount = 6
	case 6, 7:
	default:
		errs = append(errs, fmt.Errorf("workflow.phase_count must be 6 or 7, got %d", c.Workflow.PhaseCount))
	}
	switch c.Workflow.OutcomePolicy {
	case "":
		c.Workflow.OutcomePolicy = OutcomePolicyVeto
	case OutcomePolicyVeto, OutcomePolicyMajority:
	default:
		errs = append(errs, fmt.Errorf("workflow.outcome_policy %q is not one of veto, majority", c.Workflow.OutcomePolicy))
	}
	switch c.Workflow.ConditionalPolicy {
	case "":
		c.Workflow.ConditionalPolicy = ConditionalPending
	case ConditionalPending, ConditionalApproved:
	default:
		errs = append(errs, fmt.Errorf("workflow.conditional_policy %q is not one of pending, approved", c.Workflow.ConditionalPolicy))
	}

	if c.AI.Enabled && c.AI.Model == "" {
		errs = append(errs, errors.New("ai.model is required when ai.enabled is true"))
	}
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = 60 * time.Second
	}
	if c.AI.MaxAttempts <= 0 {
		c.AI.MaxAttempts = 3
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 2
	}
	if c.Jobs.Lease <= 0 {
		c.Jobs.Lease = 10 * time.Minute
	}
	c.Ollama = c.Ollama.WithDefaults()

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ParseLevel maps the configured log level to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level %q is not one of debug, info, warn, error", s)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
