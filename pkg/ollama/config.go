package ollama

import "time"

// Config holds settings for the Ollama client and model management.
type Config struct {
	// BaseURL is the HTTP endpoint for the Ollama instance, e.g. http://localhost:11434
	BaseURL string `yaml:"base_url" json:"base_url"`
	// DefaultModelNames is a list of known model names to manage by default
	DefaultModelNames []string `yaml:"models" json:"models"`
	// Timeout is the per-request timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Retries is number of retry attempts for transient failures; 0 disables retries
	Retries int `yaml:"retries" json:"retries"`
	// Backoff is the base backoff between retries
	Backoff time.Duration `yaml:"backoff" json:"backoff"`
	// CircuitFailureThreshold opens circuit after this many consecutive failures
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" json:"circuit_failure_threshold"`
	// CircuitReset is the duration after which the circuit attempts to half-open
	CircuitReset time.Duration `yaml:"circuit_reset" json:"circuit_reset"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:                 "http://localhost:11434",
		DefaultModelNames:       []string{"llama3"},
		Timeout:                 60 * time.Second,
		Retries:                 2,
		Backoff:                 500 * time.Millisecond,
		CircuitFailureThreshold: 5,
		CircuitReset:            30 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultConfig. Zero retries is kept.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if len(c.DefaultModelNames) == 0 {
		c.DefaultModelNames = d.DefaultModelNames
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = d.Backoff
	}
	if c.CircuitFailureThreshold <= 0 {
		c.CircuitFailureThreshold = d.CircuitFailureThreshold
	}
	if c.CircuitReset <= 0 {
		c.CircuitReset = d.CircuitReset
	}
	return c
}
