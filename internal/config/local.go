package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// LocalConfig holds configuration for the rehearse daemon
type LocalConfig struct {
	Daemon     DaemonConfig     `yaml:"daemon"`
	LLM        LLMConfig        `yaml:"llm"`
	Interview  InterviewConfig  `yaml:"interview"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Events     EventsConfig     `yaml:"events"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port         int      `yaml:"port"`
	Bind         string   `yaml:"bind"`
	LogLevel     string   `yaml:"log_level"`
	CORSOrigins  []string `yaml:"cors_origins"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
}

// LLMConfig holds LLM provider settings
type LLMConfig struct {
	DefaultProvider string                     `yaml:"default_provider"`
	Providers       map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds settings for a single LLM provider
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	URL     string `yaml:"url,omitempty"`
	APIKey  string `yaml:"-"` // secrets.yaml or environment

	// Temperature is sent to the provider when set; nil keeps the evaluator default.
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// InterviewConfig holds interview defaults and evaluation limits
type InterviewConfig struct {
	DefaultRole              string   `yaml:"default_role"`
	DefaultLevel             string   `yaml:"default_level"`
	DefaultPersona           string   `yaml:"default_persona"`
	Roles                    []string `yaml:"roles"`
	Levels                   []string `yaml:"levels"`
	Personas                 []string `yaml:"personas"`
	QuestionTimeoutSeconds   int      `yaml:"question_timeout_seconds"`
	EvaluationTimeoutSeconds int      `yaml:"evaluation_timeout_seconds"`
	MaxQuestions             int      `yaml:"max_questions"` // 0 = unlimited
}

// ResilienceConfig toggles the fortify wrappers around LLM providers
type ResilienceConfig struct {
	CircuitBreaker bool `yaml:"circuit_breaker"`
	Retry          bool `yaml:"retry"`
	MaxAttempts    int  `yaml:"max_attempts"`
	Bulkhead       bool `yaml:"bulkhead"`
	MaxConcurrent  int  `yaml:"max_concurrent"`
	RateLimit      bool `yaml:"rate_limit"`
	RatePerSecond  int  `yaml:"rate_per_second"`
}

// EventsConfig holds the interview event publisher settings. An empty
// AMQPURL disables publishing.
type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

// TelemetryConfig holds OpenTelemetry export settings
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// SecretsConfig holds API keys loaded from secrets.yaml
type SecretsConfig struct {
	Providers map[string]SecretEntry `yaml:"providers"`
}

// SecretEntry is a single provider credential
type SecretEntry struct {
	APIKey string `yaml:"api_key"`
}

// Dir returns the rehearse home directory: $REHEARSE_HOME or ~/.rehearse
func Dir() (string, error) {
	if dir := os.Getenv("REHEARSE_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".rehearse"), nil
}

// EnsureDir creates the rehearse home directory and its subdirectories
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs", "telemetry"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns the built-in configuration
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:         7433,
			Bind:         "127.0.0.1",
			LogLevel:     "info",
			CORSOrigins:  []string{"*"},
			MaxBodyBytes: 1 << 20,
		},
		LLM: LLMConfig{
			DefaultProvider: "auto",
			Providers: map[string]*ProviderConfig{
				"claude": {Enabled: true, Model: "claude-sonnet-4-20250514"},
				"openai": {Enabled: true, Model: "gpt-4o-mini"},
				"gemini": {Enabled: true, Model: "gemini-2.0-flash"},
				"ollama": {Enabled: false, URL: "http://localhost:11434", Model: "llama3.1"},
			},
		},
		Interview: InterviewConfig{
			DefaultRole:              "software_engineer",
			DefaultLevel:             "mid",
			DefaultPersona:           "efficient",
			Roles:                    []string{"software_engineer", "sales", "retail"},
			Levels:                   []string{"junior", "mid", "senior"},
			Personas:                 []string{"efficient", "confused", "chatty", "friendly", "challenging"},
			QuestionTimeoutSeconds:   30,
			EvaluationTimeoutSeconds: 30,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: true,
			Retry:          true,
			MaxAttempts:    2,
			Bulkhead:       true,
			MaxConcurrent:  4,
			RateLimit:      true,
			RatePerSecond:  2,
		},
		Events: EventsConfig{
			Exchange: "rehearse.events",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "rehearsed",
		},
	}
}

// LoadLocalConfig loads config.yaml and secrets.yaml from the rehearse home
// directory, then applies environment overrides. Missing files are not errors.
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadLocalConfigFrom(dir)
}

// LoadLocalConfigFrom is LoadLocalConfig rooted at dir
func LoadLocalConfigFrom(dir string) (*LocalConfig, error) {
	cfg := DefaultLocalConfig()

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	ApplyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(dir string, cfg *LocalConfig) error {
	data, err := os.ReadFile(filepath.Join(dir, "secrets.yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}

	for name, secret := range secrets.Providers {
		if provider, ok := cfg.LLM.Providers[name]; ok {
			provider.APIKey = secret.APIKey
		}
	}
	return nil
}

// Validate checks the config for values the daemon cannot run with
func (c *LocalConfig) Validate() error {
	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		return fmt.Errorf("%w: daemon.port %d out of range", ErrInvalidConfig, c.Daemon.Port)
	}
	if p := c.LLM.DefaultProvider; p != "" && p != "auto" {
		if _, ok := c.LLM.Providers[p]; !ok {
			return fmt.Errorf("%w: unknown default provider %q", ErrInvalidConfig, p)
		}
	}
	if c.Interview.QuestionTimeoutSeconds <= 0 || c.Interview.EvaluationTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: interview timeouts must be positive", ErrInvalidConfig)
	}
	if len(c.Interview.Roles) == 0 {
		return fmt.Errorf("%w: interview.roles is empty", ErrInvalidConfig)
	}
	if !slices.Contains(c.Interview.Roles, c.Interview.DefaultRole) {
		return fmt.Errorf("%w: default role %q not in interview.roles", ErrInvalidConfig, c.Interview.DefaultRole)
	}
	if l := c.Interview.Levels; len(l) > 0 && !slices.Contains(l, c.Interview.DefaultLevel) {
		return fmt.Errorf("%w: default level %q not in interview.levels", ErrInvalidConfig, c.Interview.DefaultLevel)
	}
	if p := c.Interview.Personas; len(p) > 0 && !slices.Contains(p, c.Interview.DefaultPersona) {
		return fmt.Errorf("%w: default persona %q not in interview.personas", ErrInvalidConfig, c.Interview.DefaultPersona)
	}
	if c.Interview.MaxQuestions < 0 {
		return fmt.Errorf("%w: interview.max_questions is negative", ErrInvalidConfig)
	}
	return nil
}

// Addr returns the daemon listen address
func (c *LocalConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Daemon.Bind, c.Daemon.Port)
}

// SaveLocalConfig writes cfg to config.yaml in the rehearse home directory
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SaveSecrets merges provider API keys into secrets.yaml (mode 0600). Keys
// already stored for other providers are kept.
func SaveSecrets(keys map[string]string) error {
	dir, err := EnsureDir()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "secrets.yaml")

	var secrets SecretsConfig
	existing, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read secrets: %w", err)
	default:
		if err := yaml.Unmarshal(existing, &secrets); err != nil {
			return fmt.Errorf("parse secrets: %w", err)
		}
	}
	if secrets.Providers == nil {
		secrets.Providers = make(map[string]SecretEntry, len(keys))
	}
	for name, key := range keys {
		secrets.Providers[name] = SecretEntry{APIKey: key}
	}

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	return nil
}
