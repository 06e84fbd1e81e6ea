package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/rehearse/internal/config"
	"github.com/felixgeelhaar/rehearse/internal/evaluation"
	"github.com/felixgeelhaar/rehearse/internal/events"
	"github.com/felixgeelhaar/rehearse/internal/llm"
	"github.com/felixgeelhaar/rehearse/internal/session"
)

// EvaluatorScripted names the offline evaluator in status output
const EvaluatorScripted = "scripted"

// Services is the interview backend shared by the HTTP and MCP surfaces
type Services struct {
	Sessions  *session.Service
	Registry  *llm.Registry
	Publisher events.Publisher

	// Evaluator is the provider name backing question generation, or
	// EvaluatorScripted.
	Evaluator string
}

// ServicesConfig holds the inputs for NewServices. Evaluator and Publisher
// override what the config would build.
type ServicesConfig struct {
	Config    *config.LocalConfig
	Evaluator session.Evaluator
	Publisher events.Publisher
	Logger    *slog.Logger
}

// NewServices wires providers, the evaluator, event publishing and the
// session service from configuration
func NewServices(ctx context.Context, cfg ServicesConfig) (*Services, error) {
	if cfg.Config == nil {
		cfg.Config = config.DefaultLocalConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := cfg.Config

	registry := llm.NewRegistry()
	if err := setupLLMProviders(ctx, c, registry, logger); err != nil {
		return nil, fmt.Errorf("setup llm providers: %w", err)
	}

	svc := &Services{Registry: registry}

	evaluator := cfg.Evaluator
	switch {
	case evaluator != nil:
		svc.Evaluator = "custom"
	default:
		provider, err := registry.Default()
		if err != nil {
			logger.Warn("no LLM provider configured, using scripted questions", "error", err)
			evaluator = evaluation.NewScriptedEvaluator()
			svc.Evaluator = EvaluatorScripted
		} else {
			evaluator = evaluation.NewLLMEvaluator(provider, evaluation.Config{
				Model:       providerModel(c, provider.Name()),
				Temperature: providerTemperature(c, provider.Name()),
				Timeout:     time.Duration(c.Interview.EvaluationTimeoutSeconds) * time.Second,
				Logger:      logger,
			})
			svc.Evaluator = provider.Name()
		}
	}

	svc.Publisher = cfg.Publisher
	if svc.Publisher == nil {
		svc.Publisher = newPublisher(c.Events, logger)
	}

	opts := session.Options{
		Defaults: session.Config{
			Role:    c.Interview.DefaultRole,
			Level:   c.Interview.DefaultLevel,
			Persona: c.Interview.DefaultPersona,
		},
		QuestionTimeout:   time.Duration(c.Interview.QuestionTimeoutSeconds) * time.Second,
		EvaluationTimeout: time.Duration(c.Interview.EvaluationTimeoutSeconds) * time.Second,
		MaxQuestions:      c.Interview.MaxQuestions,
		Roles:             c.Interview.Roles,
		Levels:            c.Interview.Levels,
		Personas:          c.Interview.Personas,
		Publisher:         svc.Publisher,
		Logger:            logger,
	}
	svc.Sessions = session.NewService(session.NewStore(), evaluator, opts)

	return svc, nil
}

// Close releases providers and the event publisher
func (s *Services) Close() error {
	return errors.Join(s.Registry.Close(), s.Publisher.Close())
}

// setupLLMProviders registers every enabled provider that has credentials,
// wrapped with the configured resilience patterns
func setupLLMProviders(ctx context.Context, cfg *config.LocalConfig, registry *llm.Registry, logger *slog.Logger) error {
	rc := llm.ResilientConfig{
		EnableCircuitBreaker: cfg.Resilience.CircuitBreaker,
		EnableRetry:          cfg.Resilience.Retry,
		EnableBulkhead:       cfg.Resilience.Bulkhead,
		EnableRateLimit:      cfg.Resilience.RateLimit,
		MaxAttempts:          cfg.Resilience.MaxAttempts,
		MaxConcurrent:        cfg.Resilience.MaxConcurrent,
		RatePerSecond:        cfg.Resilience.RatePerSecond,
		Logger:               logger,
	}

	for name, providerCfg := range cfg.LLM.Providers {
		if providerCfg == nil || !providerCfg.Enabled {
			continue
		}

		var provider llm.Provider
		switch name {
		case "claude":
			if providerCfg.APIKey == "" {
				logger.Debug("Claude provider enabled but no API key set")
				continue
			}
			provider = llm.NewClaudeProvider(llm.ClaudeConfig{
				APIKey:  providerCfg.APIKey,
				Model:   providerCfg.Model,
				BaseURL: providerCfg.URL,
			})

		case "openai":
			if providerCfg.APIKey == "" {
				logger.Debug("OpenAI provider enabled but no API key set")
				continue
			}
			provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
				APIKey:  providerCfg.APIKey,
				Model:   providerCfg.Model,
				BaseURL: providerCfg.URL,
			})

		case "gemini":
			if providerCfg.APIKey == "" {
				logger.Debug("Gemini provider enabled but no API key set")
				continue
			}
			p, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{
				APIKey:  providerCfg.APIKey,
				Model:   providerCfg.Model,
				BaseURL: providerCfg.URL,
			})
			if err != nil {
				return fmt.Errorf("gemini: %w", err)
			}
			provider = p

		case "ollama":
			provider = llm.NewOllamaProvider(llm.OllamaConfig{
				BaseURL: providerCfg.URL,
				Model:   providerCfg.Model,
			})

		default:
			logger.Warn("unknown LLM provider in config", "name", name)
			continue
		}

		registry.Register(name, llm.NewResilientProvider(provider, rc))
		logger.Info("registered LLM provider", "name", name, "model", providerCfg.Model)
	}

	if name := cfg.LLM.DefaultProvider; name != "" {
		// An unregistered default falls back to auto selection.
		if err := registry.SetDefault(name); err != nil {
			logger.Warn("default LLM provider unavailable", "name", name, "error", err)
		}
	}
	return nil
}

func providerModel(cfg *config.LocalConfig, name string) string {
	if p, ok := cfg.LLM.Providers[name]; ok && p != nil {
		return p.Model
	}
	return ""
}

func providerTemperature(cfg *config.LocalConfig, name string) *float64 {
	if p, ok := cfg.LLM.Providers[name]; ok && p != nil {
		return p.Temperature
	}
	return nil
}

func newPublisher(cfg config.EventsConfig, logger *slog.Logger) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.Log{Logger: logger}
	}
	p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange, logger)
	if err != nil {
		logger.Warn("event broker unavailable, logging events instead", "error", err)
		return events.Log{Logger: logger}
	}
	return p
}
