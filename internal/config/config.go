package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv loads variables from the given .env files (".env" when none are
// named). Variables already set in the process environment win. Missing files
// are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables on cfg
func ApplyEnv(cfg *LocalConfig) {
	cfg.Daemon.Port = getEnvInt("REHEARSE_PORT", cfg.Daemon.Port)
	cfg.Daemon.Bind = getEnv("REHEARSE_BIND", cfg.Daemon.Bind)
	cfg.Daemon.LogLevel = getEnv("REHEARSE_LOG_LEVEL", cfg.Daemon.LogLevel)
	if origins := getEnv("REHEARSE_CORS_ORIGINS", ""); origins != "" {
		cfg.Daemon.CORSOrigins = strings.Split(origins, ",")
	}

	cfg.LLM.DefaultProvider = getEnv("REHEARSE_PROVIDER", cfg.LLM.DefaultProvider)
	applyKey(cfg, "claude", "ANTHROPIC_API_KEY")
	applyKey(cfg, "openai", "OPENAI_API_KEY")
	applyKey(cfg, "gemini", "GEMINI_API_KEY")
	if p, ok := cfg.LLM.Providers["ollama"]; ok {
		if url := getEnv("OLLAMA_URL", ""); url != "" {
			p.URL = url
			p.Enabled = true
		}
	}

	cfg.Interview.EvaluationTimeoutSeconds = getEnvInt("REHEARSE_EVAL_TIMEOUT", cfg.Interview.EvaluationTimeoutSeconds)
	cfg.Interview.MaxQuestions = getEnvInt("REHEARSE_MAX_QUESTIONS", cfg.Interview.MaxQuestions)

	cfg.Events.AMQPURL = getEnv("REHEARSE_AMQP_URL", cfg.Events.AMQPURL)
	cfg.Telemetry.Enabled = getEnvBool("REHEARSE_TELEMETRY", cfg.Telemetry.Enabled)
}

func applyKey(cfg *LocalConfig, provider, env string) {
	key := os.Getenv(env)
	if key == "" {
		return
	}
	p, ok := cfg.LLM.Providers[provider]
	if !ok {
		p = &ProviderConfig{Enabled: true}
		cfg.LLM.Providers[provider] = p
	}
	p.APIKey = key
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
