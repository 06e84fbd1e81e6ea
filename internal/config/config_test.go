package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyEnv(t *testing.T) {
	t.Setenv("REHEARSE_PORT", "8088")
	t.Setenv("REHEARSE_BIND", "0.0.0.0")
	t.Setenv("REHEARSE_LOG_LEVEL", "debug")
	t.Setenv("REHEARSE_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("OLLAMA_URL", "http://ollama:11434")
	t.Setenv("REHEARSE_AMQP_URL", "amqp://localhost")
	t.Setenv("REHEARSE_CORS_ORIGINS", "http://a,http://b")
	t.Setenv("REHEARSE_MAX_QUESTIONS", "3")

	cfg := DefaultLocalConfig()
	ApplyEnv(cfg)

	if cfg.Daemon.Port != 8088 {
		t.Errorf("Port = %d, want 8088", cfg.Daemon.Port)
	}
	if cfg.Daemon.Bind != "0.0.0.0" || cfg.Daemon.LogLevel != "debug" {
		t.Errorf("Daemon = %+v", cfg.Daemon)
	}
	if cfg.LLM.DefaultProvider != "gemini" {
		t.Errorf("DefaultProvider = %q", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.Providers["gemini"].APIKey != "g-key" {
		t.Errorf("gemini key = %q", cfg.LLM.Providers["gemini"].APIKey)
	}
	ollama := cfg.LLM.Providers["ollama"]
	if !ollama.Enabled || ollama.URL != "http://ollama:11434" {
		t.Errorf("ollama = %+v, want enabled with env URL", ollama)
	}
	if cfg.Events.AMQPURL != "amqp://localhost" {
		t.Errorf("AMQPURL = %q", cfg.Events.AMQPURL)
	}
	if len(cfg.Daemon.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.Daemon.CORSOrigins)
	}
	if cfg.Interview.MaxQuestions != 3 {
		t.Errorf("MaxQuestions = %d", cfg.Interview.MaxQuestions)
	}
}

func TestApplyEnv_InvalidNumbersKeepDefaults(t *testing.T) {
	t.Setenv("REHEARSE_PORT", "not-a-port")
	t.Setenv("REHEARSE_TELEMETRY", "maybe")

	cfg := DefaultLocalConfig()
	ApplyEnv(cfg)

	if cfg.Daemon.Port != 7433 {
		t.Errorf("Port = %d, want default", cfg.Daemon.Port)
	}
	if cfg.Telemetry.Enabled {
		t.Error("Telemetry.Enabled should keep default")
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("REHEARSE_TEST_FROM_FILE=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("REHEARSE_TEST_FROM_FILE") })

	if err := LoadEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := os.Getenv("REHEARSE_TEST_FROM_FILE"); got != "loaded" {
		t.Errorf("REHEARSE_TEST_FROM_FILE = %q, want loaded", got)
	}
}

func TestLoadEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("REHEARSE_TEST_KEEP=file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REHEARSE_TEST_KEEP", "process")

	if err := LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := os.Getenv("REHEARSE_TEST_KEEP"); got != "process" {
		t.Errorf("REHEARSE_TEST_KEEP = %q, want process", got)
	}
}
