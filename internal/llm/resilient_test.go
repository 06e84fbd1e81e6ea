package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestDefaultResilientConfig(t *testing.T) {
	cfg := DefaultResilientConfig()

	if !cfg.EnableCircuitBreaker || !cfg.EnableRetry || !cfg.EnableBulkhead || !cfg.EnableRateLimit {
		t.Errorf("all patterns should be enabled by default: %+v", cfg)
	}
	if cfg.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2", cfg.MaxAttempts)
	}
	if cfg.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, want 4", cfg.MaxConcurrent)
	}
}

func TestNewResilientProvider_NoPatterns(t *testing.T) {
	p := &mockProvider{name: "test", response: &Response{Content: "ok"}}
	rp := NewResilientProvider(p, ResilientConfig{})

	if rp.circuitBreaker != nil || rp.retrier != nil || rp.bulkhead != nil || rp.rateLimit != nil {
		t.Error("no pattern should be configured when all are disabled")
	}

	resp, err := rp.Generate(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q, want ok", resp.Content)
	}
}

func TestResilientProvider_Generate(t *testing.T) {
	p := &mockProvider{name: "claude", response: &Response{Content: "question"}}
	rp := NewResilientProvider(p, DefaultResilientConfig())
	defer rp.Close()

	resp, err := rp.Generate(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Content != "question" {
		t.Errorf("Content = %q", resp.Content)
	}
	if rp.Name() != "claude" {
		t.Errorf("Name() = %q", rp.Name())
	}
}

func TestResilientProvider_NonRetryableErrorCalledOnce(t *testing.T) {
	p := &mockProvider{name: "test", err: &APIError{Provider: "test", StatusCode: http.StatusBadRequest}}
	rp := NewResilientProvider(p, ResilientConfig{EnableRetry: true, MaxAttempts: 3})

	_, err := rp.Generate(context.Background(), &Request{})
	if err == nil {
		t.Fatal("Generate() should fail")
	}
	if n := p.calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}
}

func TestResilientProvider_RateLimited(t *testing.T) {
	p := &mockProvider{name: "test", response: &Response{}}
	rp := NewResilientProvider(p, ResilientConfig{EnableRateLimit: true, RatePerSecond: 1})
	defer rp.Close()

	var limited bool
	for i := 0; i < 10; i++ {
		if _, err := rp.Generate(context.Background(), &Request{}); errors.Is(err, ErrRateLimited) {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("expected ErrRateLimited after exceeding burst")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &APIError{StatusCode: http.StatusTooManyRequests}, true},
		{"503 wrapped", fmt.Errorf("call: %w", &APIError{StatusCode: http.StatusServiceUnavailable}), true},
		{"400", &APIError{StatusCode: http.StatusBadRequest}, false},
		{"401", &APIError{StatusCode: http.StatusUnauthorized}, false},
		{"deadline", context.DeadlineExceeded, false},
		{"canceled", fmt.Errorf("do request: %w", context.Canceled), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
