// Package evaluation generates interview questions and scores answers using
// a language model, with a scripted fallback for offline use.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/rehearse/internal/llm"
	"github.com/felixgeelhaar/rehearse/internal/session"
)

const instrumentationName = "github.com/felixgeelhaar/rehearse/internal/evaluation"

// DefaultTemperature is used when Config.Temperature is unset
const DefaultTemperature = 0.7

var (
	ErrEvaluationUnavailable = errors.New("evaluation unavailable")
	ErrEmptyQuestion         = errors.New("model returned an empty question")
)

// Config configures an LLMEvaluator
type Config struct {
	Model     string
	MaxTokens int

	// Temperature nil means DefaultTemperature; zero is a valid setting.
	Temperature *float64

	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns evaluator defaults
func DefaultConfig() Config {
	t := DefaultTemperature
	return Config{
		MaxTokens:   512,
		Temperature: &t,
		Timeout:     30 * time.Second,
	}
}

// LLMEvaluator implements session.Evaluator on top of an llm.Provider
type LLMEvaluator struct {
	provider llm.Provider
	prompter *Prompter
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer

	failures metric.Int64Counter
	tokens   metric.Int64Counter
}

// Ensure LLMEvaluator implements session.Evaluator
var _ session.Evaluator = (*LLMEvaluator)(nil)

// NewLLMEvaluator creates an evaluator backed by provider
func NewLLMEvaluator(provider llm.Provider, cfg Config) *LLMEvaluator {
	def := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Temperature == nil {
		cfg.Temperature = def.Temperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	meter := otel.Meter(instrumentationName)
	failures, _ := meter.Int64Counter("rehearse.evaluation.failures",
		metric.WithDescription("Failed language model calls"))
	tokens, _ := meter.Int64Counter("rehearse.llm.tokens",
		metric.WithDescription("Tokens consumed by language model calls"))

	return &LLMEvaluator{
		provider: provider,
		prompter: NewPrompter(),
		cfg:      cfg,
		logger:   logger.With("component", "evaluation", "provider", provider.Name()),
		tracer:   otel.Tracer(instrumentationName),
		failures: failures,
		tokens:   tokens,
	}
}

// NextQuestion asks the model for the next question
func (e *LLMEvaluator) NextQuestion(ctx context.Context, req session.QuestionRequest) (string, error) {
	ctx, span := e.tracer.Start(ctx, "evaluation.next_question",
		trace.WithAttributes(
			attribute.String("interview.role", req.Role),
			attribute.Int("interview.history", len(req.History)),
		))
	defer span.End()

	resp, err := e.generate(ctx, "question", &llm.Request{
		Model:       e.cfg.Model,
		System:      e.prompter.SystemPrompt(req.Persona),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: e.prompter.QuestionPrompt(req)}},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate question")
		return "", err
	}

	question := cleanQuestion(resp.Content)
	if question == "" {
		span.SetStatus(codes.Error, "empty question")
		return "", ErrEmptyQuestion
	}
	return question, nil
}

// Reply asks the model to react to an answer and score it. A reply that is
// not valid JSON is returned as interviewer text with a nil Eval.
func (e *LLMEvaluator) Reply(ctx context.Context, req session.ReplyRequest) (*session.Reply, error) {
	ctx, span := e.tracer.Start(ctx, "evaluation.reply",
		trace.WithAttributes(
			attribute.String("interview.role", req.Role),
			attribute.Int("interview.history", len(req.History)),
		))
	defer span.End()

	resp, err := e.generate(ctx, "reply", &llm.Request{
		Model:       e.cfg.Model,
		System:      e.prompter.SystemPrompt(req.Persona),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: e.prompter.ReplyPrompt(req)}},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		JSON:        true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate reply")
		return nil, err
	}

	reply := parseReply(resp.Content)
	if reply.Eval == nil {
		e.logger.WarnContext(ctx, "model reply had no usable evaluation", "length", len(resp.Content))
	}
	span.SetAttributes(attribute.Bool("evaluation.scored", reply.Eval != nil))
	return reply, nil
}

func (e *LLMEvaluator) generate(ctx context.Context, call string, req *llm.Request) (*llm.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.provider.Generate(ctx, req)
	if err != nil {
		e.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("call", call)))
		e.logger.WarnContext(ctx, "language model call failed",
			"call", call,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrEvaluationUnavailable, err)
	}

	usage := resp.Usage.InputTokens + resp.Usage.OutputTokens
	if usage > 0 {
		e.tokens.Add(ctx, int64(usage), metric.WithAttributes(attribute.String("call", call)))
	}
	e.logger.DebugContext(ctx, "language model call",
		"call", call,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"finish_reason", resp.FinishReason,
	)
	return resp, nil
}
