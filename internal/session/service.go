package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/rehearse/internal/events"
)

const instrumentationName = "github.com/felixgeelhaar/rehearse/internal/session"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrNoActiveQuestion    = errors.New("no active question")
	ErrSessionFinished     = errors.New("session is finished")
	ErrQuestionUnavailable = errors.New("question generation failed")
	ErrInvalidConfig       = errors.New("invalid interview config")
)

// Options configures the lifecycle service
type Options struct {
	Defaults          Config
	QuestionTimeout   time.Duration
	EvaluationTimeout time.Duration

	// MaxQuestions ends the interview after this many questions; 0 means no limit.
	MaxQuestions int

	// Roles, Levels and Personas restrict what Create accepts. An empty list
	// accepts anything.
	Roles    []string
	Levels   []string
	Personas []string

	Publisher EventPublisher
	Logger    *slog.Logger
}

// DefaultOptions returns the stock interview defaults
func DefaultOptions() Options {
	return Options{
		Defaults: Config{
			Role:    "software_engineer",
			Level:   "mid",
			Persona: "efficient",
		},
		QuestionTimeout:   30 * time.Second,
		EvaluationTimeout: 30 * time.Second,
	}
}

// NextResult is the outcome of a next-question request: a wait signal, a
// done signal, or a new question.
type NextResult struct {
	Wait     bool            `json:"wait"`
	Done     bool            `json:"done"`
	Question *QuestionAnswer `json:"question,omitempty"`
}

// Summary is a compact view of a session for status listings
type Summary struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Level     string    `json:"level"`
	Persona   string    `json:"persona"`
	Questions int       `json:"questions"`
	Answered  int       `json:"answered"`
	Waiting   bool      `json:"waitingForAnswer"`
	Finished  bool      `json:"finished"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service enforces the interview question/answer state machine and mediates
// every evaluator call.
type Service struct {
	store     SessionStore
	evaluator Evaluator
	opts      Options
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics
}

// NewService creates a lifecycle service. Zero-valued options fall back to
// DefaultOptions.
func NewService(store SessionStore, evaluator Evaluator, opts Options) *Service {
	def := DefaultOptions()
	if opts.Defaults.Role == "" {
		opts.Defaults.Role = def.Defaults.Role
	}
	if opts.Defaults.Level == "" {
		opts.Defaults.Level = def.Defaults.Level
	}
	if opts.Defaults.Persona == "" {
		opts.Defaults.Persona = def.Defaults.Persona
	}
	if opts.QuestionTimeout <= 0 {
		opts.QuestionTimeout = def.QuestionTimeout
	}
	if opts.EvaluationTimeout <= 0 {
		opts.EvaluationTimeout = def.EvaluationTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:     store,
		evaluator: evaluator,
		opts:      opts,
		logger:    logger.With("component", "session"),
		tracer:    otel.Tracer(instrumentationName),
		metrics:   newMetrics(otel.Meter(instrumentationName)),
	}
}

// Create starts a new interview, filling unset fields from the defaults
func (s *Service) Create(ctx context.Context, cfg Config) (*Session, error) {
	cfg.Role = orDefault(cfg.Role, s.opts.Defaults.Role)
	cfg.Level = orDefault(cfg.Level, s.opts.Defaults.Level)
	cfg.Persona = orDefault(cfg.Persona, s.opts.Defaults.Persona)
	if err := checkAllowed("role", cfg.Role, s.opts.Roles); err != nil {
		return nil, err
	}
	if err := checkAllowed("level", cfg.Level, s.opts.Levels); err != nil {
		return nil, err
	}
	if err := checkAllowed("persona", cfg.Persona, s.opts.Personas); err != nil {
		return nil, err
	}

	sess := New(cfg)
	if err := s.store.Add(sess); err != nil {
		return nil, fmt.Errorf("add session: %w", err)
	}

	s.metrics.sessions.Add(ctx, 1)
	s.logger.InfoContext(ctx, "session created",
		"session_id", sess.ID,
		"role", cfg.Role,
		"level", cfg.Level,
		"persona", cfg.Persona,
	)
	s.publish(ctx, events.SessionCreated, sess.ID, map[string]any{
		"role":    cfg.Role,
		"level":   cfg.Level,
		"persona": cfg.Persona,
	})

	return sess.Clone(), nil
}

// Get returns a snapshot of the session
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(id)
}

// List summarises all sessions, oldest first
func (s *Service) List(ctx context.Context) []Summary {
	all := s.store.List()
	out := make([]Summary, 0, len(all))
	for _, sess := range all {
		out = append(out, Summary{
			ID:        sess.ID,
			Role:      sess.Role,
			Level:     sess.Level,
			Persona:   sess.Persona,
			Questions: len(sess.QuestionsAsked),
			Answered:  sess.AnsweredCount(),
			Waiting:   sess.WaitingForAnswer,
			Finished:  sess.Finished,
			CreatedAt: sess.CreatedAt,
		})
	}
	return out
}

// NextQuestion issues the next question. While a question is outstanding or
// being generated it returns a wait signal and does not call the evaluator.
// The session lock is released while the evaluator runs.
func (s *Service) NextQuestion(ctx context.Context, id string) (*NextResult, error) {
	ctx, span := s.tracer.Start(ctx, "session.next_question",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	var (
		req    QuestionRequest
		result *NextResult
	)
	err := s.store.Update(id, func(sess *Session) error {
		switch {
		case sess.Finished:
			return ErrSessionFinished
		case sess.Busy():
			result = &NextResult{Wait: true}
			return nil
		case s.opts.MaxQuestions > 0 && len(sess.QuestionsAsked) >= s.opts.MaxQuestions:
			result = &NextResult{Done: true}
			return nil
		}
		sess.generating = true
		req = QuestionRequest{
			Role:    sess.Role,
			Level:   sess.Level,
			Persona: sess.Persona,
			History: sess.History(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result != nil {
		span.SetAttributes(attribute.Bool("session.wait", result.Wait), attribute.Bool("session.done", result.Done))
		return result, nil
	}

	qctx, cancel := context.WithTimeout(ctx, s.opts.QuestionTimeout)
	start := time.Now()
	text, genErr := s.evaluator.NextQuestion(qctx, req)
	cancel()
	text = strings.TrimSpace(text)
	if genErr == nil && text == "" {
		genErr = errors.New("evaluator returned an empty question")
	}
	s.metrics.observe(ctx, "question", time.Since(start), genErr)

	var asked QuestionAnswer
	err = s.store.Update(id, func(sess *Session) error {
		sess.generating = false
		if genErr != nil {
			return nil
		}
		if sess.Finished {
			return ErrSessionFinished
		}
		asked = sess.appendQuestion(text)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if genErr != nil {
		span.RecordError(genErr)
		span.SetStatus(codes.Error, "question generation failed")
		s.logger.WarnContext(ctx, "question generation failed", "session_id", id, "error", genErr)
		return nil, fmt.Errorf("%w: %w", ErrQuestionUnavailable, genErr)
	}

	s.metrics.questions.Add(ctx, 1)
	s.publish(ctx, events.QuestionAsked, id, map[string]any{
		"questionId": asked.ID,
		"text":       asked.Text,
	})
	return &NextResult{Question: &asked}, nil
}

// SubmitAnswer records the answer to the outstanding question and clears the
// waiting flag before the evaluator is called, so a slow or failing
// evaluation never blocks the next question. Evaluation failures are logged
// and replaced by DefaultRubric.
func (s *Service) SubmitAnswer(ctx context.Context, id, text string) (*Reply, error) {
	ctx, span := s.tracer.Start(ctx, "session.submit_answer",
		trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	var (
		req ReplyRequest
		idx int
	)
	err := s.store.Update(id, func(sess *Session) error {
		if sess.Finished {
			return ErrSessionFinished
		}
		q, ok := sess.Active()
		if !ok {
			return ErrNoActiveQuestion
		}

		idx = len(sess.QuestionsAsked) - 1
		req = ReplyRequest{
			Role:            sess.Role,
			Level:           sess.Level,
			Persona:         sess.Persona,
			Question:        q.Text,
			CandidateAnswer: text,
			History:         sess.History(),
		}

		now := time.Now()
		answer := text
		q.CandidateAnswer = &answer
		q.AnsweredAt = &now
		sess.WaitingForAnswer = false
		sess.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The answer is already recorded; finish scoring it even if the caller
	// goes away.
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.EvaluationTimeout)
	start := time.Now()
	reply, evalErr := s.evaluator.Reply(ectx, req)
	cancel()
	s.metrics.observe(ctx, "reply", time.Since(start), evalErr)

	eval := DefaultRubric()
	var interviewer string
	switch {
	case evalErr != nil:
		span.RecordError(evalErr)
		s.metrics.fallbacks.Add(ctx, 1)
		s.logger.WarnContext(ctx, "evaluation unavailable, using default rubric", "session_id", id, "error", evalErr)
	case reply == nil:
		s.metrics.fallbacks.Add(ctx, 1)
	default:
		interviewer = reply.Interviewer
		if reply.Eval != nil {
			eval = *reply.Eval
		} else {
			s.metrics.fallbacks.Add(ctx, 1)
		}
	}

	err = s.store.Update(id, func(sess *Session) error {
		q := &sess.QuestionsAsked[idx]
		stored := eval
		q.Eval = &stored
		q.InterviewerText = interviewer
		sess.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.answers.Add(ctx, 1)
	s.publish(ctx, events.AnswerScored, id, map[string]any{
		"question":      req.Question,
		"communication": eval.Communication,
		"technical":     eval.Technical,
		"structure":     eval.Structure,
		"confidence":    eval.Confidence,
	})

	return &Reply{Interviewer: interviewer, Eval: &eval}, nil
}

// Feedback renders the plain-text interview report. It never mutates the
// session.
func (s *Service) Feedback(ctx context.Context, id string) (string, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return "", err
	}
	return FormatReport(sess), nil
}

// End marks the session finished. Further questions and answers are
// rejected; feedback stays available. Ending twice is a no-op.
func (s *Service) End(ctx context.Context, id string) (*Session, error) {
	var (
		snap    *Session
		changed bool
	)
	err := s.store.Update(id, func(sess *Session) error {
		if !sess.Finished {
			sess.Finished = true
			sess.UpdatedAt = time.Now()
			changed = true
		}
		snap = sess.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.InfoContext(ctx, "session ended",
			"session_id", id,
			"questions", len(snap.QuestionsAsked),
			"answered", snap.AnsweredCount(),
		)
		s.publish(ctx, events.SessionEnded, id, map[string]any{
			"questions": len(snap.QuestionsAsked),
			"answered":  snap.AnsweredCount(),
		})
	}
	return snap, nil
}

func (s *Service) publish(ctx context.Context, t events.Type, id string, data map[string]any) {
	if s.opts.Publisher == nil {
		return
	}
	if err := s.opts.Publisher.Publish(ctx, events.New(t, id, data)); err != nil {
		s.logger.WarnContext(ctx, "publish event failed", "type", string(t), "session_id", id, "error", err)
	}
}

func checkAllowed(field, v string, allowed []string) error {
	if len(allowed) == 0 || slices.Contains(allowed, v) {
		return nil
	}
	return fmt.Errorf("%w: unknown %s %q", ErrInvalidConfig, field, v)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
