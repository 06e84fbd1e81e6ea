package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/felixgeelhaar/rehearse/internal/session"
)

// Notices shown in the transcript
const (
	NoticeBackendDown     = "⚠️ Backend not responding."
	NoticeNoMoreQuestions = "No more questions available."
	NoticeGenerating      = "Thanks, generating your feedback now. Please wait..."
	NoticeFeedbackFailed  = "Failed to generate feedback."
)

var (
	ErrNoSession     = errors.New("start a session first")
	ErrAnswerPending = errors.New("an answer is already being submitted")
	ErrNotInProgress = errors.New("interview is not in progress")
)

// State is the orchestrator's position in the interview
type State string

const (
	StateIdle       State = "idle"
	StateCreating   State = "creating"
	StateInProgress State = "in-progress"
	StateFinalizing State = "finalizing"
	StateFinished   State = "finished"
)

// Speaker identifies who produced a transcript message
type Speaker string

const (
	SpeakerSystem      Speaker = "system"
	SpeakerInterviewer Speaker = "interviewer"
	SpeakerCandidate   Speaker = "candidate"
)

// Message is one transcript entry
type Message struct {
	Speaker Speaker
	Text    string
}

// API is the subset of the daemon client the orchestrator needs
type API interface {
	CreateSession(ctx context.Context, cfg session.Config) (*session.Session, error)
	NextQuestion(ctx context.Context, id string) (*session.NextResult, error)
	SubmitAnswer(ctx context.Context, id, text string) (*session.Reply, error)
	EndSession(ctx context.Context, id string) (*session.Session, error)
	Feedback(ctx context.Context, id string) (string, error)
}

// Ensure Client implements API
var _ API = (*Client)(nil)

// Interview drives one interview through the daemon and keeps the display
// transcript. Transport failures become a notice in the transcript and leave
// the interview usable.
type Interview struct {
	api       API
	cfg       session.Config
	onMessage func(Message)
	logger    *slog.Logger

	mu         sync.Mutex
	state      State
	session    *session.Session
	current    *session.QuestionAnswer
	transcript []Message
	answering  bool
}

// InterviewOption configures an Interview
type InterviewOption func(*Interview)

// WithMessageHandler calls fn for every message appended to the transcript
func WithMessageHandler(fn func(Message)) InterviewOption {
	return func(iv *Interview) {
		iv.onMessage = fn
	}
}

// WithLogger sets the logger for transport errors
func WithLogger(logger *slog.Logger) InterviewOption {
	return func(iv *Interview) {
		iv.logger = logger
	}
}

// NewInterview creates an idle interview for cfg
func NewInterview(api API, cfg session.Config, opts ...InterviewOption) *Interview {
	iv := &Interview{
		api:    api,
		cfg:    cfg,
		state:  StateIdle,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(iv)
	}
	return iv
}

// State returns the current state
func (iv *Interview) State() State {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.state
}

// SessionID returns the daemon session id, or "" before Start succeeds
func (iv *Interview) SessionID() string {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.session == nil {
		return ""
	}
	return iv.session.ID
}

// CurrentQuestion returns the question awaiting an answer, if any
func (iv *Interview) CurrentQuestion() (session.QuestionAnswer, bool) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.current == nil {
		return session.QuestionAnswer{}, false
	}
	return *iv.current, true
}

// CanAnswer reports whether input should be enabled
func (iv *Interview) CanAnswer() bool {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.state == StateInProgress && !iv.answering
}

// Transcript returns a copy of the messages so far
func (iv *Interview) Transcript() []Message {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	out := make([]Message, len(iv.transcript))
	copy(out, iv.transcript)
	return out
}

// Start creates a session and fetches the first question. It does nothing
// while a session is being created or is in progress.
func (iv *Interview) Start(ctx context.Context) {
	iv.mu.Lock()
	if iv.state == StateCreating || iv.state == StateInProgress {
		iv.mu.Unlock()
		return
	}
	iv.state = StateCreating
	iv.session = nil
	iv.current = nil
	iv.transcript = nil
	iv.mu.Unlock()

	sess, err := iv.api.CreateSession(ctx, iv.cfg)
	if err != nil {
		iv.backendDown("create session", err)
		iv.setState(StateIdle)
		return
	}

	iv.mu.Lock()
	iv.session = sess
	iv.mu.Unlock()

	iv.push(SpeakerSystem, fmt.Sprintf("Session created for %s. Hello, we'll start now.", sess.Role))
	iv.setState(StateInProgress)

	iv.fetchNext(ctx, sess.ID)
}

// Answer submits text for the current question and then always asks for the
// next one. The interviewer's commentary is not added to the transcript.
func (iv *Interview) Answer(ctx context.Context, text string) error {
	iv.mu.Lock()
	switch {
	case iv.session == nil:
		iv.mu.Unlock()
		return ErrNoSession
	case iv.answering:
		iv.mu.Unlock()
		return ErrAnswerPending
	case iv.state != StateInProgress:
		iv.mu.Unlock()
		return ErrNotInProgress
	}
	id := iv.session.ID
	iv.answering = true
	iv.mu.Unlock()

	defer func() {
		iv.mu.Lock()
		iv.answering = false
		iv.mu.Unlock()
	}()

	iv.push(SpeakerCandidate, text)

	if _, err := iv.api.SubmitAnswer(ctx, id, text); err != nil {
		iv.backendDown("submit answer", err)
	}

	iv.fetchNext(ctx, id)
	return nil
}

// Finish ends the session and appends the feedback report
func (iv *Interview) Finish(ctx context.Context) error {
	iv.mu.Lock()
	if iv.session == nil {
		iv.mu.Unlock()
		return ErrNoSession
	}
	if iv.state == StateFinalizing {
		iv.mu.Unlock()
		return nil
	}
	id := iv.session.ID
	iv.state = StateFinalizing
	iv.mu.Unlock()

	iv.push(SpeakerSystem, NoticeGenerating)

	if _, err := iv.api.EndSession(ctx, id); err != nil {
		iv.logger.Warn("end session failed", "session_id", id, "error", err)
	}

	report, err := iv.api.Feedback(ctx, id)
	if err != nil {
		iv.backendDown("feedback", err)
		iv.push(SpeakerSystem, NoticeFeedbackFailed)
		iv.setState(StateFinished)
		return nil
	}

	iv.mu.Lock()
	iv.current = nil
	iv.mu.Unlock()

	iv.push(SpeakerSystem, report)
	iv.setState(StateFinished)
	return nil
}

// fetchNext asks for the next question. A question identical to the last one
// shown is not repeated in the transcript.
func (iv *Interview) fetchNext(ctx context.Context, id string) {
	next, err := iv.api.NextQuestion(ctx, id)
	if err != nil {
		iv.backendDown("next question", err)
		return
	}

	switch {
	case next.Done:
		iv.mu.Lock()
		iv.current = nil
		iv.mu.Unlock()
		iv.push(SpeakerSystem, NoticeNoMoreQuestions)
		return
	case next.Question == nil:
		// Wait signal: the current question is still outstanding.
		return
	}

	q := *next.Question
	iv.mu.Lock()
	iv.current = &q
	repeated := false
	for i := len(iv.transcript) - 1; i >= 0; i-- {
		if iv.transcript[i].Speaker == SpeakerInterviewer {
			repeated = strings.TrimSpace(iv.transcript[i].Text) == strings.TrimSpace(q.Text)
			break
		}
	}
	iv.mu.Unlock()

	if !repeated {
		iv.push(SpeakerInterviewer, q.Text)
	}
}

// backendDown records a failed request. Transport failures get the generic
// notice; a daemon error response is shown with its message.
func (iv *Interview) backendDown(op string, err error) {
	iv.logger.Warn("daemon request failed", "op", op, "error", err)

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		iv.push(SpeakerSystem, "⚠️ "+apiErr.Error())
		return
	}
	iv.push(SpeakerSystem, NoticeBackendDown)
}

func (iv *Interview) push(speaker Speaker, text string) {
	msg := Message{Speaker: speaker, Text: text}
	iv.mu.Lock()
	iv.transcript = append(iv.transcript, msg)
	iv.mu.Unlock()

	if iv.onMessage != nil {
		iv.onMessage(msg)
	}
}

func (iv *Interview) setState(s State) {
	iv.mu.Lock()
	iv.state = s
	iv.mu.Unlock()
}
