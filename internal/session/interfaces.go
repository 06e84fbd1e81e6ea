package session

import (
	"context"

	"github.com/felixgeelhaar/rehearse/internal/events"
)

// Turn is one answered question passed to the evaluator as context
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QuestionRequest asks the evaluator for the next interview question
type QuestionRequest struct {
	Role    string
	Level   string
	Persona string
	History []Turn
}

// ReplyRequest asks the evaluator to react to and score an answer. History
// holds the turns before the current question.
type ReplyRequest struct {
	Role            string
	Level           string
	Persona         string
	Question        string
	CandidateAnswer string
	History         []Turn
}

// Reply is the evaluator's reaction to an answer. Eval may be nil.
type Reply struct {
	Interviewer string  `json:"interviewer"`
	Eval        *Rubric `json:"eval"`
}

// Evaluator generates questions and scores answers
type Evaluator interface {
	NextQuestion(ctx context.Context, req QuestionRequest) (string, error)
	Reply(ctx context.Context, req ReplyRequest) (*Reply, error)
}

// SessionService is the lifecycle surface used by the daemon and MCP server
type SessionService interface {
	Create(ctx context.Context, cfg Config) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) []Summary
	NextQuestion(ctx context.Context, id string) (*NextResult, error)
	SubmitAnswer(ctx context.Context, id, text string) (*Reply, error)
	Feedback(ctx context.Context, id string) (string, error)
	End(ctx context.Context, id string) (*Session, error)
}

// Ensure Service implements SessionService
var _ SessionService = (*Service)(nil)

// SessionStore holds sessions for the process lifetime
type SessionStore interface {
	Add(s *Session) error
	Get(id string) (*Session, error)
	Update(id string, fn func(*Session) error) error
	List() []*Session
	Len() int
}

// Ensure Store implements SessionStore
var _ SessionStore = (*Store)(nil)

// EventPublisher receives lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}
