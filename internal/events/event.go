// Package events publishes interview lifecycle events for downstream
// consumers such as analytics or coaching dashboards.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Type identifies an interview event. It doubles as the AMQP routing key.
type Type string

const (
	SessionCreated Type = "session.created"
	QuestionAsked  Type = "question.asked"
	AnswerScored   Type = "answer.evaluated"
	SessionEnded   Type = "session.ended"
)

// Event is a single interview lifecycle event
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	SessionID  string         `json:"sessionId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

// New creates an event with a fresh id and timestamp
func New(t Type, sessionID string, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		SessionID:  sessionID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Log writes events to a logger at debug level. Used when no broker is
// configured so events stay visible in the daemon log.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Publish(ctx context.Context, e Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "interview event",
		"event_id", e.ID,
		"type", string(e.Type),
		"session_id", e.SessionID,
	)
	return nil
}

func (Log) Close() error { return nil }
