package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NoEvaluationNote is stored when the evaluator produced no rubric
const NoEvaluationNote = "No evaluation available."

// Session is one interview attempt
type Session struct {
	ID               string           `json:"id"`
	Role             string           `json:"role"`
	Level            string           `json:"level"`
	Persona          string           `json:"persona"`
	QuestionsAsked   []QuestionAnswer `json:"questionsAsked"`
	WaitingForAnswer bool             `json:"waitingForAnswer"`
	Finished         bool             `json:"finished"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`

	// generating is set while a question is being produced so concurrent
	// next-question requests see the session as busy.
	generating bool
}

// QuestionAnswer is one question and, once answered, its evaluation
type QuestionAnswer struct {
	ID              string     `json:"id"`
	Text            string     `json:"text"`
	Type            string     `json:"type"`
	CandidateAnswer *string    `json:"candidateAnswer"`
	Eval            *Rubric    `json:"eval"`
	InterviewerText string     `json:"interviewerText,omitempty"`
	AskedAt         time.Time  `json:"askedAt"`
	AnsweredAt      *time.Time `json:"answeredAt,omitempty"`
}

// Answered reports whether a candidate answer has been recorded
func (q *QuestionAnswer) Answered() bool {
	return q.CandidateAnswer != nil
}

// Rubric scores an answer on four dimensions, nominally 0 to 5
type Rubric struct {
	Communication float64 `json:"communication"`
	Technical     float64 `json:"technical"`
	Structure     float64 `json:"structure"`
	Confidence    float64 `json:"confidence"`
	Notes         string  `json:"notes"`
}

// DefaultRubric is the zero-score rubric used whenever no evaluation exists
func DefaultRubric() Rubric {
	return Rubric{Notes: NoEvaluationNote}
}

// Config selects the interview flavour
type Config struct {
	Role    string `json:"role"`
	Level   string `json:"level"`
	Persona string `json:"persona"`
}

// New creates an empty session with a fresh id
func New(cfg Config) *Session {
	now := time.Now()
	return &Session{
		ID:             uuid.NewString(),
		Role:           cfg.Role,
		Level:          cfg.Level,
		Persona:        cfg.Persona,
		QuestionsAsked: []QuestionAnswer{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Active returns the outstanding question, if any
func (s *Session) Active() (*QuestionAnswer, bool) {
	if n := len(s.QuestionsAsked); n > 0 && !s.QuestionsAsked[n-1].Answered() {
		return &s.QuestionsAsked[n-1], true
	}
	return nil, false
}

// Busy reports whether a question is outstanding or being generated
func (s *Session) Busy() bool {
	return s.WaitingForAnswer || s.generating
}

// AnsweredCount returns how many questions have an answer
func (s *Session) AnsweredCount() int {
	n := 0
	for i := range s.QuestionsAsked {
		if s.QuestionsAsked[i].Answered() {
			n++
		}
	}
	return n
}

// History returns the answered question/answer pairs in order
func (s *Session) History() []Turn {
	turns := make([]Turn, 0, len(s.QuestionsAsked))
	for _, q := range s.QuestionsAsked {
		if q.Answered() {
			turns = append(turns, Turn{Question: q.Text, Answer: *q.CandidateAnswer})
		}
	}
	return turns
}

// appendQuestion adds a new unanswered record and marks the session waiting
func (s *Session) appendQuestion(text string) QuestionAnswer {
	now := time.Now()
	q := QuestionAnswer{
		ID:      fmt.Sprintf("q%d-%s", len(s.QuestionsAsked)+1, uuid.NewString()[:8]),
		Text:    text,
		Type:    "dynamic",
		AskedAt: now,
	}
	s.QuestionsAsked = append(s.QuestionsAsked, q)
	s.WaitingForAnswer = true
	s.UpdatedAt = now
	return q
}

// Clone returns a deep copy that is safe to read without the session lock
func (s *Session) Clone() *Session {
	c := *s
	c.QuestionsAsked = make([]QuestionAnswer, len(s.QuestionsAsked))
	for i, q := range s.QuestionsAsked {
		if q.CandidateAnswer != nil {
			a := *q.CandidateAnswer
			q.CandidateAnswer = &a
		}
		if q.Eval != nil {
			e := *q.Eval
			q.Eval = &e
		}
		if q.AnsweredAt != nil {
			t := *q.AnsweredAt
			q.AnsweredAt = &t
		}
		c.QuestionsAsked[i] = q
	}
	return &c
}
