package mcp

import (
	"context"
	"fmt"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/rehearse/internal/session"
)

// Server wraps the MCP server with interview tools
type Server struct {
	mcpServer *server.Server
	sessions  session.SessionService
}

// Config contains configuration for the MCP server
type Config struct {
	Sessions session.SessionService
	Version  string
}

// NewServer creates a new MCP server for mock interviews
func NewServer(cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{sessions: cfg.Sessions}

	s.mcpServer = server.New(server.Info{
		Name:    "rehearse",
		Version: cfg.Version,
	}, server.WithInstructions(`
Rehearse runs mock job interviews. The interviewer asks one question at a
time and scores each answer on communication, technical depth, structure and
confidence (0-5).

Flow:
1. interview_start creates a session and returns the first question
2. interview_answer submits the candidate's answer and returns the
   interviewer's reaction and scores
3. interview_next fetches the following question
4. interview_feedback returns the plain-text summary at any time
5. interview_end finishes the interview and returns the summary

interview_next answers "wait" while a question is still unanswered.
`))

	s.registerTools()
	return s
}

// registerTools registers all interview MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("interview_start").
		Description("Start a mock interview and get the first question").
		Handler(s.handleStart)

	s.mcpServer.Tool("interview_next").
		Description("Get the next interview question. Returns wait=true while a question is unanswered.").
		Handler(s.handleNext)

	s.mcpServer.Tool("interview_answer").
		Description("Answer the current question and receive the interviewer's reaction and scores.").
		Handler(s.handleAnswer)

	s.mcpServer.Tool("interview_feedback").
		Description("Get the plain-text interview summary with per-question and average scores.").
		Handler(s.handleFeedback)

	s.mcpServer.Tool("interview_end").
		Description("Finish the interview and return the summary.").
		Handler(s.handleEnd)

	s.mcpServer.Tool("interview_status").
		Description("Get the current state of an interview session.").
		Handler(s.handleStatus)
}

// Input/Output types for tools

type StartInput struct {
	Role    string `json:"role,omitempty" jsonschema:"description=Target role,enum=software_engineer,enum=sales,enum=retail"`
	Level   string `json:"level,omitempty" jsonschema:"description=Seniority,enum=junior,enum=mid,enum=senior"`
	Persona string `json:"persona,omitempty" jsonschema:"description=Interviewer style,enum=efficient,enum=confused,enum=chatty,enum=friendly,enum=challenging"`
}

type StartOutput struct {
	SessionID  string `json:"session_id"`
	Role       string `json:"role"`
	Level      string `json:"level"`
	Persona    string `json:"persona"`
	QuestionID string `json:"question_id,omitempty"`
	Question   string `json:"question,omitempty"`
	Message    string `json:"message"`
}

type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"description=Session ID from interview_start"`
}

type NextOutput struct {
	Wait       bool   `json:"wait"`
	Done       bool   `json:"done"`
	QuestionID string `json:"question_id,omitempty"`
	Question   string `json:"question,omitempty"`
}

type AnswerInput struct {
	SessionID string `json:"session_id" jsonschema:"description=Session ID from interview_start"`
	Text      string `json:"text" jsonschema:"description=The candidate's answer to the current question"`
}

type AnswerOutput struct {
	Interviewer   string  `json:"interviewer"`
	Communication float64 `json:"communication"`
	Technical     float64 `json:"technical"`
	Structure     float64 `json:"structure"`
	Confidence    float64 `json:"confidence"`
	Notes         string  `json:"notes"`
}

type FeedbackOutput struct {
	Report string `json:"report"`
}

type StatusOutput struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Level     string `json:"level"`
	Persona   string `json:"persona"`
	Questions int    `json:"questions"`
	Answered  int    `json:"answered"`
	Waiting   bool   `json:"waiting_for_answer"`
	Finished  bool   `json:"finished"`
}

// Tool handlers

func (s *Server) handleStart(ctx context.Context, input StartInput) (StartOutput, error) {
	sess, err := s.sessions.Create(ctx, session.Config{
		Role:    input.Role,
		Level:   input.Level,
		Persona: input.Persona,
	})
	if err != nil {
		return StartOutput{}, fmt.Errorf("failed to create session: %w", err)
	}

	out := StartOutput{
		SessionID: sess.ID,
		Role:      sess.Role,
		Level:     sess.Level,
		Persona:   sess.Persona,
	}

	next, err := s.sessions.NextQuestion(ctx, sess.ID)
	if err != nil {
		out.Message = fmt.Sprintf("Session started, but the first question failed: %v. Call interview_next to retry.", err)
		return out, nil
	}
	if next.Question != nil {
		out.QuestionID = next.Question.ID
		out.Question = next.Question.Text
	}
	out.Message = fmt.Sprintf("Interview started for %s (%s). Answer with interview_answer.", sess.Role, sess.Level)
	return out, nil
}

func (s *Server) handleNext(ctx context.Context, input SessionInput) (NextOutput, error) {
	next, err := s.sessions.NextQuestion(ctx, input.SessionID)
	if err != nil {
		return NextOutput{}, fmt.Errorf("failed to get next question: %w", err)
	}

	out := NextOutput{Wait: next.Wait, Done: next.Done}
	if next.Question != nil {
		out.QuestionID = next.Question.ID
		out.Question = next.Question.Text
	}
	return out, nil
}

func (s *Server) handleAnswer(ctx context.Context, input AnswerInput) (AnswerOutput, error) {
	reply, err := s.sessions.SubmitAnswer(ctx, input.SessionID, input.Text)
	if err != nil {
		return AnswerOutput{}, fmt.Errorf("failed to submit answer: %w", err)
	}

	eval := session.DefaultRubric()
	if reply.Eval != nil {
		eval = *reply.Eval
	}
	return AnswerOutput{
		Interviewer:   reply.Interviewer,
		Communication: eval.Communication,
		Technical:     eval.Technical,
		Structure:     eval.Structure,
		Confidence:    eval.Confidence,
		Notes:         eval.Notes,
	}, nil
}

func (s *Server) handleFeedback(ctx context.Context, input SessionInput) (FeedbackOutput, error) {
	report, err := s.sessions.Feedback(ctx, input.SessionID)
	if err != nil {
		return FeedbackOutput{}, fmt.Errorf("failed to build feedback: %w", err)
	}
	return FeedbackOutput{Report: report}, nil
}

func (s *Server) handleEnd(ctx context.Context, input SessionInput) (FeedbackOutput, error) {
	if _, err := s.sessions.End(ctx, input.SessionID); err != nil {
		return FeedbackOutput{}, fmt.Errorf("failed to end session: %w", err)
	}
	return s.handleFeedback(ctx, input)
}

func (s *Server) handleStatus(ctx context.Context, input SessionInput) (StatusOutput, error) {
	sess, err := s.sessions.Get(ctx, input.SessionID)
	if err != nil {
		return StatusOutput{}, fmt.Errorf("failed to get session: %w", err)
	}

	return StatusOutput{
		SessionID: sess.ID,
		Role:      sess.Role,
		Level:     sess.Level,
		Persona:   sess.Persona,
		Questions: len(sess.QuestionsAsked),
		Answered:  sess.AnsweredCount(),
		Waiting:   sess.WaitingForAnswer,
		Finished:  sess.Finished,
	}, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}
