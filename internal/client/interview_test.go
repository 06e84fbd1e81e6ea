package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/felixgeelhaar/rehearse/internal/session"
)

// mockAPI implements API for testing
type mockAPI struct {
	mu sync.Mutex

	createErr   error
	nextErr     error
	answerErr   error
	feedbackErr error

	// questions are served in order; an empty list yields done
	questions []string
	served    int
	waitNext  bool

	answers []string
	ended   bool
	block   chan struct{}
}

func (m *mockAPI) CreateSession(ctx context.Context, cfg session.Config) (*session.Session, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	role := cfg.Role
	if role == "" {
		role = "software_engineer"
	}
	return &session.Session{ID: "s1", Role: role, Level: "mid", Persona: "efficient"}, nil
}

func (m *mockAPI) NextQuestion(ctx context.Context, id string) (*session.NextResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextErr != nil {
		return nil, m.nextErr
	}
	if m.waitNext {
		return &session.NextResult{Wait: true}, nil
	}
	if m.served >= len(m.questions) {
		return &session.NextResult{Done: true}, nil
	}
	q := &session.QuestionAnswer{ID: "q", Text: m.questions[m.served]}
	m.served++
	return &session.NextResult{Question: q}, nil
}

func (m *mockAPI) SubmitAnswer(ctx context.Context, id, text string) (*session.Reply, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, text)
	if m.answerErr != nil {
		return nil, m.answerErr
	}
	return &session.Reply{Interviewer: "Great answer, tell me more!"}, nil
}

func (m *mockAPI) EndSession(ctx context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = true
	return &session.Session{ID: id, Finished: true}, nil
}

func (m *mockAPI) Feedback(ctx context.Context, id string) (string, error) {
	if m.feedbackErr != nil {
		return "", m.feedbackErr
	}
	return "INTERVIEW SUMMARY", nil
}

func speakers(msgs []Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = string(m.Speaker)
	}
	return strings.Join(parts, ",")
}

func TestInterview_Start(t *testing.T) {
	api := &mockAPI{questions: []string{"Why this role?"}}
	var seen []Message
	iv := NewInterview(api, session.Config{}, WithMessageHandler(func(m Message) { seen = append(seen, m) }))

	if iv.State() != StateIdle {
		t.Fatalf("initial state = %s", iv.State())
	}

	iv.Start(context.Background())

	if iv.State() != StateInProgress {
		t.Errorf("state = %s, want in-progress", iv.State())
	}
	if iv.SessionID() != "s1" {
		t.Errorf("SessionID() = %q", iv.SessionID())
	}
	tr := iv.Transcript()
	if speakers(tr) != "system,interviewer" {
		t.Fatalf("transcript = %+v", tr)
	}
	if !strings.Contains(tr[0].Text, "software_engineer") || tr[1].Text != "Why this role?" {
		t.Errorf("transcript = %+v", tr)
	}
	if len(seen) != 2 {
		t.Errorf("handler saw %d messages", len(seen))
	}
	if q, ok := iv.CurrentQuestion(); !ok || q.Text != "Why this role?" {
		t.Errorf("CurrentQuestion() = %+v, %v", q, ok)
	}
}

func TestInterview_StartIgnoredWhileInProgress(t *testing.T) {
	api := &mockAPI{questions: []string{"Q1", "Q2"}}
	iv := NewInterview(api, session.Config{})
	ctx := context.Background()

	iv.Start(ctx)
	iv.Start(ctx)

	if api.served != 1 {
		t.Errorf("questions served = %d, want 1", api.served)
	}
	if len(iv.Transcript()) != 2 {
		t.Errorf("transcript = %+v", iv.Transcript())
	}
}

func TestInterview_StartBackendDown(t *testing.T) {
	api := &mockAPI{createErr: errors.New("connection refused")}
	iv := NewInterview(api, session.Config{})

	iv.Start(context.Background())

	if iv.State() != StateIdle {
		t.Errorf("state = %s, want idle", iv.State())
	}
	tr := iv.Transcript()
	if len(tr) != 1 || tr[0].Text != NoticeBackendDown {
		t.Errorf("transcript = %+v", tr)
	}

	// Still usable once the backend is back.
	api.createErr = nil
	api.questions = []string{"Q1"}
	iv.Start(context.Background())
	if iv.State() != StateInProgress {
		t.Errorf("state after retry = %s", iv.State())
	}
}

func TestInterview_AnswerSuppressesCommentary(t *testing.T) {
	api := &mockAPI{questions: []string{"Q1", "Q2"}}
	iv := NewInterview(api, session.Config{})
	ctx := context.Background()
	iv.Start(ctx)

	if err := iv.Answer(ctx, "My answer"); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	tr := iv.Transcript()
	if speakers(tr) != "system,interviewer,candidate,interviewer" {
		t.Fatalf("transcript = %+v", tr)
	}
	if tr[2].Text != "My answer" || tr[3].Text != "Q2" {
		t.Errorf("transcript = %+v", tr)
	}
	for _, m := range tr {
		if strings.Contains(m.Text, "tell me more") {
			t.Error("interviewer commentary should not be shown")
		}
	}
}

func TestInterview_AnswerErrors(t *testing.T) {
	ctx := context.Background()

	iv := NewInterview(&mockAPI{}, session.Config{})
	if err := iv.Answer(ctx, "x"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Answer() before start error = %v", err)
	}

	api := &mockAPI{questions: []string{"Q1"}}
	iv = NewInterview(api, session.Config{})
	iv.Start(ctx)
	if err := iv.Finish(ctx); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := iv.Answer(ctx, "late"); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("Answer() after finish error = %v", err)
	}
}

func TestInterview_AnswerWhileInFlight(t *testing.T) {
	api := &mockAPI{questions: []string{"Q1", "Q2"}, block: make(chan struct{})}
	iv := NewInterview(api, session.Config{})
	ctx := context.Background()
	iv.Start(ctx)

	done := make(chan error, 1)
	go func() { done <- iv.Answer(ctx, "first") }()

	// Wait until the optimistic candidate message is visible.
	for {
		if tr := iv.Transcript(); len(tr) == 3 {
			break
		}
	}

	if iv.CanAnswer() {
		t.Error("input should be disabled while an answer is in flight")
	}
	if err := iv.Answer(ctx, "second"); !errors.Is(err, ErrAnswerPending) {
		t.Errorf("concurrent Answer() error = %v", err)
	}

	close(api.block)
	if err := <-done; err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !iv.CanAnswer() {
		t.Error("input should be enabled again")
	}
	if len(api.answers) != 1 {
		t.Errorf("answers = %v", api.answers)
	}
}

func TestInterview_DeduplicatesRepeatedQuestion(t *testing.T) {
	api := &mockAPI{questions: []string{"Tell me about yourself.", " Tell me about yourself. "}}
	iv := NewInterview(api, session.Config{})
	ctx := context.Background()
	iv.Start(ctx)

	if err := iv.Answer(ctx, "I build things."); err != nil {
		t.Fatal(err)
	}

	if got := speakers(iv.Transcript()); got != "system,interviewer,candidate" {
		t.Errorf("transcript speakers = %s", got)
	}
	if q, ok := iv.CurrentQuestion(); !ok || strings.TrimSpace(q.Text) != "Tell me about yourself." {
		t.Errorf("CurrentQuestion() = %+v, %v", q, ok)
	}
}

func TestInterview_NoMoreQuestions(t *testing.T) {
	api := &mockAPI{questions: []string{"Only question"}}
	iv := NewInterview(api, session.Config{})
	ctx := context.Background()
	iv.Start(ctx)

	if err := iv.Answer(ctx, "done"); err != nil {
		t.Fatal(err)
	}

	tr := iv.Transcript()
	if last := tr[len(tr)-1]; last.Speaker != SpeakerSystem || last.Text != NoticeNoMoreQuestions {
		t.Errorf("last message = %+v", last)
	}
	if _, ok := iv.CurrentQuestion(); ok {
		t.Error("no question should be current")
	}
}

func TestInterview_AnswerBackendDownStillFetchesNext(t *testing.T) {
	api := &mockAPI{questions: []string{"Q1", "Q2"}, answerErr: errors.New("timeout")}
	iv := NewInterview(api, session.Config{})
	ctx := context.Background()
	iv.Start(ctx)

	if err := iv.Answer(ctx, "hello"); err != nil {
		t.Fatal(err)
	}

	tr := iv.Transcript()
	if speakers(tr) != "system,interviewer,candidate,system,interviewer" {
		t.Fatalf("transcript = %+v", tr)
	}
	if tr[3].Text != NoticeBackendDown {
		t.Errorf("notice = %q", tr[3].Text)
	}
	if iv.State() != StateInProgress {
		t.Errorf("state = %s", iv.State())
	}
}

func TestInterview_APIErrorShownWithMessage(t *testing.T) {
	api := &mockAPI{questions: []string{"Q1"}, waitNext: true}
	iv := NewInterview(api, session.Config{})
	ctx := context.Background()
	iv.Start(ctx)

	api.answerErr = &APIError{StatusCode: 400, Message: "no active question"}
	if err := iv.Answer(ctx, "hi"); err != nil {
		t.Fatal(err)
	}

	tr := iv.Transcript()
	if last := tr[len(tr)-1]; !strings.Contains(last.Text, "no active question") {
		t.Errorf("last message = %+v", last)
	}
}

func TestInterview_Finish(t *testing.T) {
	api := &mockAPI{questions: []string{"Q1"}}
	iv := NewInterview(api, session.Config{})
	ctx := context.Background()

	if err := iv.Finish(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("Finish() before start error = %v", err)
	}

	iv.Start(ctx)
	if err := iv.Finish(ctx); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	if iv.State() != StateFinished {
		t.Errorf("state = %s", iv.State())
	}
	if !api.ended {
		t.Error("session should be ended on the daemon")
	}
	tr := iv.Transcript()
	if tr[len(tr)-2].Text != NoticeGenerating || tr[len(tr)-1].Text != "INTERVIEW SUMMARY" {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestInterview_FinishFeedbackFails(t *testing.T) {
	api := &mockAPI{questions: []string{"Q1"}, feedbackErr: errors.New("EOF")}
	iv := NewInterview(api, session.Config{})
	ctx := context.Background()
	iv.Start(ctx)

	if err := iv.Finish(ctx); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	tr := iv.Transcript()
	if tr[len(tr)-2].Text != NoticeBackendDown || tr[len(tr)-1].Text != NoticeFeedbackFailed {
		t.Errorf("transcript = %+v", tr)
	}
	if iv.State() != StateFinished {
		t.Errorf("state = %s", iv.State())
	}
}

func TestInterview_AgainstDaemon(t *testing.T) {
	ts := setupDaemon(t)
	iv := NewInterview(New(ts.URL), session.Config{Role: "retail", Persona: "friendly"})
	ctx := context.Background()

	iv.Start(ctx)
	if iv.State() != StateInProgress {
		t.Fatalf("state = %s, transcript = %+v", iv.State(), iv.Transcript())
	}
	for _, answer := range []string{"I greet every customer.", "I restock shelves early."} {
		if err := iv.Answer(ctx, answer); err != nil {
			t.Fatalf("Answer() error = %v", err)
		}
	}
	if err := iv.Finish(ctx); err != nil {
		t.Fatal(err)
	}

	tr := iv.Transcript()
	report := tr[len(tr)-1].Text
	if !strings.HasPrefix(report, "INTERVIEW SUMMARY") || !strings.Contains(report, "I restock shelves early.") {
		t.Errorf("report = %s", report)
	}
	// The third question is outstanding and unanswered.
	if !strings.Contains(report, "Your Answer: No answer provided.") {
		t.Errorf("report should list the unanswered question: %s", report)
	}
}
