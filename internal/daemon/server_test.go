package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/felixgeelhaar/rehearse/internal/config"
	"github.com/felixgeelhaar/rehearse/internal/events"
	"github.com/felixgeelhaar/rehearse/internal/session"
)

// mockEvaluator implements session.Evaluator for testing
type mockEvaluator struct {
	questionErr error
	reply       *session.Reply
	replyErr    error
}

func (m *mockEvaluator) NextQuestion(ctx context.Context, req session.QuestionRequest) (string, error) {
	if m.questionErr != nil {
		return "", m.questionErr
	}
	return "How would you find duplicates in a list?", nil
}

func (m *mockEvaluator) Reply(ctx context.Context, req session.ReplyRequest) (*session.Reply, error) {
	if m.replyErr != nil {
		return nil, m.replyErr
	}
	if m.reply != nil {
		return m.reply, nil
	}
	return &session.Reply{
		Interviewer: "Good, what about memory?",
		Eval:        &session.Rubric{Communication: 4, Technical: 4, Structure: 3, Confidence: 4, Notes: "Clear."},
	}, nil
}

// recordingPublisher captures published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	closed bool
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// setupTestServer creates a test server with minimal configuration
func setupTestServer(t *testing.T, eval session.Evaluator) *Server {
	t.Helper()

	cfg := config.DefaultLocalConfig()
	cfg.Daemon.Port = 0
	cfg.Daemon.MaxBodyBytes = 1024

	server, err := NewServer(context.Background(), ServerConfig{
		Config:    cfg,
		Evaluator: eval,
		Publisher: &recordingPublisher{},
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	return server
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func createSession(t *testing.T, h http.Handler, body string) string {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, "/session", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("create session status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Session session.Session `json:"session"`
	}
	decodeJSON(t, rec, &resp)
	return resp.Session.ID
}

func TestHealthEndpoint(t *testing.T) {
	server := setupTestServer(t, &mockEvaluator{})

	rec := doRequest(t, server.Handler(), http.MethodGet, "/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp map[string]interface{}
	decodeJSON(t, rec, &resp)
	if resp["status"] != "healthy" {
		t.Errorf("expected status 'healthy', got %v", resp["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	server := setupTestServer(t, nil)
	createSession(t, server.Handler(), "")

	rec := doRequest(t, server.Handler(), http.MethodGet, "/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp map[string]interface{}
	decodeJSON(t, rec, &resp)

	if resp["status"] != "running" || resp["version"] != "test" {
		t.Errorf("status response = %v", resp)
	}
	// No provider has a key in the default config.
	if resp["evaluator"] != EvaluatorScripted {
		t.Errorf("evaluator = %v, want %s", resp["evaluator"], EvaluatorScripted)
	}
	if resp["sessions"] != float64(1) {
		t.Errorf("sessions = %v, want 1", resp["sessions"])
	}
}

func TestCreateSession(t *testing.T) {
	server := setupTestServer(t, &mockEvaluator{})

	tests := []struct {
		name        string
		body        string
		wantRole    string
		wantPersona string
	}{
		{"empty body", "", "software_engineer", "efficient"},
		{"empty object", "{}", "software_engineer", "efficient"},
		{"custom", `{"role":"sales","level":"senior","persona":"friendly"}`, "sales", "friendly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, server.Handler(), http.MethodPost, "/session", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}

			var resp struct {
				Session session.Session `json:"session"`
			}
			decodeJSON(t, rec, &resp)

			s := resp.Session
			if s.ID == "" || s.Role != tt.wantRole || s.Persona != tt.wantPersona {
				t.Errorf("session = %+v", s)
			}
			if s.WaitingForAnswer || s.Finished || len(s.QuestionsAsked) != 0 {
				t.Errorf("new session state = %+v", s)
			}
		})
	}
}

func TestCreateSession_UnknownValues(t *testing.T) {
	server := setupTestServer(t, &mockEvaluator{})

	for _, body := range []string{
		`{"role":"astronaut"}`,
		`{"level":"principal"}`,
		`{"persona":"grumpy"}`,
	} {
		rec := doRequest(t, server.Handler(), http.MethodPost, "/session", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rec.Code)
		}
	}

	rec := doRequest(t, server.Handler(), http.MethodPost, "/session", `{"persona":"chatty"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("chatty persona: status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateSession_InvalidBody(t *testing.T) {
	server := setupTestServer(t, &mockEvaluator{})

	rec := doRequest(t, server.Handler(), http.MethodPost, "/session", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	big := `{"role":"` + strings.Repeat("x", 2048) + `"}`
	rec = doRequest(t, server.Handler(), http.MethodPost, "/session", big)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestInterviewRoundTrip(t *testing.T) {
	for _, prefix := range []string{"", "/api"} {
		t.Run("prefix="+prefix, func(t *testing.T) {
			server := setupTestServer(t, &mockEvaluator{})
			h := server.Handler()

			rec := doRequest(t, h, http.MethodPost, prefix+"/session", `{"role":"software_engineer","level":"mid"}`)
			var created struct {
				Session session.Session `json:"session"`
			}
			decodeJSON(t, rec, &created)
			id := created.Session.ID

			// Next question
			rec = doRequest(t, h, http.MethodGet, prefix+"/session/"+id+"/next", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("next status = %d: %s", rec.Code, rec.Body.String())
			}
			var next session.NextResult
			decodeJSON(t, rec, &next)
			if next.Question == nil || next.Question.Type != "dynamic" || next.Question.Text == "" {
				t.Fatalf("next = %+v", next)
			}

			// Asking again while waiting returns the wait signal
			rec = doRequest(t, h, http.MethodGet, prefix+"/session/"+id+"/next", "")
			var wait map[string]interface{}
			decodeJSON(t, rec, &wait)
			if wait["wait"] != true || wait["done"] != false {
				t.Errorf("second next = %v, want wait", wait)
			}
			if _, ok := wait["question"]; ok {
				t.Error("wait response should not carry a question")
			}

			// Answer
			rec = doRequest(t, h, http.MethodPost, prefix+"/session/"+id+"/answer", `{"text":"I would use a hash map"}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("answer status = %d: %s", rec.Code, rec.Body.String())
			}
			var reply session.Reply
			decodeJSON(t, rec, &reply)
			if reply.Interviewer == "" || reply.Eval == nil || reply.Eval.Notes == "" {
				t.Errorf("reply = %+v", reply)
			}

			// Snapshot
			rec = doRequest(t, h, http.MethodGet, prefix+"/session/"+id, "")
			var snap struct {
				Session session.Session `json:"session"`
			}
			decodeJSON(t, rec, &snap)
			q := snap.Session.QuestionsAsked[0]
			if snap.Session.WaitingForAnswer || q.CandidateAnswer == nil || *q.CandidateAnswer != "I would use a hash map" || q.Eval == nil {
				t.Errorf("snapshot = %+v", snap.Session)
			}

			// Feedback
			rec = doRequest(t, h, http.MethodGet, prefix+"/session/"+id+"/feedback", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("feedback status = %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
				t.Errorf("feedback Content-Type = %q", ct)
			}
			body := rec.Body.String()
			for _, want := range []string{"INTERVIEW SUMMARY", "Your Answer: I would use a hash map", "Communication: 4 / 5", "FINAL AGGREGATE SCORE"} {
				if !strings.Contains(body, want) {
					t.Errorf("feedback missing %q:\n%s", want, body)
				}
			}

			// End
			rec = doRequest(t, h, http.MethodPost, prefix+"/session/"+id+"/end", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("end status = %d", rec.Code)
			}
			rec = doRequest(t, h, http.MethodGet, prefix+"/session/"+id+"/next", "")
			if rec.Code != http.StatusConflict {
				t.Errorf("next after end status = %d, want 409", rec.Code)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		eval       *mockEvaluator
		setup      func(t *testing.T, h http.Handler) string
		method     string
		path       string
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "next unknown session",
			eval:       &mockEvaluator{},
			setup:      func(t *testing.T, h http.Handler) string { return "missing" },
			method:     http.MethodGet,
			path:       "/session/%s/next",
			wantStatus: http.StatusNotFound,
			wantError:  "session not found",
		},
		{
			name:       "answer unknown session",
			eval:       &mockEvaluator{},
			setup:      func(t *testing.T, h http.Handler) string { return "missing" },
			method:     http.MethodPost,
			path:       "/session/%s/answer",
			body:       `{"text":"x"}`,
			wantStatus: http.StatusNotFound,
			wantError:  "session not found",
		},
		{
			name:       "answer without question",
			eval:       &mockEvaluator{},
			setup:      func(t *testing.T, h http.Handler) string { return createSession(t, h, "") },
			method:     http.MethodPost,
			path:       "/session/%s/answer",
			body:       `{"text":"too early"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "no active question",
		},
		{
			name:       "question generation fails",
			eval:       &mockEvaluator{questionErr: errors.New("llm down")},
			setup:      func(t *testing.T, h http.Handler) string { return createSession(t, h, "") },
			method:     http.MethodGet,
			path:       "/session/%s/next",
			wantStatus: http.StatusBadGateway,
			wantError:  "could not generate a question",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestServer(t, tt.eval)
			h := server.Handler()
			id := tt.setup(t, h)

			rec := doRequest(t, h, tt.method, strings.Replace(tt.path, "%s", id, 1), tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}

			var resp map[string]interface{}
			decodeJSON(t, rec, &resp)
			if resp["error"] != tt.wantError {
				t.Errorf("error = %v, want %q", resp["error"], tt.wantError)
			}
		})
	}
}

func TestFeedbackNotFoundIsText(t *testing.T) {
	server := setupTestServer(t, &mockEvaluator{})

	rec := doRequest(t, server.Handler(), http.MethodGet, "/session/missing/feedback", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec.Body.String() != "Session not found" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestSubmitAnswer_EvaluatorFailureIsRecovered(t *testing.T) {
	server := setupTestServer(t, &mockEvaluator{replyErr: errors.New("timeout")})
	h := server.Handler()
	id := createSession(t, h, "")
	doRequest(t, h, http.MethodGet, "/session/"+id+"/next", "")

	rec := doRequest(t, h, http.MethodPost, "/session/"+id+"/answer", `{"text":"answer"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, evaluation failures must not surface", rec.Code)
	}

	var reply session.Reply
	decodeJSON(t, rec, &reply)
	if reply.Eval == nil || reply.Eval.Notes != "No evaluation available." {
		t.Errorf("eval = %+v", reply.Eval)
	}
}

func TestListSessions(t *testing.T) {
	server := setupTestServer(t, &mockEvaluator{})
	createSession(t, server.Handler(), `{"role":"retail"}`)

	rec := doRequest(t, server.Handler(), http.MethodGet, "/v1/sessions", "")
	var resp struct {
		Sessions []session.Summary `json:"sessions"`
	}
	decodeJSON(t, rec, &resp)
	if len(resp.Sessions) != 1 || resp.Sessions[0].Role != "retail" {
		t.Errorf("sessions = %+v", resp.Sessions)
	}
}

func TestShutdownClosesPublisher(t *testing.T) {
	pub := &recordingPublisher{}
	server, err := NewServer(context.Background(), ServerConfig{Evaluator: &mockEvaluator{}, Publisher: pub})
	if err != nil {
		t.Fatal(err)
	}

	if err := server.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if !pub.closed {
		t.Error("Shutdown() should close the publisher")
	}
}
