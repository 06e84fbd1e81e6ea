// Package client talks to the rehearse daemon over HTTP and drives an
// interview from a terminal or any other front end.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/rehearse/internal/session"
)

// DefaultBaseURL is the daemon's default listen address
const DefaultBaseURL = "http://127.0.0.1:7433"

// maxErrorBody caps how much of an error response is kept in APIError
const maxErrorBody = 4096

// APIError is a non-2xx response from the daemon
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsNoActiveQuestion reports whether err is the daemon rejecting an answer
// because no question is outstanding
func IsNoActiveQuestion(err error) bool {
	return statusOf(err) == http.StatusBadRequest
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Status is the daemon's /v1/status payload
type Status struct {
	Status        string   `json:"status"`
	Version       string   `json:"version"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	LLMProviders  []string `json:"llm_providers"`
	Evaluator     string   `json:"evaluator"`
	Sessions      int      `json:"sessions"`
}

// Client is a typed HTTP client for the daemon API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for the daemon at baseURL. A base path such as
// "/api" is kept and prefixed to every session route.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// An answer round trip includes an LLM evaluation.
			Timeout: 90 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the daemon address this client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health checks that the daemon is up
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/v1/health", nil, nil)
}

// Status returns daemon status
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.doJSON(ctx, http.MethodGet, "/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Sessions lists session summaries
func (c *Client) Sessions(ctx context.Context) ([]session.Summary, error) {
	var resp struct {
		Sessions []session.Summary `json:"sessions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// CreateSession starts a new interview session
func (c *Client) CreateSession(ctx context.Context, cfg session.Config) (*session.Session, error) {
	var resp struct {
		Session *session.Session `json:"session"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/session", cfg, &resp); err != nil {
		return nil, err
	}
	if resp.Session == nil {
		return nil, errors.New("daemon returned no session")
	}
	return resp.Session, nil
}

// GetSession returns a session snapshot
func (c *Client) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var resp struct {
		Session *session.Session `json:"session"`
	}
	if err := c.doJSON(ctx, http.MethodGet, sessionPath(id, ""), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Session, nil
}

// NextQuestion requests the next question
func (c *Client) NextQuestion(ctx context.Context, id string) (*session.NextResult, error) {
	var result session.NextResult
	if err := c.doJSON(ctx, http.MethodGet, sessionPath(id, "/next"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitAnswer answers the outstanding question
func (c *Client) SubmitAnswer(ctx context.Context, id, text string) (*session.Reply, error) {
	var reply session.Reply
	body := map[string]string{"text": text}
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(id, "/answer"), body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Feedback returns the plain-text interview summary
func (c *Client) Feedback(ctx context.Context, id string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, sessionPath(id, "/feedback"), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read feedback: %w", err)
	}
	return string(b), nil
}

// EndSession finishes the interview
func (c *Client) EndSession(ctx context.Context, id string) (*session.Session, error) {
	var resp struct {
		Session *session.Session `json:"session"`
	}
	if err := c.doJSON(ctx, http.MethodPost, sessionPath(id, "/end"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Session, nil
}

func sessionPath(id, suffix string) string {
	return "/session/" + url.PathEscape(id) + suffix
}

// doJSON sends in as JSON (if non-nil) and decodes a 2xx body into out (if
// non-nil)
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// resolve joins path to the base URL. Health and status routes live at the
// daemon root even when the base URL carries an "/api" prefix.
func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "/v1/") {
		if u, err := url.Parse(c.baseURL); err == nil {
			u.Path = ""
			return strings.TrimRight(u.String(), "/") + path
		}
	}
	return c.baseURL + path
}

// checkStatus turns a non-2xx response into an *APIError, taking the message
// from a JSON error body or the plain-text body
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var jsonErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &jsonErr) == nil && jsonErr.Error != "" {
		apiErr.Message = jsonErr.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(b))
	}
	return apiErr
}
