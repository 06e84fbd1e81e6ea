package evaluation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/rehearse/internal/session"
)

const (
	minScore = 0
	maxScore = 5
)

// replyPayload mirrors the JSON object the reply prompt asks for. Eval is
// decoded separately so a malformed rubric does not lose the interviewer text.
type replyPayload struct {
	Interviewer string          `json:"interviewer"`
	Eval        json.RawMessage `json:"eval"`
}

type evalPayload struct {
	Communication score  `json:"communication"`
	Technical     score  `json:"technical"`
	Structure     score  `json:"structure"`
	Confidence    score  `json:"confidence"`
	Notes         string `json:"notes"`
}

// score is a rubric value given as a JSON number or a numeric string. Any
// other value leaves it unset instead of failing the whole object.
type score struct {
	value *float64
}

func (s *score) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		s.value = &n
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return nil
	}
	if n, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
		s.value = &n
	}
	return nil
}

// parseReply turns raw model output into a Reply. Output that is not a JSON
// object becomes the interviewer text with no evaluation.
func parseReply(raw string) *session.Reply {
	content := cleanJSONResponse(raw)

	var p replyPayload
	if err := json.Unmarshal([]byte(extractObject(content)), &p); err != nil {
		return &session.Reply{Interviewer: strings.TrimSpace(raw)}
	}

	reply := &session.Reply{Interviewer: strings.TrimSpace(p.Interviewer)}
	var e evalPayload
	if len(p.Eval) == 0 || string(p.Eval) == "null" || json.Unmarshal(p.Eval, &e) != nil {
		return reply
	}

	notes := strings.TrimSpace(e.Notes)
	if notes == "" {
		notes = session.NoEvaluationNote
	}
	reply.Eval = &session.Rubric{
		Communication: clampScore(e.Communication),
		Technical:     clampScore(e.Technical),
		Structure:     clampScore(e.Structure),
		Confidence:    clampScore(e.Confidence),
		Notes:         notes,
	}
	return reply
}

// cleanJSONResponse strips markdown code fences
func cleanJSONResponse(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")
	return strings.TrimSpace(response)
}

// extractObject trims any prose around the outermost JSON object
func extractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func clampScore(s score) float64 {
	if s.value == nil || math.IsNaN(*s.value) {
		return 0
	}
	return math.Min(maxScore, math.Max(minScore, *s.value))
}

// cleanQuestion removes wrapping quotes and labels models tend to add
func cleanQuestion(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Question:", "Interviewer:", "Q:"} {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = strings.TrimSpace(s[len(prefix):])
		}
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
