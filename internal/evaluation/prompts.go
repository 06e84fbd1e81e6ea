package evaluation

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/rehearse/internal/session"
)

// Prompter builds prompts for the interviewer model
type Prompter struct{}

// NewPrompter creates a new prompter
func NewPrompter() *Prompter {
	return &Prompter{}
}

// SystemPrompt returns the interviewer system prompt for a persona
func (p *Prompter) SystemPrompt(persona string) string {
	base := `You are a professional job interviewer running a realistic mock interview.
Ask one question at a time. Never answer your own questions.
Stay in character for the whole interview.

PERSONA:`

	switch strings.ToLower(persona) {
	case "friendly":
		return base + `
- Warm and encouraging
- Acknowledge what the candidate did well before moving on
- Keep questions conversational`

	case "challenging":
		return base + `
- Direct and demanding
- Probe weak spots and ask for specifics
- Do not praise vague answers`

	case "confused":
		return base + `
- Occasionally loses the thread and asks the candidate to clarify
- Restates answers back, sometimes slightly wrong, so the candidate must correct you
- Stay polite and genuinely curious`

	case "chatty":
		return base + `
- Talkative and informal
- Add a short aside or anecdote before moving on
- Still ask exactly one clear question each turn`

	case "efficient":
		return base + `
- Brief and businesslike
- No small talk
- Move quickly between topics`

	default:
		return base + `
- Neutral and professional`
	}
}

// QuestionPrompt asks for the next interview question
func (p *Prompter) QuestionPrompt(req session.QuestionRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Role: %s\n", displayRole(req.Role))
	fmt.Fprintf(&b, "Seniority: %s\n\n", req.Level)

	if len(req.History) == 0 {
		b.WriteString("The interview is just starting.\n\n")
	} else {
		b.WriteString("## Conversation so far\n")
		writeHistory(&b, req.History)
		b.WriteString("\n")
	}

	b.WriteString(`Ask the next interview question.
- Build on earlier answers where it makes sense, do not repeat a question
- Match the difficulty to the seniority
- Respond with the question text only, no preamble, no numbering`)

	return b.String()
}

// ReplyPrompt asks for an interviewer reaction and a rubric for one answer
func (p *Prompter) ReplyPrompt(req session.ReplyRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Role: %s\n", displayRole(req.Role))
	fmt.Fprintf(&b, "Seniority: %s\n\n", req.Level)

	if len(req.History) > 0 {
		b.WriteString("## Earlier questions\n")
		writeHistory(&b, req.History)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Current question\n%s\n\n", req.Question)
	fmt.Fprintf(&b, "## Candidate answer\n%s\n\n", req.CandidateAnswer)

	b.WriteString(`React to the answer in one or two sentences as the interviewer, then score it.
Score each dimension from 0 to 5:
- communication: clarity and concision
- technical: correctness and depth for the role
- structure: logical flow, use of examples
- confidence: ownership and conviction

Respond with a single JSON object and nothing else:
{"interviewer": "<your reaction>", "eval": {"communication": 0, "technical": 0, "structure": 0, "confidence": 0, "notes": "<one sentence of feedback>"}}`)

	return b.String()
}

func writeHistory(b *strings.Builder, history []session.Turn) {
	for i, t := range history {
		fmt.Fprintf(b, "Q%d: %s\nA%d: %s\n", i+1, t.Question, i+1, t.Answer)
	}
}

func displayRole(role string) string {
	return strings.ReplaceAll(role, "_", " ")
}
