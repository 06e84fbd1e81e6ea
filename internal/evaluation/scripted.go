package evaluation

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/rehearse/internal/session"
)

var questionBank = map[string][]string{
	"software_engineer": {
		"Tell me about a recent project you are proud of and your role in it.",
		"How would you design a URL shortener that handles millions of requests a day?",
		"Describe a production incident you helped resolve. What did you learn?",
		"How do you decide when code is ready for review?",
		"Explain how you would find and fix a memory leak in a long-running service.",
		"Tell me about a time you disagreed with a technical decision.",
	},
	"sales": {
		"Walk me through how you qualify a new lead.",
		"Tell me about the hardest deal you closed.",
		"How do you handle a prospect who says the price is too high?",
		"Describe how you manage your pipeline week to week.",
		"Tell me about a deal you lost and what you changed afterwards.",
	},
	"retail": {
		"Tell me about a time you turned an unhappy customer around.",
		"How do you prioritise tasks during a busy shift?",
		"Describe how you would handle a suspected shoplifter.",
		"How do you keep product knowledge up to date?",
		"Tell me about a time you worked well with a difficult colleague.",
	},
	"default": {
		"Tell me about yourself.",
		"Why are you interested in this role?",
		"Describe a challenge you faced at work and how you handled it.",
		"What is a professional accomplishment you are proud of?",
		"Where do you want to grow in the next two years?",
	},
}

var acknowledgements = map[string]string{
	"efficient":   "Understood.",
	"confused":    "Sorry, let me make sure I followed that. I think I've got it now.",
	"chatty":      "Oh, that reminds me of a project we ran last year. Anyway, good answer!",
	"friendly":    "Thanks for sharing that, it helps me understand your experience.",
	"challenging": "Noted. I'd expect more specifics in a real interview.",
}

// ScriptedEvaluator asks questions from a fixed per-role bank and does not
// score answers. It is used when no language model is configured.
type ScriptedEvaluator struct{}

// Ensure ScriptedEvaluator implements session.Evaluator
var _ session.Evaluator = (*ScriptedEvaluator)(nil)

// NewScriptedEvaluator creates a scripted evaluator
func NewScriptedEvaluator() *ScriptedEvaluator {
	return &ScriptedEvaluator{}
}

// NextQuestion returns the next bank question for the role, cycling when the
// bank runs out
func (s *ScriptedEvaluator) NextQuestion(ctx context.Context, req session.QuestionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	bank, ok := questionBank[strings.ToLower(req.Role)]
	if !ok {
		bank = questionBank["default"]
	}
	return bank[len(req.History)%len(bank)], nil
}

// Reply acknowledges the answer in the persona's voice with no evaluation
func (s *ScriptedEvaluator) Reply(ctx context.Context, req session.ReplyRequest) (*session.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, ok := acknowledgements[strings.ToLower(req.Persona)]
	if !ok {
		text = acknowledgements["efficient"]
	}
	return &session.Reply{Interviewer: text}, nil
}
