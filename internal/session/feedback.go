package session

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	reportRule       = "-------------------------"
	noAnswerProvided = "No answer provided."
)

// FormatReport renders the interview summary shown at the end of a session.
// Unanswered, blank or unscored questions appear with placeholder text and
// zero scores and still count toward the averages.
func FormatReport(sess *Session) string {
	var b strings.Builder
	b.WriteString("INTERVIEW SUMMARY\n" + reportRule + "\n\n")

	var comm, tech, structure, conf []float64
	for i, q := range sess.QuestionsAsked {
		answer := noAnswerProvided
		if q.CandidateAnswer != nil && strings.TrimSpace(*q.CandidateAnswer) != "" {
			answer = *q.CandidateAnswer
		}
		eval := DefaultRubric()
		if q.Eval != nil {
			eval = *q.Eval
		}

		fmt.Fprintf(&b, "Q%d: %s\n", i+1, q.Text)
		fmt.Fprintf(&b, "Your Answer: %s\n\n", answer)
		fmt.Fprintf(&b, "Communication: %s / 5\n", formatScore(eval.Communication))
		fmt.Fprintf(&b, "Technical: %s / 5\n", formatScore(eval.Technical))
		fmt.Fprintf(&b, "Structure: %s / 5\n", formatScore(eval.Structure))
		fmt.Fprintf(&b, "Confidence: %s / 5\n", formatScore(eval.Confidence))
		fmt.Fprintf(&b, "Notes: %s\n", eval.Notes)
		b.WriteString(reportRule + "\n\n")

		comm = append(comm, eval.Communication)
		tech = append(tech, eval.Technical)
		structure = append(structure, eval.Structure)
		conf = append(conf, eval.Confidence)
	}

	b.WriteString("FINAL AGGREGATE SCORE\n")
	fmt.Fprintf(&b, "Communication: %s\n", Average(comm))
	fmt.Fprintf(&b, "Technical: %s\n", Average(tech))
	fmt.Fprintf(&b, "Structure: %s\n", Average(structure))
	fmt.Fprintf(&b, "Confidence: %s\n", Average(conf))

	return strings.TrimSpace(b.String())
}

// Average returns the mean to one decimal place, or "0.0" for no values.
// Rounding follows the exact binary value of the mean, so only exact halves
// round up and 1.15 (stored just below) prints as 1.1.
func Average(values []float64) string {
	if len(values) == 0 {
		return "0.0"
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if r := math.Floor(mean * 10); math.FMA(mean, 10, -(r+0.5)) == 0 {
		return strconv.FormatFloat((r+1)/10, 'f', 1, 64)
	}
	return strconv.FormatFloat(mean, 'f', 1, 64)
}

// formatScore prints whole scores without a decimal point and keeps
// fractional ones as given.
func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
