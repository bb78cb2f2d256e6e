package detector

import (
	"context"
	"strings"

	"github.com/andrehe001/semanticworkbench/internal/domain"
)

// Rules is a deterministic keyword classifier. It is deliberately
// conservative: only explicit blocker or need language scores high
// enough to clear the default threshold, so acknowledgments and status
// chatter stay negative.
type Rules struct{}

// Phrases that signal the sender cannot proceed without help.
var blockerPhrases = []string{
	"blocked",
	"can't proceed",
	"cannot proceed",
	"can't continue",
	"cannot continue",
	"stuck on",
	"unable to",
}

// Phrases that signal a concrete need the coordinator can satisfy.
var needPhrases = []string{
	"don't have access",
	"do not have access",
	"no access to",
	"need access",
	"is missing",
	"are missing",
	"i need",
	"we need",
	"could you provide",
	"can you provide",
	"could you share",
	"can you share",
	"waiting on",
	"waiting for",
}

// Weak question forms: suggestive but not enough on their own.
var questionPhrases = []string{
	"where can i find",
	"where do i find",
	"how do i get",
	"who can give",
	"what is the",
}

var urgentPhrases = []string{
	"urgent",
	"asap",
	"critical",
	"production is down",
	"immediately",
}

var ackPhrases = []string{
	"thanks", "thank you", "got it", "ok", "okay", "sounds good",
	"will do", "done", "great", "understood", "perfect", "noted",
}

func (Rules) Classify(_ context.Context, _ []domain.Message, latest string) (domain.DetectionResult, error) {
	text := strings.ToLower(strings.TrimSpace(latest))
	if text == "" || isAcknowledgment(text) {
		return domain.DetectionResult{
			IsRequest:  false,
			Reason:     "message is an acknowledgment or carries no request signal",
			Confidence: 0,
		}, nil
	}

	blocked := containsAny(text, blockerPhrases)
	need := containsAny(text, needPhrases)
	question := containsAny(text, questionPhrases)

	confidence := 0.0
	switch {
	case blocked || need:
		confidence = 0.85
		if blocked && need {
			confidence = 0.95
		}
	case question:
		confidence = 0.5
	}
	if confidence == 0 {
		return domain.DetectionResult{
			IsRequest:  false,
			Reason:     "no blocker or need language found",
			Confidence: 0,
		}, nil
	}

	priority := domain.PriorityMedium
	if blocked {
		priority = domain.PriorityHigh
	}
	if containsAny(text, urgentPhrases) {
		priority = domain.PriorityCritical
	}

	var reasons []string
	if blocked {
		reasons = append(reasons, "sender reports being blocked")
	}
	if need {
		reasons = append(reasons, "sender states a concrete need")
	}
	if question && !blocked && !need {
		reasons = append(reasons, "sender asks where to find something")
	}

	return domain.DetectionResult{
		IsRequest:   true,
		Reason:      strings.Join(reasons, "; "),
		Title:       titleFrom(latest),
		Description: strings.TrimSpace(latest),
		Priority:    priority,
		Confidence:  confidence,
	}, nil
}

// isAcknowledgment reports whether the message is only pleasantries.
func isAcknowledgment(text string) bool {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!'
	})
	if len(words) == 0 || len(words) > 6 {
		return false
	}
	rest := text
	for _, p := range ackPhrases {
		rest = strings.ReplaceAll(rest, p, "")
	}
	rest = strings.Trim(rest, " ,.!")
	return rest == ""
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// titleFrom condenses the message into a short request title.
func titleFrom(text string) string {
	line := strings.TrimSpace(text)
	if i := strings.IndexAny(line, "\n"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	line = strings.TrimRight(line, ".!?")
	const max = 80
	if len(line) > max {
		line = strings.TrimSpace(line[:max]) + "..."
	}
	return line
}
