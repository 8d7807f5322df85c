package app

import "strings"

// Intent is the coarse class of an incoming question.
type Intent int

const (
	IntentKnowledgeQuery Intent = iota
	IntentGreeting
	IntentIntroduction
)

func (i Intent) String() string {
	switch i {
	case IntentGreeting:
		return "greeting"
	case IntentIntroduction:
		return "introduction"
	default:
		return "knowledge_query"
	}
}

var greetingPatterns = []string{
	"hi",
	"hello",
	"hey",
	"greetings",
	"good morning",
	"good afternoon",
	"good evening",
	"howdy",
	"what's up",
	"whats up",
	"sup",
	"yo",
}

var introPatterns = []string{
	"who are you",
	"what are you",
	"what can you do",
	"what do you do",
	"tell me about yourself",
	"introduce yourself",
	"your capabilities",
	"help me",
	"what is this",
	"how does this work",
}

// ClassifyIntent matches the trimmed, lowercased question against fixed
// phrase sets. A greeting is an exact match or a prefix match; an
// introduction request contains one of its phrases. Greetings win.
// Prefix matching is literal, so "history of ..." counts as a greeting.
func ClassifyIntent(question string) Intent {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, g := range greetingPatterns {
		if strings.HasPrefix(q, g) {
			return IntentGreeting
		}
	}
	for _, p := range introPatterns {
		if strings.Contains(q, p) {
			return IntentIntroduction
		}
	}
	return IntentKnowledgeQuery
}
