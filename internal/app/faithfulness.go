package app

import "strings"

var hallucinationIndicators = []string{
	"it is widely known",
	"according to common knowledge",
	"in my experience",
	"as we all know",
	"everyone knows",
	"i think",
	"i believe",
	"in my opinion",
}

// DetectUnfaithfulPhrases returns the hedge or opinion phrases found in
// answer. It only detects; the pipeline logs matches and never rewrites
// the answer.
func DetectUnfaithfulPhrases(answer string) []string {
	lower := strings.ToLower(answer)
	var found []string
	for _, indicator := range hallucinationIndicators {
		if strings.Contains(lower, indicator) {
			found = append(found, indicator)
		}
	}
	return found
}
