package ai

import "strings"

// refusalIndicators are phrases models use when declining a request instead
// of answering. Checked only against responses that failed JSON parsing, so
// a legitimate critique quoting one of these phrases is never rejected.
var refusalIndicators = []string{
	"i'm sorry", "i am sorry", "i cannot", "i can't", "i'm unable",
	"i am unable", "i apologize", "unfortunately", "i'm afraid",
	"i don't have access", "against my guidelines", "content policy",
	"unable to process", "cannot assist", "cannot comply",
}

// isRefusal reports whether an unparsable model response looks like a
// refusal rather than malformed output, so callers can surface a clearer
// error than a bare decode failure.
func isRefusal(response string) bool {
	lower := strings.ToLower(response)
	for _, ind := range refusalIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}
