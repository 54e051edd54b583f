package router

import "strings"

// keywordTable is the deterministic fallback used when the completer is
// unavailable or its routing reply cannot be parsed. Order matters: the
// first table entry whose keywords match wins.
var keywordTable = []struct {
	handler  string
	keywords []string
}{
	{"weather", []string{"weather", "rain", "temperature", "forecast", "humidity", "wind", "monsoon", "irrigat"}},
	{"pest", []string{"pest", "disease", "insect", "fungus", "infestation", "leaf spot", "blight", "worm"}},
	{"market", []string{"price", "market", "mandi", "sell", "buy", "cost", "rate"}},
	{"finance", []string{"loan", "scheme", "government", "subsidy", "kcc", "insurance", "credit", "kisan"}},
}

// classifyByKeywords scores the request text against the fallback table and
// returns the best-matching handler id, or "general" when nothing matches.
func classifyByKeywords(text string) (handler string, matches int) {
	lower := strings.ToLower(text)

	best := "general"
	bestScore := 0
	for _, entry := range keywordTable {
		score := 0
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = entry.handler
		}
	}
	return best, bestScore
}

// greetings and offTopic feed the pre-classification short-circuits. A
// greeting gets a canned welcome; an off-topic request gets a polite
// redirect. Neither invokes any handler.
var greetings = []string{
	"hello", "hi", "hey", "namaste", "namaskar",
	"good morning", "good afternoon", "good evening",
}

var offTopicKeywords = []string{
	"movie", "film", "cricket score", "football", "politics",
	"election", "celebrity", "song", "music", "video game",
}

func isGreeting(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	lower = strings.Trim(lower, "!.? ")
	for _, g := range greetings {
		if lower == g {
			return true
		}
	}
	return false
}

func isOffTopic(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range offTopicKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
