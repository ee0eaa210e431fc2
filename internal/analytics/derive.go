package analytics

import (
	"sort"
	"strings"
	"unicode"

	"voice-agent-platform/internal/voice"
)

const maxKeywords = 10

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a about above after again all also am an and any are as at be because been
before being but by can could did do does doing down during each few for from further had has have having
he her here hers him his how i if in into is it its just me more most my no nor not now of off on once only
or other our ours out over own same she should so some such than that the their them then there these they
this those through to too under until up very was we were what when where which while who whom why will with
would yes you your yours okay ok yeah hello hi um uh like well right sure thanks thank please get got know
want need let going go one`) {
		stopwords[w] = struct{}{}
	}
}

var positiveWords = map[string]struct{}{
	"great": {}, "good": {}, "perfect": {}, "excellent": {}, "awesome": {}, "happy": {},
	"interested": {}, "love": {}, "wonderful": {}, "helpful": {}, "appreciate": {}, "fantastic": {},
}

var negativeWords = map[string]struct{}{
	"bad": {}, "terrible": {}, "angry": {}, "annoyed": {}, "cancel": {}, "complaint": {},
	"disappointed": {}, "problem": {}, "issue": {}, "stop": {}, "unhappy": {}, "wrong": {}, "worst": {},
}

// topicLexicon maps topic names to the stems that signal them.
var topicLexicon = map[string][]string{
	"pricing":     {"price", "pricing", "cost", "expensive", "cheap", "discount", "quote", "budget"},
	"scheduling":  {"schedule", "appointment", "booking", "book", "meeting", "calendar", "reschedule", "tomorrow"},
	"support":     {"help", "support", "problem", "issue", "broken", "error", "fix"},
	"billing":     {"invoice", "payment", "refund", "charge", "billing", "card"},
	"sales":       {"buy", "purchase", "order", "demo", "trial", "upgrade", "plan"},
	"complaint":   {"complaint", "angry", "terrible", "disappointed", "unhappy", "worst"},
	"information": {"information", "details", "hours", "address", "location", "website"},
}

// Derived holds the fields computed from a conversation.
type Derived struct {
	Sentiment Sentiment
	Keywords  []string
	Topics    []string
	Metrics   Metrics
}

// Derive computes sentiment, keywords, topics and counters from a finished conversation.
// The provider's call_successful verdict wins over the word-level heuristic.
func Derive(conv voice.Conversation) Derived {
	var userText []string
	m := Metrics{}
	for _, t := range conv.Transcript {
		words := len(tokenize(t.Message))
		m.Turns++
		switch t.Role {
		case "user":
			m.UserTurns++
			m.UserWords += words
			userText = append(userText, t.Message)
		case "agent":
			m.AgentTurns++
			m.AgentWords += words
		}
	}
	if m.UserTurns > 0 {
		m.AvgUserTurnWords = round2(float64(m.UserWords) / float64(m.UserTurns))
	}
	if total := m.UserWords + m.AgentWords; total > 0 {
		m.TalkRatio = round2(float64(m.UserWords) / float64(total))
	}
	if a := conv.Analysis; a != nil {
		for _, r := range a.EvaluationCriteriaResults {
			switch r.Result {
			case "success":
				m.EvaluationsPassed++
			case "failure":
				m.EvaluationsFailed++
			}
		}
		for _, r := range a.DataCollectionResults {
			if r.Value != nil {
				m.DataPointsCollected++
			}
		}
	}

	tokens := tokenize(strings.Join(userText, " "))
	return Derived{
		Sentiment: sentiment(conv.Analysis, tokens),
		Keywords:  keywords(tokens),
		Topics:    topics(tokens),
		Metrics:   m,
	}
}

func sentiment(a *voice.Analysis, tokens []string) Sentiment {
	if a != nil {
		switch a.CallSuccessful {
		case "success":
			return SentimentPositive
		case "failure":
			return SentimentNegative
		}
	}
	score := 0
	for _, t := range tokens {
		if _, ok := positiveWords[t]; ok {
			score++
		}
		if _, ok := negativeWords[t]; ok {
			score--
		}
	}
	switch {
	case score > 0:
		return SentimentPositive
	case score < 0:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func keywords(tokens []string) []string {
	counts := map[string]int{}
	for _, t := range tokens {
		if len(t) < 3 {
			continue
		}
		if _, stop := stopwords[t]; stop {
			continue
		}
		counts[t]++
	}
	out := make([]string, 0, len(counts))
	for w := range counts {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > maxKeywords {
		out = out[:maxKeywords]
	}
	return out
}

func topics(tokens []string) []string {
	seen := map[string]struct{}{}
	for _, t := range tokens {
		seen[t] = struct{}{}
	}
	out := make([]string, 0)
	for topic, stems := range topicLexicon {
		for _, s := range stems {
			if _, ok := seen[s]; ok {
				out = append(out, topic)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
