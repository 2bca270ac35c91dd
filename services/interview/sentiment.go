package interview

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/offboardhq/llmbridge/services/providers"
)

// Sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Sentiment is the model's verdict on a piece of answer text. Score runs
// from -1 (most negative) to 1 (most positive).
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

const sentimentMaxTokens = 100

const sentimentSystemPrompt = `You are a sentiment classifier. Classify the sentiment of the user's message.
Respond with only a JSON object of the form {"label": "positive" | "neutral" | "negative", "score": <number between -1 and 1>}.
Do not add any other text.`

// parseSentiment extracts the verdict from a model response. Models wrap
// JSON in markdown fences often enough that we strip them first. Scores
// outside [-1, 1] are clamped.
func parseSentiment(raw, provider string) (Sentiment, error) {
	payload := stripFences(raw)
	if !gjson.Valid(payload) {
		return Sentiment{}, providers.NewError(providers.KindUnknown, provider,
			"sentiment response is not valid JSON: "+truncate(raw, 120), 0, nil)
	}

	label := strings.ToLower(strings.TrimSpace(gjson.Get(payload, "label").String()))
	switch label {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
	default:
		return Sentiment{}, providers.NewError(providers.KindUnknown, provider,
			"unexpected sentiment label \""+label+"\"", 0, nil)
	}

	score := gjson.Get(payload, "score").Float()
	if score < -1 {
		score = -1
	} else if score > 1 {
		score = 1
	}

	return Sentiment{Label: label, Score: score}, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.Index(trimmed, "\n"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
