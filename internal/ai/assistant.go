package ai

import (
	"context"
	"math"
)

// MaxReasons bounds the number of reasons kept on a verdict.
const MaxReasons = 3

// Request is a single JSON-mode inference call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	// Model overrides the provider's configured model when set.
	Model string
}

// Completer sends a request to an inference provider and returns the decoded JSON object.
// A non-JSON or empty answer is an error.
type Completer interface {
	CompleteJSON(ctx context.Context, req Request) (map[string]any, error)
}

// Verdict is the outcome of a relevance classification call.
type Verdict struct {
	Matched bool
	// Score is nil when the provider did not return a usable score.
	Score   *float64
	Reasons []string
}

// Reject returns a negative verdict carrying a single reason.
func Reject(reason string) Verdict {
	if reason == "" {
		return Verdict{}
	}
	return Verdict{Reasons: []string{reason}}
}

// ScoreValue returns the score or NaN when absent.
func (v Verdict) ScoreValue() float64 {
	if v.Score == nil {
		return math.NaN()
	}
	return *v.Score
}

// ParseVerdict builds a verdict from a decoded `{match, score, reasons}` object.
// It never fails: missing or malformed fields fall back to a negative verdict.
func ParseVerdict(data map[string]any) Verdict {
	if data == nil {
		return Verdict{}
	}

	verdict := Verdict{
		Matched: CoerceBool(data["match"]),
		Reasons: CoerceStrings(data["reasons"], MaxReasons),
	}

	if _, ok := data["match"]; !ok {
		verdict.Matched = false
	}

	if score := CoerceFloat(data["score"]); !math.IsNaN(score) {
		score = math.Max(0, math.Min(1, score))
		verdict.Score = &score
	}

	return verdict
}
