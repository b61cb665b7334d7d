package filtering

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/codeur-agent/codeur-responder/internal/ai"
)

// DefaultMinimumFitScore is the description-level score threshold.
const DefaultMinimumFitScore = 0.65

// Config configures the relevance classifier.
type Config struct {
	Keywords         []string      `mapstructure:"keywords"`
	ExcludedKeywords []string      `mapstructure:"excluded-keywords"`
	MinimumFitScore  float64       `mapstructure:"minimum-fit-score"`
	Profile          string        `mapstructure:"-"`
	Timeout          time.Duration `mapstructure:"-"`
}

// Classifier decides whether a project is worth bidding on in two passes:
// a cheap pass over the notification text, then a pass over the fetched description.
type Classifier struct {
	notification []Filter
	description  []Filter
	logger       *zap.Logger
}

// NewClassifier wires the keyword gate and both semantic passes.
func NewClassifier(cfg Config, completer ai.Completer, logger *zap.Logger) (*Classifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Classifier{
		notification: []Filter{
			NewKeywords(cfg.Keywords),
			NewExcludedKeywords(cfg.ExcludedKeywords),
			NewSemantic(SemanticConfig{
				Name:    "semantic_notification",
				Profile: cfg.Profile,
				Timeout: cfg.Timeout,
			}, completer, logger),
		},
		description: []Filter{
			NewSemantic(SemanticConfig{
				Name:         "semantic_description",
				Profile:      cfg.Profile,
				MinimumScore: cfg.MinimumFitScore,
				Timeout:      cfg.Timeout,
			}, completer, logger),
		},
		logger: logger,
	}

	if err := Validate(c.Filters()); err != nil {
		return nil, fmt.Errorf("invalid classifier configuration: %w", err)
	}

	return c, nil
}

// Filters lists every filter of both passes.
func (c *Classifier) Filters() []Filter {
	all := make([]Filter, 0, len(c.notification)+len(c.description))
	all = append(all, c.notification...)
	return append(all, c.description...)
}

// MatchNotification runs the keyword gate and the semantic filter over the notification text.
func (c *Classifier) MatchNotification(ctx context.Context, reference, text string) (ai.Verdict, error) {
	return Run(ctx, c.logger, c.notification, Candidate{Reference: reference, Text: text})
}

// MatchDescription runs the thresholded semantic filter over the project description.
func (c *Classifier) MatchDescription(ctx context.Context, reference, description string) (ai.Verdict, error) {
	return Run(ctx, c.logger, c.description, Candidate{Reference: reference, Text: description})
}

// IsMatchedProject combines both passes. describe is only called when the notification pass matched.
// The returned verdict is the one that decided the outcome.
func (c *Classifier) IsMatchedProject(ctx context.Context, reference, notificationText string, describe func(context.Context) (string, error)) (ai.Verdict, error) {
	verdict, err := c.MatchNotification(ctx, reference, notificationText)
	if err != nil || !verdict.Matched {
		return verdict, err
	}

	description, err := describe(ctx)
	if err != nil {
		return ai.Verdict{}, fmt.Errorf("describe project: %w", err)
	}

	return c.MatchDescription(ctx, reference, description)
}
