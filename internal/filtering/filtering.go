package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/codeur-agent/codeur-responder/internal/ai"
)

// Candidate is the text under evaluation together with its mail envelope, when known.
type Candidate struct {
	Reference string
	Sender    string
	Subject   string
	Text      string
}

// Filter is a single relevance check applied to a candidate.
// A filter never fails on a bad answer from its collaborators: it rejects instead.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate() error
	Apply(ctx context.Context, c Candidate) (ai.Verdict, error)
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Validate checks every enabled filter.
func Validate(steps []Filter) error {
	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(); err != nil {
			return fmt.Errorf("%s: %w", step.Name(), err)
		}
	}
	return nil
}

// Run applies the enabled filters in order and stops at the first rejection.
// The verdict of the last filter that ran is returned; with no enabled filter the candidate matches.
func Run(ctx context.Context, logger *zap.Logger, steps []Filter, c Candidate) (ai.Verdict, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	verdict := ai.Verdict{Matched: true}
	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}

		next, err := step.Apply(ctx, c)
		if err != nil {
			return ai.Verdict{}, fmt.Errorf("%s: %w", step.Name(), err)
		}

		logger.Debug("filter step",
			zap.String("name", step.Name()),
			zap.String("reference", c.Reference),
			zap.Bool("matched", next.Matched),
			zap.Strings("reasons", next.Reasons),
		)

		verdict = next
		if !verdict.Matched {
			break
		}
	}

	return verdict, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}
