package codeur

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	PricingFlatRate  = "flat_rate"
	PricingDailyRate = "daily_rate"

	LevelStandard = "standard"
	LevelSuper    = "super"
)

// Offer is a bid on one project.
type Offer struct {
	ProjectURL  string
	Amount      int
	Duration    int
	Message     string
	PricingMode string
	Level       string
}

// Validate checks the offer before any browser work starts.
func (o Offer) Validate() error {
	var errs []error
	if !strings.HasPrefix(o.ProjectURL, ProjectURLPrefix) {
		errs = append(errs, fmt.Errorf("project url %q is not a codeur project", o.ProjectURL))
	}
	if o.Amount <= 0 {
		errs = append(errs, fmt.Errorf("amount must be positive, got %d", o.Amount))
	}
	if o.Duration <= 0 {
		errs = append(errs, fmt.Errorf("duration must be positive, got %d", o.Duration))
	}
	if strings.TrimSpace(o.Message) == "" {
		errs = append(errs, errors.New("message must not be empty"))
	}
	if o.PricingMode != PricingFlatRate && o.PricingMode != PricingDailyRate {
		errs = append(errs, fmt.Errorf("unknown pricing mode %q", o.PricingMode))
	}
	if o.Level != LevelStandard && o.Level != LevelSuper {
		errs = append(errs, fmt.Errorf("unknown offer level %q", o.Level))
	}
	return errors.Join(errs...)
}

// SubmitResult is the outcome of one submission attempt.
type SubmitResult struct {
	Success bool
	Message string
}

// Submitter posts offers on the marketplace.
type Submitter interface {
	Submit(ctx context.Context, offer Offer) SubmitResult
}
