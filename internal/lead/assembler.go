package lead

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

// ErrNotAvailable is returned when the project no longer accepts offers.
var ErrNotAvailable = errors.New("project is not available")

// Page exposes the fields of a project page.
type Page interface {
	URL() string
	Available(ctx context.Context) (bool, error)
	Title(ctx context.Context) (string, error)
	Description(ctx context.Context) (string, error)
	Tags(ctx context.Context) ([]string, error)
	Budget(ctx context.Context) ([]int, error)
}

// PageSource returns a fresh page, with its own caches, for a reference.
type PageSource func(reference string) Page

// Assembler builds lead records from project pages. It never touches the store.
type Assembler struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewAssembler creates an assembler.
func NewAssembler(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger, now: time.Now}
}

// Assemble returns a NEW lead for an open project, or ErrNotAvailable.
func (a *Assembler) Assemble(ctx context.Context, page Page) (*Lead, error) {
	reference := page.URL()

	available, err := page.Available(ctx)
	if err != nil {
		return nil, fmt.Errorf("check availability of %s: %w", reference, err)
	}
	if !available {
		return nil, ErrNotAvailable
	}

	title, err := page.Title(ctx)
	if err != nil {
		return nil, fmt.Errorf("read title of %s: %w", reference, err)
	}
	description, err := page.Description(ctx)
	if err != nil {
		return nil, fmt.Errorf("read description of %s: %w", reference, err)
	}
	tags, err := page.Tags(ctx)
	if err != nil {
		return nil, fmt.Errorf("read tags of %s: %w", reference, err)
	}
	budget, err := page.Budget(ctx)
	if err != nil {
		return nil, fmt.Errorf("read budget of %s: %w", reference, err)
	}
	if len(budget) == 0 {
		a.logger.Debug("no budget found, using default", zap.String("reference", reference), zap.Ints("budget", DefaultBudget))
		budget = slices.Clone(DefaultBudget)
	}
	if tags == nil {
		tags = []string{}
	}

	now := a.now().UTC()
	return &Lead{
		Reference:   reference,
		Title:       title,
		Description: description,
		Tags:        tags,
		Budget:      budget,
		Status:      StatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
