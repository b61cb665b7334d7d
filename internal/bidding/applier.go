package bidding

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/codeur-agent/codeur-responder/internal/codeur"
	"github.com/codeur-agent/codeur-responder/internal/lead"
	"github.com/codeur-agent/codeur-responder/internal/logger"
	"github.com/codeur-agent/codeur-responder/internal/store"
)

const (
	DefaultDurationDays    = 7
	DefaultFallbackMessage = "Bonjour, votre projet correspond à mes compétences et je serais ravi d'en discuter avec vous. " +
		"Je vous propose un accompagnement sérieux et une communication régulière à chaque étape."
)

// NoteSubmitted marks a NEW lead whose offer is already on the marketplace but whose
// status could not be saved. Such leads are never submitted again.
const NoteSubmitted = "offer submitted, status update failed"

// ErrNotNew is returned when applying to a lead that already left the NEW status.
var ErrNotNew = errors.New("lead is not new")

// Config holds the offer defaults.
type Config struct {
	DurationDays    int    `mapstructure:"duration-days"`
	PricingMode     string `mapstructure:"pricing-mode"`
	Level           string `mapstructure:"level"`
	FallbackMessage string `mapstructure:"fallback-message"`
}

func (c Config) withDefaults() Config {
	if c.DurationDays <= 0 {
		c.DurationDays = DefaultDurationDays
	}
	if c.PricingMode == "" {
		c.PricingMode = codeur.PricingFlatRate
	}
	if c.Level == "" {
		c.Level = codeur.LevelStandard
	}
	if c.FallbackMessage == "" {
		c.FallbackMessage = DefaultFallbackMessage
	}
	return c
}

// Store is the part of the lead store used while applying.
type Store interface {
	Get(ctx context.Context, reference string) (*lead.Lead, error)
	List(ctx context.Context, opts store.ListOptions) ([]*lead.Lead, error)
	UpdateStatus(ctx context.Context, reference string, status lead.Status) error
	Annotate(ctx context.Context, reference, note string) error
}

// MessageDrafter writes an offer message for a project.
type MessageDrafter interface {
	Draft(ctx context.Context, reference, description string) (string, error)
}

// Result describes what happened to one lead.
type Result struct {
	Reference string
	Status    lead.Status
	Submitted bool
	Message   string
	Err       error
}

// Applier submits offers for stored leads.
type Applier struct {
	cfg       Config
	store     Store
	pages     lead.PageSource
	drafter   MessageDrafter
	submitter codeur.Submitter
	logger    *zap.Logger
}

// NewApplier wires the applier collaborators.
func NewApplier(cfg Config, st Store, pages lead.PageSource, drafter MessageDrafter, submitter codeur.Submitter, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		cfg:       cfg.withDefaults(),
		store:     st,
		pages:     pages,
		drafter:   drafter,
		submitter: submitter,
		logger:    logger,
	}
}

// ApplyAll submits an offer for every NEW lead. One lead's failure never stops the loop.
func (a *Applier) ApplyAll(ctx context.Context) ([]Result, error) {
	leads, err := a.store.List(ctx, store.ListOptions{Status: lead.StatusNew})
	if err != nil {
		return nil, fmt.Errorf("listing new leads: %w", err)
	}

	a.logger.Info("applying to new leads", zap.Int("count", len(leads)))

	results := make([]Result, 0, len(leads))
	for _, l := range leads {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, a.apply(ctx, l))
	}

	submitted := 0
	for _, r := range results {
		if r.Submitted {
			submitted++
		}
	}
	a.logger.Info("finished applying", zap.Int("submitted", submitted), zap.Int("total", len(results)))

	return results, nil
}

// ApplyOne submits an offer for a single NEW lead.
func (a *Applier) ApplyOne(ctx context.Context, reference string) (Result, error) {
	l, err := a.store.Get(ctx, reference)
	if err != nil {
		return Result{Reference: reference}, fmt.Errorf("loading %s: %w", reference, err)
	}
	if l == nil {
		return Result{Reference: reference}, fmt.Errorf("%w: %s", store.ErrNotFound, reference)
	}
	if l.Status != lead.StatusNew {
		return Result{Reference: reference, Status: l.Status}, fmt.Errorf("%w: %s is %s", ErrNotNew, reference, l.Status)
	}
	return a.apply(ctx, l), nil
}

func (a *Applier) apply(ctx context.Context, l *lead.Lead) Result {
	log := a.logger.With(logger.Reference(l.Reference))
	res := Result{Reference: l.Reference, Status: l.Status}

	if l.Note == NoteSubmitted {
		log.Info("offer already submitted, saving the answered status")
		res.Message = NoteSubmitted
		if err := a.store.UpdateStatus(ctx, l.Reference, lead.StatusAnswered); err != nil {
			res.Err = err
			return res
		}
		res.Status = lead.StatusAnswered
		return res
	}

	available, err := a.pages(l.Reference).Available(ctx)
	if err != nil {
		res.Err = fmt.Errorf("checking availability: %w", err)
		res.Message = res.Err.Error()
		a.annotate(ctx, log, l.Reference, res.Message)
		return res
	}
	if !available {
		log.Info("project is not available anymore")
		res.Message = "project is not available"
		if err := a.store.UpdateStatus(ctx, l.Reference, lead.StatusNotAvailable); err != nil {
			res.Err = err
			return res
		}
		res.Status = lead.StatusNotAvailable
		return res
	}

	message, err := a.drafter.Draft(ctx, l.Reference, l.Description)
	if err != nil {
		log.Warn("falling back to default offer message", zap.Error(err))
		message = a.cfg.FallbackMessage
	}

	offer := codeur.Offer{
		ProjectURL:  l.Reference,
		Amount:      l.MinBudget(),
		Duration:    a.cfg.DurationDays,
		Message:     message,
		PricingMode: a.cfg.PricingMode,
		Level:       a.cfg.Level,
	}

	submitted := a.submitter.Submit(ctx, offer)
	res.Message = submitted.Message
	if !submitted.Success {
		log.Warn("offer was not submitted", zap.String("message", submitted.Message))
		a.annotate(ctx, log, l.Reference, submitted.Message)
		return res
	}

	res.Submitted = true
	if err := a.store.UpdateStatus(ctx, l.Reference, lead.StatusAnswered); err != nil {
		log.Error("offer submitted but the status was not saved", zap.Error(err))
		res.Err = err
		a.annotate(ctx, log, l.Reference, NoteSubmitted)
		return res
	}
	res.Status = lead.StatusAnswered

	log.Info("successfully applied to project", zap.Int("amount", offer.Amount))
	return res
}

func (a *Applier) annotate(ctx context.Context, log *zap.Logger, reference, note string) {
	if err := a.store.Annotate(ctx, reference, note); err != nil {
		log.Warn("can't annotate lead", zap.Error(err))
	}
}
