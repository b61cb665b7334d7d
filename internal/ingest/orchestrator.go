package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/codeur-agent/codeur-responder/internal/ai"
	"github.com/codeur-agent/codeur-responder/internal/codeur"
	"github.com/codeur-agent/codeur-responder/internal/filtering"
	"github.com/codeur-agent/codeur-responder/internal/lead"
	"github.com/codeur-agent/codeur-responder/internal/logger"
	"github.com/codeur-agent/codeur-responder/internal/mailbox"
)

// Outcome is the terminal state reached by one notification.
type Outcome string

const (
	OutcomeMissingBody  Outcome = "missing_body"
	OutcomeParseFailure Outcome = "parse_failure"
	OutcomeForeign      Outcome = "foreign"
	OutcomeNoReference  Outcome = "no_reference"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeRejected     Outcome = "rejected"
	OutcomeNotAvailable Outcome = "not_available"
	OutcomeAccepted     Outcome = "accepted"
	OutcomeFetchFailed  Outcome = "fetch_failed"
	OutcomeStoreFailed  Outcome = "store_failed"
)

// Mailbox is the notification source.
type Mailbox interface {
	ListUnread(ctx context.Context) ([]uint32, error)
	// Fetch returns nil, nil when the message vanished.
	Fetch(ctx context.Context, id uint32) ([]byte, error)
	MarkSeen(ctx context.Context, id uint32) error
	MoveToLabel(ctx context.Context, id uint32, label string) error
	Delete(ctx context.Context, id uint32) error
}

// Store is the part of the lead store used during ingestion.
type Store interface {
	Get(ctx context.Context, reference string) (*lead.Lead, error)
	Upsert(ctx context.Context, l *lead.Lead) error
}

// Classifier decides whether a notified project is relevant.
type Classifier interface {
	IsMatchedProject(ctx context.Context, reference, notificationText string, describe func(context.Context) (string, error)) (ai.Verdict, error)
}

// Deps groups the collaborators of an Orchestrator.
type Deps struct {
	Mailbox    Mailbox
	Store      Store
	Classifier Classifier
	Source     filtering.Filter
	Pages      lead.PageSource
	Assembler  *lead.Assembler
}

// Report summarizes one ingestion run.
type Report struct {
	Accepted []*lead.Lead
	Outcomes map[Outcome]int
	Errors   []error
}

// Orchestrator drives unread notifications through extraction, dedup,
// classification, assembly and persistence, one at a time.
type Orchestrator struct {
	deps   Deps
	label  string
	logger *zap.Logger
}

// New creates an orchestrator. Accepted notifications are moved to label.
func New(deps Deps, label string, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Mailbox == nil:
		return nil, errors.New("mailbox is required")
	case deps.Store == nil:
		return nil, errors.New("store is required")
	case deps.Classifier == nil:
		return nil, errors.New("classifier is required")
	case deps.Pages == nil:
		return nil, errors.New("page source is required")
	}
	if deps.Source == nil {
		deps.Source = filtering.NewSource(filtering.DefaultSourceConfig())
	}
	if deps.Assembler == nil {
		deps.Assembler = lead.NewAssembler(logger)
	}
	if label == "" {
		label = mailbox.DefaultLabel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, label: label, logger: logger}, nil
}

// Run processes every unread notification in source order. A failure on one
// notification is recorded in the report and never stops the run.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	ids, err := o.deps.Mailbox.ListUnread(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing unread notifications: %w", err)
	}

	o.logger.Info("starting ingestion", zap.Int("unread", len(ids)))

	report := &Report{Accepted: []*lead.Lead{}, Outcomes: make(map[Outcome]int)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome, accepted, err := o.process(ctx, id)
		report.Outcomes[outcome]++
		if accepted != nil {
			report.Accepted = append(report.Accepted, accepted)
		}
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("notification %d: %w", id, err))
			o.logger.Error("notification failed",
				logger.Notification(id),
				logger.Outcome(outcome),
				zap.Error(err),
			)
		}
	}

	o.logger.Info("ingestion finished",
		zap.Int("accepted", len(report.Accepted)),
		zap.Int("errors", len(report.Errors)),
		zap.Any("outcomes", report.Outcomes),
	)

	return report, nil
}

func (o *Orchestrator) process(ctx context.Context, id uint32) (Outcome, *lead.Lead, error) {
	log := o.logger.With(logger.Notification(id))

	raw, err := o.deps.Mailbox.Fetch(ctx, id)
	if err != nil || len(raw) == 0 {
		log.Warn("notification has no body, skipping", zap.Error(err))
		return OutcomeMissingBody, nil, nil
	}

	msg, err := mailbox.Parse(id, raw)
	if err != nil {
		log.Warn("can't parse notification, skipping", zap.Error(err))
		return OutcomeParseFailure, nil, nil
	}

	body := msg.Body()
	if body == "" {
		log.Warn("notification has no body, skipping")
		return OutcomeMissingBody, nil, nil
	}

	source, err := o.deps.Source.Apply(ctx, filtering.Candidate{Sender: msg.Sender, Subject: msg.Subject})
	if err != nil || !source.Matched {
		log.Debug("not a project notification",
			zap.String("sender", msg.Sender),
			zap.String("subject", msg.Subject),
		)
		return OutcomeForeign, nil, nil
	}

	reference, ok := codeur.ExtractReference(body)
	if !ok {
		log.Warn("no project reference in notification, skipping", zap.String("subject", msg.Subject))
		return OutcomeNoReference, nil, nil
	}
	log = log.With(logger.Reference(reference))

	existing, err := o.deps.Store.Get(ctx, reference)
	if err != nil {
		return OutcomeStoreFailed, nil, fmt.Errorf("looking up %s: %w", reference, err)
	}
	if existing != nil {
		log.Info("project already stored", zap.String("status", string(existing.Status)))
		o.markSeen(ctx, log, id)
		return OutcomeDuplicate, nil, nil
	}

	page := o.deps.Pages(reference)

	verdict, err := o.deps.Classifier.IsMatchedProject(ctx, reference, codeur.PlainText(body), page.Description)
	if err != nil {
		return OutcomeFetchFailed, nil, fmt.Errorf("classifying %s: %w", reference, err)
	}
	if !verdict.Matched {
		log.Info("project rejected", zap.Strings("reasons", verdict.Reasons))
		if err := o.deps.Mailbox.Delete(ctx, id); err != nil {
			log.Warn("can't delete notification", zap.Error(err))
		}
		return OutcomeRejected, nil, nil
	}

	l, err := o.deps.Assembler.Assemble(ctx, page)
	if errors.Is(err, lead.ErrNotAvailable) {
		log.Info("project is not available anymore")
		o.markSeen(ctx, log, id)
		return OutcomeNotAvailable, nil, nil
	}
	if err != nil {
		return OutcomeFetchFailed, nil, err
	}

	l.Score = verdict.Score
	l.Reasons = verdict.Reasons

	if err := o.deps.Store.Upsert(ctx, l); err != nil {
		return OutcomeStoreFailed, nil, fmt.Errorf("storing %s: %w", reference, err)
	}

	o.markSeen(ctx, log, id)
	if err := o.deps.Mailbox.MoveToLabel(ctx, id, o.label); err != nil {
		log.Warn("can't move notification", zap.String("label", o.label), zap.Error(err))
	}

	log.Info("project accepted", zap.String("title", l.Title), zap.Ints("budget", l.Budget))
	return OutcomeAccepted, l, nil
}

func (o *Orchestrator) markSeen(ctx context.Context, log *zap.Logger, id uint32) {
	if err := o.deps.Mailbox.MarkSeen(ctx, id); err != nil {
		log.Warn("can't mark notification as seen", zap.Error(err))
	}
}
