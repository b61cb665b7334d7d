package filtering

import (
	"context"
	"strings"

	"github.com/codeur-agent/codeur-responder/internal/ai"
)

const (
	DefaultSender  = "notification@compte.codeur.com"
	DefaultSubject = "Nouveau projet"
)

// SourceConfig lists the accepted notification senders and subject markers.
type SourceConfig struct {
	Senders  []string `mapstructure:"senders"`
	Subjects []string `mapstructure:"subjects"`
}

// DefaultSourceConfig accepts the marketplace's new project notifications.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{Senders: []string{DefaultSender}, Subjects: []string{DefaultSubject}}
}

type sourceFilter struct {
	senders  []string
	subjects []string
	disabled bool
	reason   string
}

// NewSource creates the filter accepting only project notifications from the marketplace.
// Matching is a case-insensitive substring check on the sender and the subject.
// An empty list skips its half of the check.
func NewSource(cfg SourceConfig) Filter {
	return &sourceFilter{senders: normalizeKeywords(cfg.Senders), subjects: normalizeKeywords(cfg.Subjects)}
}

func (f *sourceFilter) Name() string { return "source" }

func (f *sourceFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *sourceFilter) IsEnabled() bool { return !f.disabled }

func (f *sourceFilter) Validate() error { return nil }

func (f *sourceFilter) Apply(_ context.Context, c Candidate) (ai.Verdict, error) {
	if len(f.senders) > 0 && firstKeyword(strings.ToLower(c.Sender), f.senders) == "" {
		return ai.Reject("unexpected sender"), nil
	}
	if len(f.subjects) > 0 && firstKeyword(strings.ToLower(c.Subject), f.subjects) == "" {
		return ai.Reject("not a project notification"), nil
	}
	return ai.Verdict{Matched: true}, nil
}

func (f *sourceFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{
			"senders":  strings.Join(f.senders, ","),
			"subjects": strings.Join(f.subjects, ","),
		},
	}
}
