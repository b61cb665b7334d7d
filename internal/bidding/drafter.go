package bidding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/codeur-agent/codeur-responder/internal/ai"
	"github.com/codeur-agent/codeur-responder/internal/logger"
	"github.com/codeur-agent/codeur-responder/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

const (
	systemPrompt     = "You are a helper responsible for writing offer messages for freelance projects, and can only output JSON."
	noProfile        = "No candidate profile."
	maxMessageLength = 1000
)

// ErrEmptyDraft is returned when the model answered without a usable message.
var ErrEmptyDraft = errors.New("offer message is empty")

type draft struct {
	OfferMessage string `mapstructure:"offer_message"`
}

// Drafter writes offer messages through the inference provider.
type Drafter struct {
	completer ai.Completer
	profile   string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewDrafter creates a drafter for the given candidate profile.
func NewDrafter(completer ai.Completer, profile string, timeout time.Duration, logger *zap.Logger) *Drafter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drafter{completer: completer, profile: profile, timeout: timeout, logger: logger}
}

// Draft returns an offer message tailored to the project description.
func (d *Drafter) Draft(ctx context.Context, reference, description string) (string, error) {
	if d.completer == nil {
		return "", errors.New("inference provider is not configured")
	}
	if strings.TrimSpace(description) == "" {
		return "", errors.New("project description is empty")
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	prompt := buildPrompt(d.profile, description)
	d.logger.Debug("drafting offer message",
		logger.Reference(reference),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, 200)),
	)

	data, err := d.completer.CompleteJSON(ctx, ai.Request{SystemPrompt: systemPrompt, UserPrompt: prompt})
	if err != nil {
		return "", fmt.Errorf("drafting offer message: %w", err)
	}

	var out draft
	if err := mapstructure.WeakDecode(data, &out); err != nil {
		return "", fmt.Errorf("decoding offer message: %w", err)
	}

	message := strings.TrimSpace(out.OfferMessage)
	if message == "" {
		return "", ErrEmptyDraft
	}
	return truncateRunes(message, maxMessageLength), nil
}

func buildPrompt(profile, description string) string {
	if strings.TrimSpace(profile) == "" {
		profile = noProfile
	}
	prompt := strings.ReplaceAll(promptTemplate, "{{PROFILE}}", strings.TrimSpace(profile))
	return strings.ReplaceAll(prompt, "{{PROJECT}}", strings.TrimSpace(description))
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
