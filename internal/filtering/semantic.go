package filtering

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/codeur-agent/codeur-responder/internal/ai"
	"github.com/codeur-agent/codeur-responder/internal/logger"
	"github.com/codeur-agent/codeur-responder/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

const (
	systemPrompt        = "You are a strict assistant that qualifies freelance projects and only outputs JSON."
	defaultMaxLogLength = 200
	noProfile           = "No candidate profile."
)

// SemanticConfig configures the inference-backed relevance filter.
type SemanticConfig struct {
	Name    string
	Profile string
	// MinimumScore is applied on top of the boolean verdict; 0 disables it.
	MinimumScore float64
	Timeout      time.Duration
	MaxLogLength int
}

type semanticFilter struct {
	cfg       SemanticConfig
	completer ai.Completer
	logger    *zap.Logger
	disabled  bool
	reason    string
}

// NewSemantic creates a filter asking the inference provider whether the candidate fits the profile.
func NewSemantic(cfg SemanticConfig, completer ai.Completer, logger *zap.Logger) Filter {
	if cfg.Name == "" {
		cfg.Name = "semantic"
	}
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &semanticFilter{cfg: cfg, completer: completer, logger: logger}
}

func (f *semanticFilter) Name() string { return f.cfg.Name }

func (f *semanticFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *semanticFilter) IsEnabled() bool { return !f.disabled }

func (f *semanticFilter) Validate() error {
	if f.completer == nil {
		return errors.New("inference provider is required when the semantic filter is enabled")
	}
	if f.cfg.MinimumScore < 0 || f.cfg.MinimumScore > 1 {
		return errors.New("minimum fit score must be between 0 and 1")
	}
	return nil
}

func (f *semanticFilter) Apply(ctx context.Context, c Candidate) (ai.Verdict, error) {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		return ai.Reject("nothing to evaluate"), nil
	}
	if f.completer == nil {
		return ai.Reject("inference provider is not configured"), nil
	}

	prompt := buildPrompt(f.cfg.Profile, text)
	f.logger.Debug("inference request",
		logger.Reference(c.Reference),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, f.cfg.MaxLogLength)),
	)

	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	data, err := f.completer.CompleteJSON(ctx, ai.Request{SystemPrompt: systemPrompt, UserPrompt: prompt})
	if err != nil {
		f.logger.Warn("AI evaluation failed, rejecting",
			logger.Reference(c.Reference),
			zap.Error(err),
		)
		return ai.Reject("inference failed"), nil
	}

	verdict := ai.ParseVerdict(data)
	if verdict.Matched && verdict.Score != nil && f.cfg.MinimumScore > 0 && *verdict.Score < f.cfg.MinimumScore {
		f.logger.Debug("set match to false by score threshold",
			logger.Reference(c.Reference),
			zap.Float64("score", *verdict.Score),
			zap.Float64("threshold", f.cfg.MinimumScore),
		)
		verdict.Matched = false
	}

	fields := []zap.Field{
		logger.Reference(c.Reference),
		zap.String("filter", f.cfg.Name),
		zap.Float64("ai_score", verdict.ScoreValue()),
		zap.Strings("reasons", verdict.Reasons),
	}
	if verdict.Matched {
		f.logger.Info("project approved by AI", fields...)
	} else {
		f.logger.Info("project rejected by AI", fields...)
	}

	return verdict, nil
}

func (f *semanticFilter) Status() Status {
	details := map[string]string{
		"profile_length": strconv.Itoa(utf8.RuneCountInString(f.cfg.Profile)),
	}
	if f.cfg.MinimumScore > 0 {
		details["minimum_score"] = strconv.FormatFloat(f.cfg.MinimumScore, 'f', 2, 64)
	}
	if f.cfg.Timeout > 0 {
		details["timeout"] = f.cfg.Timeout.String()
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

func buildPrompt(profile, project string) string {
	if strings.TrimSpace(profile) == "" {
		profile = noProfile
	}
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Profile:\n{{PROFILE}}\n\nProject:\n{{PROJECT}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{PROFILE}}", strings.TrimSpace(profile))
	prompt = strings.ReplaceAll(prompt, "{{PROJECT}}", project)
	return prompt
}
