package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/codeur-agent/codeur-responder/internal/ai"
	"github.com/codeur-agent/codeur-responder/internal/ai/gemini"
	"github.com/codeur-agent/codeur-responder/internal/ai/ollama"
	"github.com/codeur-agent/codeur-responder/internal/codeur"
	"github.com/codeur-agent/codeur-responder/internal/crawler"
	"github.com/codeur-agent/codeur-responder/internal/filtering"
	"github.com/codeur-agent/codeur-responder/internal/lead"
	"github.com/codeur-agent/codeur-responder/internal/mailbox"
	"github.com/codeur-agent/codeur-responder/internal/secrets"
	"github.com/codeur-agent/codeur-responder/internal/store"
)

func loadProfile(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading profile file %q: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func newCompleter(ctx context.Context, cfg AIConfig, logger *zap.Logger) (ai.Completer, error) {
	switch provider := strings.TrimSpace(strings.ToLower(cfg.Provider)); provider {
	case "", "ollama":
		return ollama.New(cfg.Ollama, logger)
	case "gemini":
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.Gemini.APIKey,
			Env:   "GEMINI_API_KEY",
			File:  cfg.Gemini.APIKeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
		}

		genLogger := logger.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries))
		return gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

func newClassifier(config *Config, completer ai.Completer, logger *zap.Logger) (*filtering.Classifier, error) {
	profile, err := loadProfile(config.ProfileFile)
	if err != nil {
		return nil, err
	}

	matching := config.Matching
	matching.Profile = profile
	matching.Timeout = config.AI.Timeout

	classifier, err := filtering.NewClassifier(matching, completer, logger)
	if err != nil {
		return nil, err
	}

	for _, status := range filtering.Describe(classifier.Filters()) {
		logger.Debug("filter configured",
			zap.String("filter", status.Name),
			zap.Bool("enabled", status.Enabled),
			zap.Any("details", status.Details),
		)
	}

	return classifier, nil
}

// newPageSource builds a fresh crawler per reference; robots rules are shared for the whole run.
func newPageSource(cfg crawler.Config, logger *zap.Logger) lead.PageSource {
	robots := crawler.NewRobotsCache()
	return func(reference string) lead.Page {
		return codeur.NewProjectPage(crawler.New(cfg, robots, logger), reference)
	}
}

func dialMailbox(ctx context.Context, cfg mailbox.Config, logger *zap.Logger) (*mailbox.IMAP, error) {
	password, err := secrets.Load(secrets.Source{
		Name:  "mail password",
		Value: cfg.Password,
		Env:   "CODEUR_MAIL_PASSWORD",
		File:  cfg.PasswordFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set mail.password-file or CODEUR_MAIL_PASSWORD)", err)
	}
	cfg.Password = password

	return mailbox.Dial(ctx, cfg, logger.Named("mailbox"))
}

func openStore(ctx context.Context, cfg store.Config) (store.Store, error) {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Driver, err)
	}
	return st, nil
}
