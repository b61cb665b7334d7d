package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/codeur-agent/codeur-responder/internal/filtering"
	"github.com/codeur-agent/codeur-responder/internal/ingest"
	"github.com/codeur-agent/codeur-responder/internal/lead"
	"github.com/codeur-agent/codeur-responder/internal/logger"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Qualify unread project notifications and store the matching projects",
	Run: func(cmd *cobra.Command, _ []string) {
		runIngest(cmd)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the ingestion", zap.String("version", buildVersion()))

	report, err := ingestNotifications(ctx, config, logger)
	if err != nil {
		logger.Fatal("ingestion failed", zap.Error(err))
	}

	if err := printJSON(cmd, summarize(report)); err != nil {
		logger.Fatal("printing the report", zap.Error(err))
	}
}

type ingestSummary struct {
	Accepted []*lead.Lead           `json:"accepted"`
	Outcomes map[ingest.Outcome]int `json:"outcomes"`
	Errors   []string               `json:"errors,omitempty"`
}

func summarize(report *ingest.Report) ingestSummary {
	summary := ingestSummary{Accepted: report.Accepted, Outcomes: report.Outcomes}
	for _, err := range report.Errors {
		summary.Errors = append(summary.Errors, err.Error())
	}
	return summary
}

func ingestNotifications(ctx context.Context, config *Config, logger *zap.Logger) (*ingest.Report, error) {
	completer, err := newCompleter(ctx, config.AI, logger)
	if err != nil {
		return nil, fmt.Errorf("building inference client: %w", err)
	}

	classifier, err := newClassifier(config, completer, logger)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, config.Store)
	if err != nil {
		return nil, err
	}
	defer st.Close(context.Background())

	box, err := dialMailbox(ctx, config.Mail, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := box.Close(); err != nil {
			logger.Warn("closing mailbox", zap.Error(err))
		}
	}()

	orchestrator, err := ingest.New(ingest.Deps{
		Mailbox:    box,
		Store:      st,
		Classifier: classifier,
		Source: filtering.NewSource(filtering.SourceConfig{
			Senders:  config.Mail.Senders,
			Subjects: config.Mail.Subjects,
		}),
		Pages:     newPageSource(config.Crawler, logger),
		Assembler: lead.NewAssembler(logger),
	}, config.Mail.Label, logger.Named("ingest"))
	if err != nil {
		return nil, err
	}

	return orchestrator.Run(ctx)
}

func printJSON(cmd *cobra.Command, v any) error {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
	return err
}
