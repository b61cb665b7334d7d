package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/codeur-agent/codeur-responder/internal/bidding"
	"github.com/codeur-agent/codeur-responder/internal/codeur"
	"github.com/codeur-agent/codeur-responder/internal/lead"
	"github.com/codeur-agent/codeur-responder/internal/logger"
	"github.com/codeur-agent/codeur-responder/internal/store"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var errExit = errors.New("exit requested")

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Submit offers for NEW leads",
	Run: func(cmd *cobra.Command, _ []string) {
		runApply(cmd)
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().StringP("reference", "r", "", "apply only to the lead with this project url")
	applyCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before submitting offers")
}

func runApply(cmd *cobra.Command) {
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

	st, err := openStore(ctx, config.Store)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close(context.Background())

	reference, _ := cmd.Flags().GetString("reference")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")

	count, err := pendingOffers(ctx, st, reference)
	if err != nil {
		logger.Fatal("counting leads", zap.Error(err))
	}
	if count == 0 {
		logger.Info("exiting", zap.String("reason", "no new leads"))
		return
	}

	if !autoApprove {
		if err := confirm(fmt.Sprintf("Submit offers for %d lead(s)?", count)); err != nil {
			if errors.Is(err, errExit) {
				logger.Info("exiting", zap.String("reason", "got no from prompt"))
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}

	applier, err := newApplier(ctx, config, st, logger)
	if err != nil {
		logger.Fatal("preparing offers", zap.Error(err))
	}

	if reference != "" {
		result, err := applier.ApplyOne(ctx, reference)
		if err != nil {
			logger.Fatal("applying to lead", zap.String("reference", reference), zap.Error(err))
		}
		reportResults(logger, []bidding.Result{result})
		return
	}

	results, err := applier.ApplyAll(ctx)
	if err != nil {
		logger.Fatal("applying to leads", zap.Error(err))
	}
	reportResults(logger, results)
}

func pendingOffers(ctx context.Context, st store.Store, reference string) (int64, error) {
	if reference == "" {
		return st.Count(ctx, lead.StatusNew)
	}
	l, err := st.Get(ctx, reference)
	if err != nil {
		return 0, err
	}
	if l == nil {
		return 0, fmt.Errorf("%w: %s", store.ErrNotFound, reference)
	}
	return 1, nil
}

func newApplier(ctx context.Context, config *Config, st store.Store, logger *zap.Logger) (*bidding.Applier, error) {
	submitter, err := codeur.NewOfferSubmitter(config.Apply.BrowserConfig, logger)
	if err != nil {
		return nil, err
	}

	profile, err := loadProfile(config.ProfileFile)
	if err != nil {
		return nil, err
	}

	var drafter bidding.MessageDrafter
	completer, err := newCompleter(ctx, config.AI, logger)
	if err != nil {
		logger.Warn("offer messages will use the fallback message", zap.Error(err))
		drafter = bidding.NewDrafter(nil, profile, config.AI.Timeout, logger)
	} else {
		drafter = bidding.NewDrafter(completer, profile, config.AI.Timeout, logger)
	}

	return bidding.NewApplier(
		config.Apply.Config,
		st,
		newPageSource(config.Crawler, logger),
		drafter,
		submitter,
		logger.Named("apply"),
	), nil
}

func confirm(label string) error {
	prompt := promptui.Select{
		Label: label,
		Items: []string{PromptYes, PromptNo},
	}

	_, action, err := prompt.Run()
	if err != nil {
		return err
	}
	if action != PromptYes {
		return errExit
	}
	return nil
}

func reportResults(logger *zap.Logger, results []bidding.Result) {
	submitted := 0
	for _, r := range results {
		fields := []zap.Field{
			zap.String("reference", r.Reference),
			zap.String("status", string(r.Status)),
			zap.String("message", r.Message),
		}
		if r.Err != nil {
			fields = append(fields, zap.Error(r.Err))
		}
		if r.Submitted {
			submitted++
			logger.Info("offer submitted", fields...)
			continue
		}
		logger.Warn("offer not submitted", fields...)
	}
	logger.Info("done", zap.Int("submitted", submitted), zap.Int("total", len(results)))
}
