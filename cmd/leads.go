package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/codeur-agent/codeur-responder/internal/lead"
	"github.com/codeur-agent/codeur-responder/internal/logger"
	"github.com/codeur-agent/codeur-responder/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect and manage stored leads",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads, most recently updated first",
	Args:  cobra.NoArgs,
	RunE: withStore(func(ctx context.Context, cmd *cobra.Command, st store.Store, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		rawStatus, _ := cmd.Flags().GetString("status")

		opts := store.ListOptions{Limit: limit}
		if rawStatus != "" {
			status, err := lead.ParseStatus(rawStatus)
			if err != nil {
				return err
			}
			opts.Status = status
		}

		leads, err := st.List(ctx, opts)
		if err != nil {
			return err
		}
		return printJSON(cmd, leads)
	}),
}

var leadsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count leads by status",
	Args:  cobra.NoArgs,
	RunE: withStore(func(ctx context.Context, cmd *cobra.Command, st store.Store, _ []string) error {
		counts := make(map[string]int64, len(lead.Statuses)+1)

		total, err := st.Count(ctx, "")
		if err != nil {
			return err
		}
		counts["total"] = total

		for _, status := range lead.Statuses {
			n, err := st.Count(ctx, status)
			if err != nil {
				return err
			}
			counts[string(status)] = n
		}
		return printJSON(cmd, counts)
	}),
}

var leadsGetCmd = &cobra.Command{
	Use:   "get URL",
	Short: "Show one lead",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(ctx context.Context, cmd *cobra.Command, st store.Store, args []string) error {
		l, err := st.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if l == nil {
			return fmt.Errorf("%w: %s", store.ErrNotFound, args[0])
		}
		return printJSON(cmd, l)
	}),
}

var leadsSetStatusCmd = &cobra.Command{
	Use:   "set-status URL STATUS",
	Short: "Change the status of a lead",
	Args:  cobra.ExactArgs(2),
	RunE: withStore(func(ctx context.Context, cmd *cobra.Command, st store.Store, args []string) error {
		status, err := lead.ParseStatus(args[1])
		if err != nil {
			return err
		}
		if err := st.UpdateStatus(ctx, args[0], status); err != nil {
			return err
		}
		note, _ := cmd.Flags().GetString("note")
		if note != "" {
			return st.Annotate(ctx, args[0], note)
		}
		return nil
	}),
}

var leadsDeleteCmd = &cobra.Command{
	Use:   "delete URL",
	Short: "Delete one lead",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(ctx context.Context, _ *cobra.Command, st store.Store, args []string) error {
		return st.Delete(ctx, args[0])
	}),
}

var leadsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every stored lead",
	Args:  cobra.NoArgs,
	RunE: withStore(func(ctx context.Context, cmd *cobra.Command, st store.Store, _ []string) error {
		autoApprove, _ := cmd.Flags().GetBool("auto-approve")
		if !autoApprove {
			if err := confirm("Delete every stored lead?"); err != nil {
				if errors.Is(err, errExit) {
					return nil
				}
				return err
			}
		}

		n, err := st.DeleteAll(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d lead(s)\n", n)
		return err
	}),
}

func init() {
	rootCmd.AddCommand(leadsCmd)
	leadsCmd.AddCommand(leadsListCmd, leadsCountCmd, leadsGetCmd, leadsSetStatusCmd, leadsDeleteCmd, leadsPurgeCmd)

	leadsListCmd.Flags().IntP("limit", "l", 0, "maximum number of leads to show (0 means all)")
	leadsListCmd.Flags().StringP("status", "s", "", "only show leads with this status")
	leadsSetStatusCmd.Flags().StringP("note", "n", "", "attach a note to the lead")
	leadsPurgeCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation")
}

type storeAction func(ctx context.Context, cmd *cobra.Command, st store.Store, args []string) error

// withStore opens the configured store around a leads subcommand.
func withStore(action storeAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
		if err != nil {
			log.Fatalf("creating a logger: %s", err)
		}
		defer logger.Sync()

		config, err := getConfig()
		if err != nil {
			return fmt.Errorf("getting a config: %w", err)
		}

		st, err := openStore(ctx, config.Store)
		if err != nil {
			return err
		}
		defer func() {
			if err := st.Close(context.Background()); err != nil {
				logger.Warn("closing the store", zap.Error(err))
			}
		}()

		cmd.SilenceUsage = true
		return action(ctx, cmd, st, args)
	}
}
