package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codeur-agent/codeur-responder/internal/codeur"
)

const defaultStorageState = "storage_state.json"

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the authenticated browser session used to submit offers",
}

var sessionImportCmd = &cobra.Command{
	Use:   "import COOKIES.json",
	Short: "Convert a browser cookie export into a Playwright storage state file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading cookie export: %w", err)
		}

		state, err := codeur.ConvertCookies(raw)
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = storageStatePath()
		}

		if err := os.WriteFile(output, state, 0o600); err != nil {
			return fmt.Errorf("writing storage state: %w", err)
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "storage state written to %s\n", output)
		return err
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionImportCmd)

	sessionImportCmd.Flags().StringP("output", "o", "", "storage state file (default is apply.storage-state)")
}

func storageStatePath() string {
	config, err := getConfig()
	if err != nil || config.Apply.StorageState == "" {
		return defaultStorageState
	}
	return config.Apply.StorageState
}
