package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	httpcmd "github.com/telecarehq/telecare_backend/cmd/http"
	systemcmd "github.com/telecarehq/telecare_backend/cmd/system"
)

var (
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "telecare",
	Short: "Telecare scheduling backend for remote and in-person medical consultations.",
	Long: `Telecare is the backend for a telemedicine platform. It manages the
appointment lifecycle between patients and doctors, delivers appointment
notifications, and opens a messaging channel once a consultation completes.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global config flag, available for all commands.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")

	// Attach top-level command trees.
	rootCmd.AddCommand(systemcmd.NewSystemCommand())
	rootCmd.AddCommand(httpcmd.NewHTTPCommand())
}
