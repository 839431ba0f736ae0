package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via ldflags.
	// Example: go build -ldflags "-X github.com/asad/accountd/internal/cli.Version=1.0.0"
	Version = "dev"
)

// NewRootCmd builds the accountd command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "accountd",
		Short: "Per-user account data store",
		Long: `accountd keeps one structured account record per user.

Reading a user that has no record yet creates and persists a default record.
Updating a record replaces it wholesale and publishes an account-updated event.`,
		SilenceUsage: true,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "accountd version %s\n", Version)
		},
	}

	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newSetCmd())
	rootCmd.AddCommand(versionCmd)
	return rootCmd
}

// Execute is the entry point for the CLI. It should be called from main.go.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
