package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sdejongh/replisync/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cli.Version, cli.Commit, cli.BuildDate = version, commit, date

	rootCmd := &cobra.Command{
		Use:   "replisync",
		Short: "Keep a local SQLite replica in step with a remote copy",
		Long: `replisync synchronizes a single database file between the local disk and a
remote location (a folder, S3, MinIO or Google Drive). Each run picks the newer
side, and downloads are installed atomically even while the database is open.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	cli.AddGlobalFlags(rootCmd)

	// Add commands
	rootCmd.AddCommand(cli.NewSyncCommand())
	rootCmd.AddCommand(cli.NewPlanCommand())
	rootCmd.AddCommand(cli.NewProbeCommand())
	rootCmd.AddCommand(cli.NewConfigCommand())
	rootCmd.AddCommand(cli.NewVersionCommand())

	return rootCmd.Execute()
}
