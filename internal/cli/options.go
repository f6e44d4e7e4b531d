package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdejongh/replisync/pkg/config"
)

// RootFlags are the persistent flags every command sees. Quiet and Verbose are
// folded into the output and logging sections by applyFlagsToConfig.
type RootFlags struct {
	ConfigFile string
	Verbose    bool
	Quiet      bool
}

var rootFlags RootFlags

// AddGlobalFlags registers the persistent flags on the root command
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&rootFlags.ConfigFile, "config", "",
		fmt.Sprintf("config file (default $%s, then ~/.config/replisync/config.yaml)", config.EnvConfigPath))
	cmd.PersistentFlags().BoolVarP(&rootFlags.Verbose, "verbose", "v", false, "log at debug level to stderr and show progress")
	cmd.PersistentFlags().BoolVarP(&rootFlags.Quiet, "quiet", "q", false, "print nothing but errors (same as output.quiet)")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

// SyncFlags holds the flags shared by sync, plan and probe
type SyncFlags struct {
	DB        string
	Remote    string
	Location  string
	Pattern   string
	Verify    bool
	Bandwidth string
	Output    string
	Progress  bool
	// Logging flags
	LogFile   string
	LogFormat string
	LogLevel  string
}

var syncFlags SyncFlags

// addReplicaFlags registers the flags naming the replica pair
func addReplicaFlags(cmd *cobra.Command, f *SyncFlags) {
	cmd.Flags().StringVarP(&f.DB, "db", "d", "", "local replica path (default: replica.path from config)")
	cmd.Flags().StringVarP(&f.Remote, "remote", "r", "", "remote kind: folder, s3, minio, gdrive")
	cmd.Flags().StringVarP(&f.Location, "location", "l", "", "remote location: directory, key prefix or Drive folder id")
	cmd.Flags().StringVar(&f.Pattern, "pattern", "", "glob remote names must match to be candidates (default \"*.db\")")
	cmd.Flags().StringVarP(&f.Output, "output", "o", "", "output format: human, json")
}

// addTransferFlags registers flags that only matter when bytes move
func addTransferFlags(cmd *cobra.Command, f *SyncFlags) {
	cmd.Flags().BoolVar(&f.Verify, "verify", false, "run an SQLite integrity check on downloads before installing them")
	cmd.Flags().StringVarP(&f.Bandwidth, "bandwidth", "b", "", "bandwidth limit (e.g., \"10M\", \"1G\")")
	cmd.Flags().BoolVar(&f.Progress, "progress", false, "show transfer progress bars")

	// Logging flags
	cmd.Flags().StringVar(&f.LogFile, "log-file", "", "write logs to file (enables logging)")
	cmd.Flags().StringVar(&f.LogFormat, "log-format", "", "log format: text, json")
	cmd.Flags().StringVar(&f.LogLevel, "log-level", "", "log level: debug, info, warn, error")
}
