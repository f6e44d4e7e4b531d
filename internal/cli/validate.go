package cli

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/sdejongh/replisync/internal/platform"
	"github.com/sdejongh/replisync/pkg/config"
)

// loadConfig loads configuration from file or returns default
func loadConfig() (*config.Config, error) {
	if rootFlags.ConfigFile != "" {
		return config.LoadFromFile(rootFlags.ConfigFile)
	}
	return config.LoadDefault()
}

// applyFlagsToConfig overrides config values with command-line flags
func applyFlagsToConfig(cfg *config.Config, f *SyncFlags) error {
	if f.DB != "" {
		cfg.Replica.Path = f.DB
	}
	if f.Remote != "" {
		cfg.Remote.Kind = f.Remote
	}
	if f.Location != "" {
		cfg.Remote.Location = f.Location
	}
	if f.Pattern != "" {
		cfg.Remote.CandidatePattern = f.Pattern
	}
	if f.Verify {
		cfg.Replica.VerifyIntegrity = true
	}

	if f.Bandwidth != "" {
		limit, err := parseBandwidth(f.Bandwidth)
		if err != nil {
			return err
		}
		cfg.Performance.BandwidthLimit = limit
	}

	// Output format
	if f.Output != "" {
		cfg.Output.Format = f.Output
	}
	if f.Progress {
		cfg.Output.Progress = true
	}

	// Logging
	if f.LogFile != "" {
		cfg.Logging.Enabled = true
		cfg.Logging.File = f.LogFile
	}
	if f.LogFormat != "" {
		cfg.Logging.Format = f.LogFormat
	}
	if f.LogLevel != "" {
		cfg.Logging.Level = f.LogLevel
	}

	if rootFlags.Quiet {
		cfg.Output.Quiet = true
	}
	if cfg.Output.Quiet {
		cfg.Output.Progress = false
	}

	if rootFlags.Verbose {
		cfg.Output.Progress = true
		cfg.Logging.Enabled = true
		if f.LogLevel == "" {
			cfg.Logging.Level = "debug"
		}
	}

	return cfg.Validate()
}

// validateReplicaConfig checks the settings every command needs
func validateReplicaConfig(cfg *config.Config, needReplica bool) error {
	if needReplica {
		if cfg.Replica.Path == "" {
			return fmt.Errorf("no replica path: use --db or set replica.path in the config file")
		}
		if err := platform.ValidateReplicaPath(cfg.Replica.Path); err != nil {
			return err
		}
	}

	if cfg.Remote.Location == "" && cfg.Remote.Kind != config.RemoteS3 && cfg.Remote.Kind != config.RemoteMinio {
		return fmt.Errorf("no remote location: use --location or set remote.location in the config file")
	}

	if cfg.Remote.Kind == config.RemoteFolder {
		info, err := os.Stat(cfg.Remote.Location)
		if os.IsNotExist(err) {
			return fmt.Errorf("remote folder does not exist: %s", cfg.Remote.Location)
		} else if err != nil {
			return fmt.Errorf("failed to access remote folder: %w", err)
		} else if !info.IsDir() {
			return fmt.Errorf("remote folder exists but is not a directory: %s", cfg.Remote.Location)
		}
	}

	return nil
}

// parseBandwidth parses a limit such as "512K", "10M" or "1GiB" into bytes per second
func parseBandwidth(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth limit %q: %w", s, err)
	}
	return int64(n), nil
}
