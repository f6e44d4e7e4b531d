package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sdejongh/replisync/pkg/config"
)

// NewConfigCommand creates the config command
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View or create the replisync configuration file.`,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigInitCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Printf("Replica: %s\n", valueOr(cfg.Replica.Path, "(not set)"))
			fmt.Printf("Sidecars: %v\n", cfg.Replica.Sidecars)
			fmt.Printf("Verify Integrity: %t\n", cfg.Replica.VerifyIntegrity)
			fmt.Printf("Remote Kind: %s\n", cfg.Remote.Kind)
			fmt.Printf("Remote Location: %s\n", valueOr(cfg.Remote.Location, "(not set)"))
			fmt.Printf("Candidate Pattern: %s\n", valueOr(cfg.Remote.CandidatePattern, "(any)"))
			fmt.Printf("Replace Attempts: %d\n", cfg.Replace.Attempts)
			fmt.Printf("Replace Base Delay: %s\n", cfg.Replace.BaseDelay)
			fmt.Printf("Bandwidth Limit: %d B/s\n", cfg.Performance.BandwidthLimit)
			fmt.Printf("Output Format: %s\n", cfg.Output.Format)
			fmt.Printf("Log Format: %s\n", cfg.Logging.Format)
			fmt.Printf("Log Level: %s\n", cfg.Logging.Level)

			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootFlags.ConfigFile
			if path == "" {
				var err error
				if path, err = config.DefaultConfigPath(); err != nil {
					return err
				}
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
			}

			cfg := config.Default()
			if err := config.SaveToFile(cfg, path); err != nil {
				return err
			}

			fmt.Printf("Configuration file created at: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration file")

	return cmd
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
