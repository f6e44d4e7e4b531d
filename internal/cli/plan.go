package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdejongh/replisync/pkg/logging"
	"github.com/sdejongh/replisync/pkg/output"
)

// NewPlanCommand creates the plan command
func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what sync would do without changing anything",
		Long: `Probe the local replica and the remote location and print the decision
sync would take (download, upload or noop) together with its reason.`,
		RunE: runPlan,
	}

	addReplicaFlags(cmd, &syncFlags)

	return cmd
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := prepareConfig(true)
	if err != nil {
		return err
	}

	formatter := output.New(cfg.Output.Format, false)
	if err := formatter.Start(outputWriter(cfg), cfg.Replica.Path, cfg.Remote.Location); err != nil {
		return err
	}

	engine, store, err := buildEngine(ctx, cfg, formatter, logging.NewNullLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	decision, err := engine.Plan(ctx, cfg.Replica.Path, cfg.Remote.Location)
	if err != nil {
		formatter.Error(err)
		osExit(statusFor(ctx, err).ExitCode())
		return nil
	}

	if err := formatter.Decision(decision); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	return nil
}
