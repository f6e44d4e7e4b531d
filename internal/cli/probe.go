package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sdejongh/replisync/pkg/compare"
	"github.com/sdejongh/replisync/pkg/models"
	"github.com/sdejongh/replisync/pkg/output"
	"github.com/sdejongh/replisync/pkg/storage"
	"github.com/sdejongh/replisync/pkg/sync"
)

// NewProbeCommand creates the probe command
func NewProbeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that the remote location is reachable and list it",
		Long: `Verify the remote location can be reached with the configured credentials
and print its entries, marking the candidate sync would compare against.`,
		RunE: runProbe,
	}

	addReplicaFlags(cmd, &syncFlags)

	return cmd
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := prepareConfig(false)
	if err != nil {
		return err
	}

	formatter := output.New(cfg.Output.Format, false)
	if err := formatter.Start(outputWriter(cfg), cfg.Replica.Path, cfg.Remote.Location); err != nil {
		return err
	}

	store, err := newRemoteStore(ctx, cfg, storage.Transfer{FS: afero.NewOsFs()})
	if err != nil {
		return fmt.Errorf("failed to create remote store: %w", err)
	}
	defer store.Close()

	if err := store.Probe(ctx, cfg.Remote.Location); err != nil {
		formatter.Error(err)
		osExit(statusFor(ctx, err).ExitCode())
		return nil
	}

	catalog := sync.NewCatalog(store, cfg.Remote.CandidatePattern)
	records, err := catalog.List(ctx, cfg.Remote.Location)
	if err != nil {
		formatter.Error(err)
		osExit(statusFor(ctx, err).ExitCode())
		return nil
	}

	localName := ""
	if cfg.Replica.Path != "" {
		localName = filepath.Base(cfg.Replica.Path)
	}

	var candidate *models.RemoteReplica
	if c, ok := compare.SelectCandidate(records, localName, cfg.Remote.CandidatePattern); ok {
		candidate = &c
	}

	return formatter.Listing(cfg.Remote.Location, records, candidate)
}
