package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sdejongh/replisync/pkg/config"
	"github.com/sdejongh/replisync/pkg/logging"
	"github.com/sdejongh/replisync/pkg/models"
	"github.com/sdejongh/replisync/pkg/output"
	"github.com/sdejongh/replisync/pkg/ratelimit"
	"github.com/sdejongh/replisync/pkg/replica"
	"github.com/sdejongh/replisync/pkg/storage"
	"github.com/sdejongh/replisync/pkg/sync"
)

// osExit is replaced in tests
var osExit = os.Exit

// NewSyncCommand creates the sync command
func NewSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize a local database replica with a remote location",
		Long: `Compare the local replica with the best matching file in the remote location
and bring the older side up to date: download the remote copy, upload the local
one, or do nothing when they already agree.`,
		RunE: runSync,
	}

	addReplicaFlags(cmd, &syncFlags)
	addTransferFlags(cmd, &syncFlags)

	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := prepareConfig(true)
	if err != nil {
		return err
	}

	// Serialize syncs of the same replica across processes
	lock, err := lockReplica(cfg.Replica.Path)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	formatter := output.New(cfg.Output.Format, cfg.Output.Progress)
	if err := formatter.Start(outputWriter(cfg), cfg.Replica.Path, cfg.Remote.Location); err != nil {
		return err
	}

	logger, err := createLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	engine, store, err := buildEngine(ctx, cfg, formatter, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := engine.Synchronize(ctx, cfg.Replica.Path, cfg.Remote.Location)
	if err != nil {
		formatter.Error(err)
		osExit(statusFor(ctx, err).ExitCode())
		return nil
	}

	if err := formatter.Complete(result); err != nil {
		return err
	}

	osExit(models.StatusSuccess.ExitCode())
	return nil
}

// prepareConfig loads the config file and applies the command-line flags
func prepareConfig(needReplica bool) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := applyFlagsToConfig(cfg, &syncFlags); err != nil {
		return nil, err
	}

	if err := validateReplicaConfig(cfg, needReplica); err != nil {
		return nil, err
	}

	return cfg, nil
}

// buildEngine wires the remote store, the replacer and the verifier from cfg
func buildEngine(ctx context.Context, cfg *config.Config, formatter output.Formatter, logger logging.Logger) (*sync.Engine, storage.RemoteStore, error) {
	fsys := afero.NewOsFs()

	transfer := storage.Transfer{
		FS:      fsys,
		Limiter: ratelimit.NewLimiter(cfg.Performance.BandwidthLimit),
	}
	if p, ok := formatter.(*output.ProgressFormatter); ok {
		transfer.Wrap = p.WrapReader
	}

	store, err := newRemoteStore(ctx, cfg, transfer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create remote store: %w", err)
	}

	replacer := replica.NewReplacer(fsys,
		replica.WithSidecars(cfg.Replica.Sidecars),
		replica.WithAttempts(cfg.Replace.Attempts),
		replica.WithBaseDelay(cfg.Replace.BaseDelay),
		replica.WithLogger(logger),
	)

	var verifier replica.Verifier = replica.NopVerifier{}
	if cfg.Replica.VerifyIntegrity {
		verifier = replica.SQLiteVerifier{}
	}

	engine := sync.NewEngine(store,
		sync.WithFS(fsys),
		sync.WithLogger(logger),
		sync.WithReplacer(replacer),
		sync.WithVerifier(verifier),
		sync.WithCandidatePattern(cfg.Remote.CandidatePattern),
	)

	return engine, store, nil
}

// createLogger creates a logger based on configuration
func createLogger(cfg config.LoggingConfig) (logging.Logger, error) {
	if !cfg.Enabled {
		return logging.NewNullLogger(), nil
	}

	// Parse log format
	var format logging.Format
	switch cfg.Format {
	case "json":
		format = logging.FormatJSON
	default:
		format = logging.FormatText
	}

	return logging.New(logging.Config{
		Path:       cfg.File,
		Writer:     os.Stderr,
		Format:     format,
		Level:      logging.ParseLevel(cfg.Level),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
	})
}

// outputWriter returns where formatted results go
func outputWriter(cfg *config.Config) io.Writer {
	if cfg.Output.Quiet && cfg.Output.Format != "json" {
		return io.Discard
	}
	return os.Stdout
}

// statusFor maps a failed call to its exit status
func statusFor(ctx context.Context, err error) models.SyncStatus {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return models.StatusCancelled
	}
	return models.StatusFailed
}
