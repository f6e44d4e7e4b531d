package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/sdejongh/replisync/internal/platform"
	"github.com/sdejongh/replisync/pkg/compare"
	"github.com/sdejongh/replisync/pkg/logging"
	"github.com/sdejongh/replisync/pkg/models"
	"github.com/sdejongh/replisync/pkg/replica"
	"github.com/sdejongh/replisync/pkg/storage"
)

// downloadSuffix names the temp file a download lands in, beside the replica
const downloadSuffix = ".download.tmp"

// Engine synchronizes one local replica file with a remote location
type Engine struct {
	store    storage.RemoteStore
	catalog  *Catalog
	fs       afero.Fs
	replacer *replica.Replacer
	verifier replica.Verifier
	pattern  string
	logger   logging.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithFS sets the local filesystem. It must be the one the store writes downloads to.
func WithFS(fsys afero.Fs) Option {
	return func(e *Engine) {
		e.fs = fsys
	}
}

// WithReplacer sets the installer for downloaded files
func WithReplacer(r *replica.Replacer) Option {
	return func(e *Engine) {
		e.replacer = r
	}
}

// WithVerifier checks downloads before they are installed
func WithVerifier(v replica.Verifier) Option {
	return func(e *Engine) {
		e.verifier = v
	}
}

// WithCandidatePattern sets the glob remote names must match to be candidates
func WithCandidatePattern(pattern string) Option {
	return func(e *Engine) {
		e.pattern = pattern
	}
}

// NewEngine creates an engine over an already constructed remote store.
// The caller owns the store and closes it.
func NewEngine(store storage.RemoteStore, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		fs:       afero.NewOsFs(),
		verifier: replica.NopVerifier{},
		pattern:  DefaultCandidatePattern,
		logger:   logging.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.replacer == nil {
		e.replacer = replica.NewReplacer(e.fs, replica.WithLogger(e.logger))
	}
	e.catalog = NewCatalog(store, e.pattern)
	return e
}

// Plan probes both sides and returns the decision without acting on it
func (e *Engine) Plan(ctx context.Context, localPath, location string) (models.SyncDecision, error) {
	path, err := e.resolve(localPath)
	if err != nil {
		return models.SyncDecision{}, err
	}
	_, decision, err := e.decide(ctx, path, location)
	return decision, err
}

// Synchronize reconciles the replica at localPath with location and performs at most
// one download or upload. The local file changes only through an atomic install at
// the end of a download; any earlier failure leaves it untouched.
func (e *Engine) Synchronize(ctx context.Context, localPath, location string) (*models.SyncResult, error) {
	start := time.Now()

	path, err := e.resolve(localPath)
	if err != nil {
		return nil, err
	}

	result := &models.SyncResult{
		ID:        uuid.New().String(),
		Path:      path,
		Location:  location,
		StartTime: start,
	}

	log := e.logger.WithFields(logging.Fields{
		"op_id":    result.ID,
		"path":     path,
		"location": location,
		"store":    e.store.Name(),
	})

	local, decision, err := e.decide(ctx, path, location)
	if err != nil {
		log.Error(ctx, "sync failed before any change", err, nil)
		return nil, err
	}

	result.Action = decision.Action
	result.Reason = decision.Reason
	log.Info(ctx, "sync decision", logging.Fields{"action": string(decision.Action), "reason": decision.Reason})

	switch decision.Action {
	case models.ActionDownload:
		outcome, err := e.download(ctx, log, path, *decision.Remote)
		if err != nil {
			log.Error(ctx, "download failed", err, nil)
			return nil, err
		}
		result.Remote = decision.Remote
		result.BytesTransferred = decision.Remote.Size
		result.Fallback = outcome.Fallback

	case models.ActionUpload:
		record, err := e.store.Upload(ctx, path, location)
		if err != nil {
			err = models.NewSyncError(models.KindTransport, "upload", location, err)
			log.Error(ctx, "upload failed", err, nil)
			return nil, err
		}
		result.Remote = &record
		result.BytesTransferred = local.Size
	}

	result.Duration = time.Since(start)
	log.Info(ctx, "sync complete", logging.Fields{
		"action":   string(result.Action),
		"bytes":    result.BytesTransferred,
		"duration": result.Duration.String(),
	})
	return result, nil
}

func (e *Engine) resolve(localPath string) (string, error) {
	if err := platform.ValidateReplicaPath(localPath); err != nil {
		return "", err
	}
	return platform.NormalizePath(localPath)
}

func (e *Engine) decide(ctx context.Context, path, location string) (models.LocalReplica, models.SyncDecision, error) {
	local, err := replica.Probe(e.fs, path)
	if err != nil {
		return local, models.SyncDecision{}, err
	}

	candidate, err := e.catalog.Candidate(ctx, location, filepath.Base(path))
	if err != nil {
		return local, models.SyncDecision{}, err
	}

	return local, compare.Decide(local, candidate), nil
}

// download fetches remote into a temp file beside path, checks it, stamps the remote
// mtime on it and installs it
func (e *Engine) download(ctx context.Context, log logging.Logger, path string, remote models.RemoteReplica) (replica.Outcome, error) {
	tmp := path + downloadSuffix

	if err := e.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return replica.Outcome{}, fmt.Errorf("failed to create replica directory: %w", err)
	}
	if err := e.fs.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return replica.Outcome{}, fmt.Errorf("failed to remove stale download: %w", err)
	}
	for _, err := range replica.RemoveSidecars(e.fs, tmp, replica.DefaultSidecars) {
		log.Debug(ctx, "failed to remove stale download sidecar", logging.Fields{"error": err.Error()})
	}

	// the temp and any side files a verifier left beside it
	cleanup := func() {
		if err := e.fs.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Debug(ctx, "failed to remove download temp", logging.Fields{"temp": tmp, "error": err.Error()})
		}
		for _, err := range replica.RemoveSidecars(e.fs, tmp, replica.DefaultSidecars) {
			log.Debug(ctx, "failed to remove download sidecar", logging.Fields{"error": err.Error()})
		}
	}

	if err := e.store.Download(ctx, remote.ID, tmp); err != nil {
		cleanup()
		return replica.Outcome{}, models.NewSyncError(models.KindTransport, "download", remote.ID, err)
	}

	info, err := e.fs.Stat(tmp)
	if errors.Is(err, fs.ErrNotExist) {
		return replica.Outcome{}, models.NewSyncError(models.KindMissingSource, "download", tmp, err)
	}
	if err != nil {
		cleanup()
		return replica.Outcome{}, fmt.Errorf("failed to stat download: %w", err)
	}
	if info.Size() == 0 {
		cleanup()
		return replica.Outcome{}, models.NewSyncError(models.KindEmptyContent, "download", remote.ID, nil)
	}

	if err := e.verifier.Verify(ctx, tmp); err != nil {
		cleanup()
		return replica.Outcome{}, err
	}
	for _, err := range replica.RemoveSidecars(e.fs, tmp, replica.DefaultSidecars) {
		log.Debug(ctx, "failed to remove download sidecar", logging.Fields{"error": err.Error()})
	}

	if mtime := models.EpochTime(remote.ModifiedTime); !mtime.IsZero() {
		if err := e.fs.Chtimes(tmp, mtime, mtime); err != nil {
			log.Warn(ctx, "failed to stamp remote mtime on download", logging.Fields{"error": err.Error()})
		}
	}

	outcome, err := e.replacer.Replace(ctx, tmp, path)
	if err != nil {
		cleanup()
		return outcome, err
	}
	return outcome, nil
}
