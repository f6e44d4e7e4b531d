package replica

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/afero"

	"github.com/sdejongh/replisync/internal/platform"
	"github.com/sdejongh/replisync/pkg/logging"
	"github.com/sdejongh/replisync/pkg/models"
)

const (
	// DefaultAttempts is the number of atomic rename attempts before the shadow copy fallback
	DefaultAttempts = 8
	// DefaultBaseDelay is the wait after the first failed attempt; it doubles every attempt
	DefaultBaseDelay = 250 * time.Millisecond

	shadowSuffix = ".shadow_copy"
)

// Outcome describes how an install went
type Outcome struct {
	// Attempts is the number of atomic rename attempts made
	Attempts int
	// Fallback is true when the shadow copy path installed the file
	Fallback bool
}

// Replacer installs a fully written temp file over a replica that may be held open
// by a live database engine.
//
// Every attempt invalidates sidecars, clears the read-only bit and renames the temp
// file onto the destination. Lock contention is retried with exponential backoff;
// once attempts run out the bytes are copied to a shadow file beside the destination
// which is then renamed into place. The destination only ever changes by rename.
type Replacer struct {
	fs           afero.Fs
	sidecars     []string
	attempts     int
	baseDelay    time.Duration
	isContention func(error) bool
	logger       logging.Logger
}

// Option configures a Replacer
type Option func(*Replacer)

// WithSidecars sets the suffixes of side files removed before each install
func WithSidecars(suffixes []string) Option {
	return func(r *Replacer) {
		r.sidecars = append([]string(nil), suffixes...)
	}
}

// WithAttempts sets the number of atomic rename attempts
func WithAttempts(n int) Option {
	return func(r *Replacer) {
		r.attempts = n
	}
}

// WithBaseDelay sets the first backoff delay
func WithBaseDelay(d time.Duration) Option {
	return func(r *Replacer) {
		r.baseDelay = d
	}
}

// WithContentionCheck overrides how rename errors are classified as lock contention
func WithContentionCheck(fn func(error) bool) Option {
	return func(r *Replacer) {
		r.isContention = fn
	}
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(r *Replacer) {
		r.logger = l
	}
}

// NewReplacer creates a Replacer working on fsys
func NewReplacer(fsys afero.Fs, opts ...Option) *Replacer {
	r := &Replacer{
		fs:           fsys,
		sidecars:     DefaultSidecars,
		attempts:     DefaultAttempts,
		baseDelay:    DefaultBaseDelay,
		isContention: platform.IsLockContention,
		logger:       logging.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.attempts < 1 {
		r.attempts = 1
	}
	if r.baseDelay < 0 {
		r.baseDelay = 0
	}
	return r
}

// Replace installs src as dst.
//
// A missing or empty src fails immediately without touching dst. Errors other than
// lock contention are returned unchanged. When contention outlasts every attempt and
// the shadow copy also fails, the returned KindReplaceExhausted error wraps the
// original contention error.
func (r *Replacer) Replace(ctx context.Context, src, dst string) (Outcome, error) {
	var out Outcome

	info, err := r.fs.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return out, models.NewSyncError(models.KindMissingSource, "replace", src, err)
	}
	if err != nil {
		return out, fmt.Errorf("failed to stat replace source: %w", err)
	}
	if info.Size() == 0 {
		return out, models.NewSyncError(models.KindEmptyContent, "replace", src, nil)
	}

	log := r.logger.WithFields(logging.Fields{"path": dst})

	operation := func() error {
		out.Attempts++
		r.prepare(ctx, log, dst)

		err := r.fs.Rename(src, dst)
		if err == nil {
			return nil
		}
		if r.isContention(err) {
			return models.NewSyncError(models.KindLockContention, "rename", dst, err)
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, next time.Duration) {
		log.Warn(ctx, "destination locked; retrying", logging.Fields{
			"attempt": out.Attempts,
			"retry_in": next.String(),
			"error":   err.Error(),
		})
	}

	err = backoff.RetryNotify(operation, r.policy(), notify)
	if err == nil {
		log.Debug(ctx, "replica installed", logging.Fields{"attempts": out.Attempts})
		return out, nil
	}
	if !errors.Is(err, models.ErrLockContention) {
		return out, err
	}

	log.Warn(ctx, "rename retries exhausted; installing through shadow copy", logging.Fields{"attempts": out.Attempts})

	if ferr := r.shadowInstall(ctx, log, src, dst); ferr != nil {
		exhausted := models.NewSyncError(models.KindReplaceExhausted, "replace", dst, err)
		exhausted.Fallback = ferr
		return out, exhausted
	}

	out.Fallback = true
	return out, nil
}

// policy doubles the delay from baseDelay for attempts-1 retries, without jitter
func (r *Replacer) policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	maxInterval := r.baseDelay
	for i := 1; i < r.attempts && maxInterval < time.Hour; i++ {
		maxInterval *= 2
	}
	b.MaxInterval = maxInterval

	return backoff.WithMaxRetries(b, uint64(r.attempts-1))
}

// prepare invalidates sidecars and clears the read-only bit; both are best effort
func (r *Replacer) prepare(ctx context.Context, log logging.Logger, dst string) {
	for _, err := range RemoveSidecars(r.fs, dst, r.sidecars) {
		log.Debug(ctx, "failed to remove sidecar", logging.Fields{"error": err.Error()})
	}
	if err := ensureWritable(r.fs, dst); err != nil {
		log.Debug(ctx, "failed to make destination writable", logging.Fields{"error": err.Error()})
	}
}

// shadowInstall copies src next to dst, renames the copy over dst and removes src
func (r *Replacer) shadowInstall(ctx context.Context, log logging.Logger, src, dst string) (err error) {
	shadow := dst + shadowSuffix

	r.prepare(ctx, log, dst)

	defer func() {
		if err != nil {
			r.fs.Remove(shadow)
		}
	}()

	if err := copyFile(r.fs, src, shadow); err != nil {
		return fmt.Errorf("failed to write shadow copy: %w", err)
	}
	if err := r.fs.Rename(shadow, dst); err != nil {
		return fmt.Errorf("failed to rename shadow copy: %w", err)
	}

	if err := r.fs.Remove(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn(ctx, "failed to remove replace source after shadow install", logging.Fields{"source": src, "error": err.Error()})
	}
	return nil
}

// copyFile writes a durable byte-for-byte copy of src at dst, keeping src's mode and mtime
func copyFile(fsys afero.Fs, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()|0200)
	if err != nil {
		return err
	}

	written, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return err
	}
	if written != info.Size() {
		out.Close()
		return fmt.Errorf("incomplete copy: expected %d bytes, wrote %d", info.Size(), written)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return fsys.Chtimes(dst, info.ModTime(), info.ModTime())
}
