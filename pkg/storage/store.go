package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/afero"

	"github.com/sdejongh/replisync/pkg/models"
	"github.com/sdejongh/replisync/pkg/ratelimit"
)

// RemoteStore is the remote side of a replica: a folder-like location holding
// database files. Implementations include a plain directory, S3, MinIO and Google Drive.
type RemoteStore interface {
	// Name identifies the store kind in logs
	Name() string

	// List returns the non-trashed files directly inside location, newest first
	List(ctx context.Context, location string) ([]models.RemoteReplica, error)

	// Upload creates or replaces the file named after localPath's base name in location.
	// The local modification time is carried over to the remote record where possible.
	Upload(ctx context.Context, localPath, location string) (models.RemoteReplica, error)

	// Download writes the remote file's bytes to destPath, replacing it
	Download(ctx context.Context, id, destPath string) error

	// Probe checks that location is reachable
	Probe(ctx context.Context, location string) error

	// Close releases any resources held by the store
	Close() error
}

// ReaderWrapper decorates a transfer stream, for progress reporting. The returned
// func is called once the transfer ends.
type ReaderWrapper func(ctx context.Context, name string, size int64, r io.Reader) (io.Reader, func())

// Transfer holds the local filesystem and the hooks applied to every byte stream a store moves
type Transfer struct {
	// FS is the local filesystem; the OS filesystem when nil
	FS afero.Fs
	// Limiter throttles transfers; nil means unlimited
	Limiter *ratelimit.Limiter
	// Wrap decorates streams; nil means no decoration
	Wrap ReaderWrapper
}

func (t Transfer) fs() afero.Fs {
	if t.FS == nil {
		return afero.NewOsFs()
	}
	return t.FS
}

// reader applies the wrapper and the limiter to r
func (t Transfer) reader(ctx context.Context, name string, size int64, r io.Reader) (io.Reader, func()) {
	done := func() {}
	if t.Wrap != nil {
		r, done = t.Wrap(ctx, name, size, r)
	}
	if t.Limiter != nil {
		r = ratelimit.NewReader(ctx, r, t.Limiter)
	}
	return r, done
}

// receive streams r into destPath and syncs it. size < 0 means unknown.
// A partially written file is removed on failure.
func (t Transfer) receive(ctx context.Context, name string, size int64, r io.Reader, destPath string) error {
	fsys := t.fs()

	file, err := fsys.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	body, done := t.reader(ctx, name, size, r)
	written, err := io.Copy(file, body)
	done()

	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("incomplete download: expected %d bytes, wrote %d", size, written)
	}
	if err == nil {
		err = file.Sync()
	}
	if cerr := file.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		fsys.Remove(destPath)
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	return nil
}

// openLocal opens a local file for upload
func (t Transfer) openLocal(localPath string) (afero.File, os.FileInfo, error) {
	file, err := t.fs().Open(localPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open local replica: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat local replica: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, nil, fmt.Errorf("local replica %s is a directory", localPath)
	}
	return file, info, nil
}

// sortNewestFirst orders records by modification time, keeping listing order on ties
func sortNewestFirst(records []models.RemoteReplica) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ModifiedTime > records[j].ModifiedTime
	})
}
