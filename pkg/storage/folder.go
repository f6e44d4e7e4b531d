package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sdejongh/replisync/pkg/models"
)

// FolderStore is a filesystem-based remote: a directory on a mounted share,
// a synced cloud folder or a second disk
type FolderStore struct {
	transfer Transfer
}

// NewFolderStore creates a new folder store
func NewFolderStore(t Transfer) *FolderStore {
	return &FolderStore{transfer: t}
}

// Name identifies the store kind
func (f *FolderStore) Name() string {
	return "folder"
}

// List returns the regular files directly inside location, newest first
func (f *FolderStore) List(ctx context.Context, location string) ([]models.RemoteReplica, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(f.transfer.fs(), location)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder: %w", err)
	}

	records := make([]models.RemoteReplica, 0, len(entries))
	for _, info := range entries {
		if !info.Mode().IsRegular() {
			continue
		}
		records = append(records, models.RemoteReplica{
			Name:         info.Name(),
			ID:           filepath.Join(location, info.Name()),
			ModifiedTime: models.Epoch(info.ModTime()),
			Size:         info.Size(),
		})
	}

	sortNewestFirst(records)
	return records, nil
}

// Upload copies localPath into location through a temp file and a rename,
// preserving the modification time
func (f *FolderStore) Upload(ctx context.Context, localPath, location string) (models.RemoteReplica, error) {
	fsys := f.transfer.fs()

	src, info, err := f.transfer.openLocal(localPath)
	if err != nil {
		return models.RemoteReplica{}, err
	}
	defer src.Close()

	name := filepath.Base(localPath)
	fullPath := filepath.Join(location, name)
	tmpPath := filepath.Join(location, "."+name+".upload.tmp")

	if err := f.transfer.receive(ctx, name, info.Size(), src, tmpPath); err != nil {
		return models.RemoteReplica{}, err
	}

	// Preserve modification time
	if err := fsys.Chtimes(tmpPath, info.ModTime(), info.ModTime()); err != nil {
		fsys.Remove(tmpPath)
		return models.RemoteReplica{}, fmt.Errorf("failed to set modification time: %w", err)
	}

	if err := fsys.Rename(tmpPath, fullPath); err != nil {
		fsys.Remove(tmpPath)
		return models.RemoteReplica{}, fmt.Errorf("failed to install uploaded file: %w", err)
	}

	return models.RemoteReplica{
		Name:         name,
		ID:           fullPath,
		ModifiedTime: models.Epoch(info.ModTime()),
		Size:         info.Size(),
	}, nil
}

// Download copies the file at id to destPath
func (f *FolderStore) Download(ctx context.Context, id, destPath string) error {
	file, err := f.transfer.fs().Open(id)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	return f.transfer.receive(ctx, filepath.Base(id), info.Size(), file, destPath)
}

// Probe checks that location exists and is a directory
func (f *FolderStore) Probe(ctx context.Context, location string) error {
	info, err := f.transfer.fs().Stat(location)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("folder %s does not exist", location)
	}
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", location)
	}
	return nil
}

// Close releases resources (no-op for the filesystem)
func (f *FolderStore) Close() error {
	return nil
}

var _ RemoteStore = (*FolderStore)(nil)
