package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrSyncLocked is returned when another sync holds the replica's lock
var ErrSyncLocked = errors.New("another sync of this replica is running")

const lockSuffix = ".sync.lock"

// lockReplica takes an exclusive, non-blocking lock beside the replica so two
// processes never sync the same file at once. The replica's directory is
// created if needed, since a first sync starts with nothing local.
func lockReplica(replicaPath string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(replicaPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create replica directory: %w", err)
	}
	lock := flock.New(replicaPath + lockSuffix)

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock replica: %w", err)
	}
	if !locked {
		return nil, ErrSyncLocked
	}
	return lock, nil
}
