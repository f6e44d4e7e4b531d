package replica

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"

	"github.com/sdejongh/replisync/pkg/models"
)

// Probe reads existence, modification time and size of the replica at path.
// A missing file is a normal state, not an error.
func Probe(fsys afero.Fs, path string) (models.LocalReplica, error) {
	state := models.LocalReplica{Path: path}

	info, err := fsys.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to stat local replica: %w", err)
	}
	if info.IsDir() {
		return state, fmt.Errorf("local replica %s is a directory", path)
	}

	state.Exists = true
	state.ModTime = models.Epoch(info.ModTime())
	state.Size = info.Size()
	return state, nil
}
