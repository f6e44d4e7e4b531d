package replica

import (
	"errors"
	"io/fs"

	"github.com/spf13/afero"
)

// DefaultSidecars are the side files SQLite keeps next to a database
var DefaultSidecars = []string{"-journal", "-wal", "-shm"}

// RemoveSidecars deletes dst+suffix for every suffix. A missing sidecar is fine;
// other failures are returned so the caller can log them, but never abort an install.
func RemoveSidecars(fsys afero.Fs, dst string, suffixes []string) []error {
	var errs []error
	for _, suffix := range suffixes {
		if suffix == "" {
			continue
		}
		err := fsys.Remove(dst + suffix)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errs
}

// ensureWritable clears a read-only attribute on path, if the file exists
func ensureWritable(fsys afero.Fs, path string) error {
	info, err := fsys.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	if mode&0200 != 0 {
		return nil
	}
	return fsys.Chmod(path, mode|0200)
}
