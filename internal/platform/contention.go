package platform

import (
	"errors"
	"io/fs"
)

// IsLockContention reports whether err means the target file is held by another
// process (a live database engine, an antivirus scanner, a sync client) and the
// operation may succeed if retried later.
func IsLockContention(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrPermission) {
		return true
	}
	return isBusy(err)
}
