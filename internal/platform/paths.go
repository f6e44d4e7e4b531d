package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// NormalizePath cleans a path and makes it absolute, preserving UNC prefixes on Windows
func NormalizePath(path string) (string, error) {
	normalized := filepath.Clean(path)

	if runtime.GOOS == "windows" {
		if strings.HasPrefix(path, `\\`) && !strings.HasPrefix(normalized, `\\`) {
			normalized = `\\` + normalized
		}
	}

	if IsUNCPath(normalized) {
		return normalized, nil
	}
	return filepath.Abs(normalized)
}

// IsUNCPath checks if a path is a UNC path (Windows network share)
func IsUNCPath(path string) bool {
	if runtime.GOOS != "windows" {
		return false
	}
	return strings.HasPrefix(path, `\\`) || strings.HasPrefix(path, "//")
}

// ValidateReplicaPath checks that path can name a replica file: non-empty, free of
// characters the platform rejects, and not an existing directory.
func ValidateReplicaPath(path string) error {
	if path == "" {
		return &PathError{Path: path, Message: "path is empty"}
	}

	if runtime.GOOS == "windows" && !IsUNCPath(path) {
		// Skip the drive letter colon
		rest := path
		if len(rest) >= 2 && rest[1] == ':' {
			rest = rest[2:]
		}
		for _, char := range []string{"<", ">", ":", "\"", "|", "?", "*"} {
			if strings.Contains(rest, char) {
				return &PathError{Path: path, Message: "path contains invalid character: " + char}
			}
		}
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return &PathError{Path: path, Message: "path is a directory"}
	}

	return nil
}

// PathError represents a path validation error
type PathError struct {
	Path    string
	Message string
}

func (e *PathError) Error() string {
	return "invalid path '" + e.Path + "': " + e.Message
}
