package models

import (
	"errors"
	"strings"
)

// ErrorKind classifies sync failures.
// Kinds are strings so they read well in logs and JSON output.
type ErrorKind string

const (
	// KindMissingSource means the file to install was absent
	KindMissingSource ErrorKind = "MISSING_SOURCE"

	// KindEmptyContent means the downloaded file had zero bytes
	KindEmptyContent ErrorKind = "EMPTY_CONTENT"

	// KindCorruptContent means the downloaded file failed integrity verification
	KindCorruptContent ErrorKind = "CORRUPT_CONTENT"

	// KindLockContention means the destination is held by another process
	KindLockContention ErrorKind = "LOCK_CONTENTION"

	// KindTransport means a remote list, upload or download failed
	KindTransport ErrorKind = "TRANSPORT"

	// KindReplaceExhausted means contention retries and the shadow copy fallback both failed
	KindReplaceExhausted ErrorKind = "REPLACE_EXHAUSTED"
)

// Sentinels for errors.Is matching by kind
var (
	ErrMissingSource    = &SyncError{Kind: KindMissingSource}
	ErrEmptyContent     = &SyncError{Kind: KindEmptyContent}
	ErrCorruptContent   = &SyncError{Kind: KindCorruptContent}
	ErrLockContention   = &SyncError{Kind: KindLockContention}
	ErrTransport        = &SyncError{Kind: KindTransport}
	ErrReplaceExhausted = &SyncError{Kind: KindReplaceExhausted}
)

// SyncError is a classified failure of the sync core
type SyncError struct {
	Kind ErrorKind
	// Op is the operation that failed (list, upload, download, rename, ...)
	Op string
	// Path is the local path or remote location involved
	Path string
	// Err is the underlying cause
	Err error
	// Fallback holds the shadow copy failure for KindReplaceExhausted.
	// Err still carries the original contention error.
	Fallback error
}

// NewSyncError creates a classified error
func NewSyncError(kind ErrorKind, op, path string, err error) *SyncError {
	return &SyncError{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *SyncError) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " ")))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Fallback != nil {
		b.WriteString(" (shadow copy: ")
		b.WriteString(e.Fallback.Error())
		b.WriteString(")")
	}
	return b.String()
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is matches any *SyncError of the same kind
func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the core retries this kind internally
func (e *SyncError) Retryable() bool {
	return e.Kind == KindLockContention
}

// KindOf returns the kind of the outermost SyncError in err's chain, or "" if none
func KindOf(err error) ErrorKind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
