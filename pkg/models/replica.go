package models

import "time"

// RemoteReplica describes one entry listed in a remote location
type RemoteReplica struct {
	// Name is the entry's file name inside the location
	Name string `json:"name"`

	// ID is the store-specific identifier used to download the entry
	ID string `json:"id"`

	// ModifiedTime is the modification time in epoch seconds, 0 when unknown
	ModifiedTime int64 `json:"modified_time"`

	// Size in bytes
	Size int64 `json:"size"`
}

// LocalReplica is the state of the local replica file observed at sync start
type LocalReplica struct {
	// Path is the absolute path of the replica
	Path string `json:"path"`

	// Exists reports whether the file was present
	Exists bool `json:"exists"`

	// ModTime is the modification time in epoch seconds, 0 when absent
	ModTime int64 `json:"mod_time"`

	// Size in bytes, 0 when absent
	Size int64 `json:"size"`
}

// Epoch truncates t to whole seconds since the Unix epoch.
// The zero time maps to 0 ("unknown").
func Epoch(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	sec := t.Unix()
	if sec < 0 {
		return 0
	}
	return sec
}

// EpochTime converts epoch seconds back to a time; 0 yields the zero time
func EpochTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
