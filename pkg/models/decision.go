package models

import "time"

// Action is what a sync call does with the replicas
type Action string

const (
	// ActionDownload replaces the local replica with the remote candidate
	ActionDownload Action = "download"
	// ActionUpload pushes the local replica to the remote location
	ActionUpload Action = "upload"
	// ActionNoOp leaves both replicas untouched
	ActionNoOp Action = "noop"
)

// SyncDecision is the outcome of reconciling the local state with the remote candidate.
// Remote is set only for ActionDownload.
type SyncDecision struct {
	Action Action         `json:"action"`
	Remote *RemoteReplica `json:"remote,omitempty"`
	Reason string         `json:"reason"`
}

// Download builds a download decision for the given candidate
func Download(remote RemoteReplica, reason string) SyncDecision {
	return SyncDecision{Action: ActionDownload, Remote: &remote, Reason: reason}
}

// Upload builds an upload decision
func Upload(reason string) SyncDecision {
	return SyncDecision{Action: ActionUpload, Reason: reason}
}

// NoOp builds a decision that does nothing
func NoOp(reason string) SyncDecision {
	return SyncDecision{Action: ActionNoOp, Reason: reason}
}

// SyncResult is returned to the caller after a sync call
type SyncResult struct {
	// ID identifies this sync call in logs and output
	ID string `json:"id"`

	Action Action `json:"action"`
	Reason string `json:"reason"`
	Path   string `json:"path"`

	// Location is the remote location handle the call ran against
	Location string `json:"location"`

	// Remote is the remote record involved in the transfer, if any.
	// For uploads it is the record returned by the store.
	Remote *RemoteReplica `json:"remote,omitempty"`

	// BytesTransferred counts the bytes downloaded or uploaded
	BytesTransferred int64 `json:"bytes_transferred"`

	// Fallback is set when a download was installed through the shadow copy path
	Fallback bool `json:"fallback,omitempty"`

	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
}

// SyncStatus represents the overall result of a command
type SyncStatus string

const (
	// StatusSuccess indicates the sync completed
	StatusSuccess SyncStatus = "success"
	// StatusFailed indicates the sync failed
	StatusFailed SyncStatus = "failed"
	// StatusCancelled indicates the run was interrupted
	StatusCancelled SyncStatus = "cancelled"
)

// ExitCode returns the process exit code for the status
func (s SyncStatus) ExitCode() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusFailed:
		return 2
	case StatusCancelled:
		return 3
	default:
		return 2
	}
}
