package compare

import (
	"fmt"

	"github.com/sdejongh/replisync/pkg/models"
)

// Decide maps the local replica state and the remote candidate (nil when absent)
// to exactly one action.
//
// This is a last-writer-wins heuristic over modification times, with an epoch of 0
// meaning "clock unknown". It can pick the wrong side under concurrent writers or
// skewed clocks.
func Decide(local models.LocalReplica, remote *models.RemoteReplica) models.SyncDecision {
	if remote == nil {
		if local.Exists {
			return models.Upload("remote missing; uploading local replica")
		}
		return models.NoOp("no local or remote replica")
	}

	localEpoch, localSize := local.ModTime, local.Size
	if !local.Exists {
		localEpoch, localSize = 0, 0
	}
	remoteEpoch, remoteSize := remote.ModifiedTime, remote.Size

	switch {
	case remoteEpoch > localEpoch:
		return models.Download(*remote, fmt.Sprintf("remote newer (remote %d > local %d)", remoteEpoch, localEpoch))

	case remoteEpoch == 0 && remoteSize > 0 && remoteSize != localSize:
		return models.Download(*remote, fmt.Sprintf("remote time unknown; sizes differ (remote %d, local %d)", remoteSize, localSize))

	case localEpoch > remoteEpoch && (remoteEpoch > 0 || localSize != remoteSize):
		return models.Upload(fmt.Sprintf("local newer (local %d > remote %d)", localEpoch, remoteEpoch))

	case localEpoch == 0 && localSize > 0 && localSize != remoteSize:
		return models.Upload(fmt.Sprintf("local time unknown; sizes differ (local %d, remote %d)", localSize, remoteSize))
	}

	switch {
	case remoteEpoch == 0 && localSize == remoteSize:
		return models.NoOp("remote time unknown; sizes match")
	case localSize != remoteSize:
		return models.NoOp("same timestamp; no signal to pick a side")
	default:
		return models.NoOp("same timestamp and size")
	}
}
