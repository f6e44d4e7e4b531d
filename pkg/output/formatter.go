package output

import (
	"io"

	"github.com/sdejongh/replisync/pkg/models"
)

// Formatter defines the interface for output formatting
// Implementations include human-readable, JSON and progress-bar formatters
type Formatter interface {
	// Start initializes the formatter for one sync call
	Start(writer io.Writer, path, location string) error

	// Decision reports the reconciliation outcome before it runs
	Decision(decision models.SyncDecision) error

	// Listing reports a remote catalog and the candidate chosen from it (nil when none)
	Listing(location string, records []models.RemoteReplica, candidate *models.RemoteReplica) error

	// Complete finalizes output and displays the result
	Complete(result *models.SyncResult) error

	// Error reports a failed call
	Error(err error) error

	// Name returns the formatter name
	Name() string
}

// New returns the formatter for the given output format
func New(format string, progress bool) Formatter {
	switch {
	case format == "json":
		return NewJSONFormatter()
	case progress:
		return NewProgressFormatter()
	default:
		return NewHumanFormatter()
	}
}
