package output

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sdejongh/replisync/pkg/models"
)

// HumanFormatter formats output in human-readable format
type HumanFormatter struct {
	writer   io.Writer
	path     string
	location string
}

// NewHumanFormatter creates a new human-readable formatter
func NewHumanFormatter() *HumanFormatter {
	return &HumanFormatter{}
}

// Start initializes the formatter
func (f *HumanFormatter) Start(writer io.Writer, path, location string) error {
	f.writer = writer
	f.path = path
	f.location = location

	if writer != nil && path != "" {
		fmt.Fprintf(writer, "Syncing %s with %s\n", path, location)
	}
	return nil
}

// Decision prints the planned action
func (f *HumanFormatter) Decision(decision models.SyncDecision) error {
	if f.writer == nil {
		return nil
	}

	fmt.Fprintf(f.writer, "Decision: %s (%s)\n", decision.Action, decision.Reason)
	if decision.Remote != nil {
		fmt.Fprintf(f.writer, "  Remote:  %s\n", describeRecord(*decision.Remote))
	}
	return nil
}

// Listing prints the remote entries, marking the candidate
func (f *HumanFormatter) Listing(location string, records []models.RemoteReplica, candidate *models.RemoteReplica) error {
	if f.writer == nil {
		f.writer = io.Discard
	}

	fmt.Fprintf(f.writer, "Remote %s: %d entries\n", location, len(records))
	for _, r := range records {
		marker := " "
		if candidate != nil && r.ID == candidate.ID {
			marker = "*"
		}
		fmt.Fprintf(f.writer, " %s %s\n", marker, describeRecord(r))
	}
	if candidate == nil {
		fmt.Fprintf(f.writer, "No candidate\n")
	}
	return nil
}

// Complete displays the result summary
func (f *HumanFormatter) Complete(result *models.SyncResult) error {
	if f.writer == nil {
		f.writer = io.Discard
	}

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Sync completed in %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(f.writer, "  Action:   %s\n", result.Action)
	fmt.Fprintf(f.writer, "  Reason:   %s\n", result.Reason)
	fmt.Fprintf(f.writer, "  Replica:  %s\n", result.Path)
	if result.Remote != nil {
		fmt.Fprintf(f.writer, "  Remote:   %s\n", describeRecord(*result.Remote))
	}
	if result.Action != models.ActionNoOp {
		fmt.Fprintf(f.writer, "  Data:     %s\n", humanize.IBytes(uint64(result.BytesTransferred)))
	}
	if result.Fallback {
		fmt.Fprintf(f.writer, "  Installed through shadow copy (replica was locked)\n")
	}
	fmt.Fprintf(f.writer, "\nStatus: %s\n", models.StatusSuccess)
	return nil
}

// Error reports an error
func (f *HumanFormatter) Error(err error) error {
	w := f.writer
	if w == nil {
		w = io.Discard
	}
	if kind := models.KindOf(err); kind != "" {
		fmt.Fprintf(w, "Error [%s]: %v\n", kind, err)
	} else {
		fmt.Fprintf(w, "Error: %v\n", err)
	}
	fmt.Fprintf(w, "Status: %s\n", models.StatusFailed)
	return nil
}

// Name returns the formatter name
func (f *HumanFormatter) Name() string {
	return "human"
}

func describeRecord(r models.RemoteReplica) string {
	modified := "unknown time"
	if r.ModifiedTime > 0 {
		t := models.EpochTime(r.ModifiedTime)
		modified = fmt.Sprintf("%s (%s)", t.UTC().Format(time.RFC3339), humanize.Time(t))
	}
	return fmt.Sprintf("%s  %s  %s", r.Name, humanize.IBytes(uint64(r.Size)), modified)
}
