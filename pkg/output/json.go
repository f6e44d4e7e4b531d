package output

import (
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/sdejongh/replisync/pkg/models"
)

// JSONFormatter formats output as JSON for automation and scripting
type JSONFormatter struct {
	writer    io.Writer
	path      string
	location  string
	startTime time.Time
}

// JSONDecisionData represents a planned action
type JSONDecisionData struct {
	Path     string                `json:"path"`
	Location string                `json:"location"`
	Action   string                `json:"action"`
	Reason   string                `json:"reason"`
	Remote   *models.RemoteReplica `json:"remote,omitempty"`
}

// JSONListingData represents a remote catalog
type JSONListingData struct {
	Location  string                 `json:"location"`
	Entries   []models.RemoteReplica `json:"entries"`
	Candidate *models.RemoteReplica  `json:"candidate"`
}

// JSONReportData represents the final report data
type JSONReportData struct {
	Status           string                `json:"status"`
	ID               string                `json:"id,omitempty"`
	Action           string                `json:"action,omitempty"`
	Reason           string                `json:"reason,omitempty"`
	Path             string                `json:"path,omitempty"`
	Location         string                `json:"location,omitempty"`
	Remote           *models.RemoteReplica `json:"remote,omitempty"`
	BytesTransferred int64                 `json:"bytes_transferred"`
	Fallback         bool                  `json:"fallback,omitempty"`
	Duration         string                `json:"duration,omitempty"`
	DurationMs       int64                 `json:"duration_ms"`
	ErrorKind        string                `json:"error_kind,omitempty"`
	Error            string                `json:"error,omitempty"`
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Start initializes the formatter; nothing is written until the end
func (f *JSONFormatter) Start(writer io.Writer, path, location string) error {
	if writer == nil {
		writer = os.Stdout
	}
	f.writer = writer
	f.path = path
	f.location = location
	f.startTime = time.Now()
	return nil
}

// Decision writes the planned action
func (f *JSONFormatter) Decision(decision models.SyncDecision) error {
	return f.encode(JSONDecisionData{
		Path:     f.path,
		Location: f.location,
		Action:   string(decision.Action),
		Reason:   decision.Reason,
		Remote:   decision.Remote,
	})
}

// Listing writes the remote catalog
func (f *JSONFormatter) Listing(location string, records []models.RemoteReplica, candidate *models.RemoteReplica) error {
	if records == nil {
		records = []models.RemoteReplica{}
	}
	return f.encode(JSONListingData{Location: location, Entries: records, Candidate: candidate})
}

// Complete writes the result as a single JSON object
func (f *JSONFormatter) Complete(result *models.SyncResult) error {
	return f.encode(JSONReportData{
		Status:           string(models.StatusSuccess),
		ID:               result.ID,
		Action:           string(result.Action),
		Reason:           result.Reason,
		Path:             result.Path,
		Location:         result.Location,
		Remote:           result.Remote,
		BytesTransferred: result.BytesTransferred,
		Fallback:         result.Fallback,
		Duration:         result.Duration.Round(time.Millisecond).String(),
		DurationMs:       result.Duration.Milliseconds(),
	})
}

// Error writes a failure report
func (f *JSONFormatter) Error(err error) error {
	var duration time.Duration
	if !f.startTime.IsZero() {
		duration = time.Since(f.startTime)
	}
	return f.encode(JSONReportData{
		Status:     string(models.StatusFailed),
		Path:       f.path,
		Location:   f.location,
		DurationMs: duration.Milliseconds(),
		ErrorKind:  string(models.KindOf(err)),
		Error:      err.Error(),
	})
}

// Name returns the formatter name
func (f *JSONFormatter) Name() string {
	return "json"
}

func (f *JSONFormatter) encode(v any) error {
	if f.writer == nil {
		f.writer = os.Stdout
	}
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
