package output

import (
	"context"
	"io"
	"os"

	"github.com/cheggaaa/pb/v3"
)

// ProgressFormatter is the human formatter plus a progress bar per transfer
type ProgressFormatter struct {
	*HumanFormatter
}

// NewProgressFormatter creates a new progress formatter
func NewProgressFormatter() *ProgressFormatter {
	return &ProgressFormatter{HumanFormatter: NewHumanFormatter()}
}

// Name returns the formatter name
func (f *ProgressFormatter) Name() string {
	return "progress"
}

// WrapReader renders a byte-count bar while r is read. size < 0 means unknown.
// Its signature matches storage.ReaderWrapper.
func (f *ProgressFormatter) WrapReader(ctx context.Context, name string, size int64, r io.Reader) (io.Reader, func()) {
	w := f.writer
	if w == nil {
		w = os.Stderr
	}

	total := size
	if total < 0 {
		total = 0
	}

	bar := pb.New64(total).
		SetTemplate(pb.Full).
		SetWriter(w).
		Set(pb.Bytes, true).
		Set("prefix", name+" ")
	bar.Start()

	return bar.NewProxyReader(r), func() { bar.Finish() }
}
