// Package display renders the periodic report, either by printing each
// sample to stdout or by redrawing a full-screen terminal view in place.
package display

import (
	"fmt"
	"os"
	"time"
)

// Sink receives each rendered report.
type Sink interface {
	Render(report string) error
	Close() error
}

// StdoutSink appends every report to standard output with a timestamp
// separator. Used for one-shot runs and when no terminal is available.
type StdoutSink struct {
	now func() time.Time
}

// NewStdoutSink returns a sink writing to stdout.
func NewStdoutSink() *StdoutSink {
	return &StdoutSink{now: time.Now}
}

func (s *StdoutSink) Render(report string) error {
	fmt.Fprintf(os.Stdout, "%s\n%s\n", s.now().Format("15:04:05"), report)
	return nil
}

func (s *StdoutSink) Close() error { return nil }
