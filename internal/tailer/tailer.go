// Package tailer produces the raw line stream feeding the parse pipeline.
// Sources are channel-based: a finite source closes its channel when the
// input is exhausted, a follow source never does.
package tailer

import "os"

// LineSource is the unified interface for all line inputs (file, follow
// tail, stdin).
type LineSource interface {
	Lines() <-chan string // read-only channel of raw lines
	Stop()                // graceful shutdown
	Name() string         // "file", "follow", "stdin"
}

// StdinIsPiped reports whether stdin carries piped data rather than an
// interactive terminal.
func StdinIsPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
