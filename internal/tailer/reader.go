package tailer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"
	"sync"
)

// DefaultLineBuffer is the channel buffer size for reader sources.
const DefaultLineBuffer = 10_000

// ReaderSource drains an io.Reader line by line and closes its channel at
// EOF. It backs both stdin ingestion and finite (one-shot) file reads.
// Stop closes the underlying file so a read blocked on an idle input
// unblocks immediately.
type ReaderSource struct {
	name     string
	ch       chan string
	cancel   context.CancelFunc
	closer   io.Closer
	stopOnce sync.Once
}

// NewReaderSource starts reading r in a background goroutine. When closer
// is non-nil it is closed once the source stops.
func NewReaderSource(ctx context.Context, r io.Reader, name string, closer io.Closer) *ReaderSource {
	ctx, cancel := context.WithCancel(ctx)
	s := &ReaderSource{
		name:   name,
		ch:     make(chan string, DefaultLineBuffer),
		cancel: cancel,
		closer: closer,
	}
	go s.read(ctx, r)
	return s
}

// NewStdinSource reads lines from standard input until it ends.
func NewStdinSource(ctx context.Context) *ReaderSource {
	return NewReaderSource(ctx, os.Stdin, "stdin", os.Stdin)
}

// NewFileSource opens path and produces every line currently present, then
// ends. This is the one-shot ingestion mode.
func NewFileSource(ctx context.Context, path string) (*ReaderSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening access log: %w", err)
	}
	return NewReaderSource(ctx, f, "file", f), nil
}

func (s *ReaderSource) read(ctx context.Context, r io.Reader) {
	defer close(s.ch)
	defer s.Stop()

	// bufio.Reader instead of a Scanner: lines of any length are delivered
	// whole rather than aborting the stream.
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 && err == nil {
			select {
			case s.ch <- strings.TrimRight(line, "\r\n"):
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// A final line without a trailing newline still counts.
				if len(line) > 0 {
					select {
					case s.ch <- strings.TrimRight(line, "\r\n"):
					case <-ctx.Done():
					}
				}
				return
			}
			if errors.Is(err, fs.ErrClosed) {
				return
			}
			log.Printf("tailer: %s read error: %v", s.name, err)
			return
		}
	}
}

func (s *ReaderSource) Lines() <-chan string { return s.ch }

// Stop cancels the source and closes the underlying input, unblocking a
// pending read. Safe to call more than once.
func (s *ReaderSource) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.closer != nil {
			_ = s.closer.Close()
		}
	})
}

func (s *ReaderSource) Name() string { return s.name }
