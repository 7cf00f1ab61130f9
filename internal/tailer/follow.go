package tailer

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/nxadm/tail"
)

// FollowSource tails a growing file like `tail -f`: it seeks to the current
// end of the file and yields each newly appended line exactly once. Lines
// present before the source starts are never produced. The underlying tail
// blocks on inotify (or a short poll) while waiting for new data, so an
// idle file costs no CPU.
type FollowSource struct {
	path     string
	t        *tail.Tail
	ch       chan string
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewFollowSource starts tailing path from its current end.
func NewFollowSource(ctx context.Context, path string) (*FollowSource, error) {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("tailing access log: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &FollowSource{
		path:   path,
		t:      t,
		ch:     make(chan string, DefaultLineBuffer),
		cancel: cancel,
	}
	go s.forward(ctx)
	return s, nil
}

func (s *FollowSource) forward(ctx context.Context) {
	defer close(s.ch)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-s.t.Lines:
			if !ok {
				return
			}
			if line.Err != nil {
				log.Printf("tailer: follow error on %s: %v", s.path, line.Err)
				continue
			}
			select {
			case s.ch <- line.Text:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *FollowSource) Lines() <-chan string { return s.ch }

func (s *FollowSource) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		_ = s.t.Stop()
		s.t.Cleanup()
	})
}

func (s *FollowSource) Name() string { return "follow" }
