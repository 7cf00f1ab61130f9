package stats

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/logtop/internal/enrich"
	"github.com/tinytelemetry/logtop/internal/model"
)

// ClientState is the running state for one client of one HLS stream,
// keyed by remote address.
type ClientState struct {
	Name     string
	JoinTime time.Time
	Status   int64
	Detail   string // user-agent string, shown in the per-client row
	InBytes  int64
	OutBytes int64
}

func (c *ClientState) update(rec model.Record, now time.Time) {
	if c.JoinTime.IsZero() {
		c.JoinTime = enrich.JoinTime(rec, now)
	}
	if rec.Has("status") {
		c.Status = rec.Int("status")
	}
	if rec.Has("http_user_agent") {
		c.Detail = rec.Str("http_user_agent")
	}
	c.InBytes += numeric(rec, "request_length")
	c.OutBytes += numeric(rec, "bytes_sent")
}

// numeric reads a byte counter that may still be an uncoerced string, since
// streaming log formats carry fields the enrichment chain does not touch.
func numeric(rec model.Record, field string) int64 {
	if n := rec.Int(field); n != 0 {
		return n
	}
	n, err := strconv.ParseInt(rec.Str(field), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Elapsed is the client's connection time as of now.
func (c *ClientState) Elapsed(now time.Time) time.Duration {
	if c.JoinTime.IsZero() || now.Before(c.JoinTime) {
		return 0
	}
	return now.Sub(c.JoinTime)
}

// StreamState groups the clients watching one stream.
type StreamState struct {
	Name    string
	Clients map[string]*ClientState
}

func (s *StreamState) update(rec model.Record, now time.Time) {
	addr := rec.Str("remote_addr")
	if addr == "" {
		return
	}
	c, ok := s.Clients[addr]
	if !ok {
		c = &ClientState{Name: addr}
		s.Clients[addr] = c
	}
	c.update(rec, now)
}

func (s *StreamState) outBytes() int64 {
	var total int64
	for _, c := range s.Clients {
		total += c.OutBytes
	}
	return total
}

// StreamStore aggregates streaming-media access logs into a two-level
// stream/client report. Same locking discipline as Store.
type StreamStore struct {
	mu      sync.Mutex
	active  bool
	begin   time.Time
	count   int64
	streams map[string]*StreamState

	now func() time.Time
}

// NewStreamStore creates an empty StreamStore.
func NewStreamStore() *StreamStore {
	return &StreamStore{
		streams: make(map[string]*StreamState),
		now:     time.Now,
	}
}

// Process folds one record into the per-stream state. Records without a
// request line are ignored.
func (s *StreamStore) Process(rec model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		s.active = true
		s.begin = s.now()
	}
	if !rec.Has("request") {
		return
	}
	s.count++

	key := enrich.StreamKey(rec.Str("request"))
	stream, ok := s.streams[key]
	if !ok {
		stream = &StreamState{Name: key, Clients: make(map[string]*ClientState)}
		s.streams[key] = stream
	}
	stream.update(rec, s.now())
}

// Count returns the number of records processed so far.
func (s *StreamStore) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Report renders the nested stream report: aggregate totals, then one
// section per stream listing its clients.
func (s *StreamStore) Report() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return ""
	}

	now := s.now()
	elapsed := now.Sub(s.begin).Seconds()

	var clients int
	var outBytes int64
	names := make([]string, 0, len(s.streams))
	for name, stream := range s.streams {
		clients += len(stream.Clients)
		outBytes += stream.outBytes()
		names = append(names, name)
	}
	sort.Strings(names)

	var out strings.Builder
	out.WriteString("Summary:\n")
	fmt.Fprintf(&out, "\tClients: %d OutMBytes: %.2f OutKBytes/s: %.2f Time: %.0fs\n",
		clients, megabytes(outBytes), kbPerSec(outBytes, elapsed), elapsed)

	out.WriteString("Detail:\n")
	for _, name := range names {
		stream := s.streams[name]
		fmt.Fprintf(&out, "\tHLS Stream %s: Clients %d, OutMBytes %.2f, OutKBytes/s %.2f\n",
			stream.Name, len(stream.Clients), megabytes(stream.outBytes()),
			kbPerSec(stream.outBytes(), elapsed))

		addrs := make([]string, 0, len(stream.Clients))
		for addr := range stream.Clients {
			addrs = append(addrs, addr)
		}
		sort.Strings(addrs)
		for _, addr := range addrs {
			c := stream.Clients[addr]
			fmt.Fprintf(&out, "\t\tClient %s: Status %d, Info %q, Time %.0fs\n",
				c.Name, c.Status, c.Detail, c.Elapsed(now).Seconds())
		}
	}
	return out.String()
}

// megabytes converts a byte count with binary (1024-based) division.
func megabytes(bytes int64) float64 {
	return float64(bytes) / 1024 / 1024
}

// kbPerSec is the bandwidth figure: bytes per elapsed second in KiB. A zero
// elapsed window substitutes the raw byte count rather than dividing.
func kbPerSec(bytes int64, elapsed float64) float64 {
	if elapsed <= 0 {
		return float64(bytes)
	}
	return float64(bytes) / elapsed / 1024
}
