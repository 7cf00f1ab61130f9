// Package stats holds the mutable aggregate state built from enriched
// records and renders the periodic reports. The stores in this package are
// the only shared mutable resources in the pipeline: one ingestion writer
// and one timer-driven reader, serialized by a per-store mutex scoped to a
// single record update or a full report pass.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/logtop/internal/filter"
	"github.com/tinytelemetry/logtop/internal/model"
)

// Config controls grouping, ordering, and row filtering of the Store.
type Config struct {
	GroupBy string // field that keys the group map
	OrderBy string // sort key for report rows, descending
	Limit   int    // max detail rows per report

	Filter *filter.Predicate // per-record, before grouping
	Having *filter.Predicate // per-group, at report time

	// MaxGroups caps the group map when > 0. The default (0) preserves the
	// unbounded growth of the group map for the process lifetime; eviction
	// is an opt-in extension, not default behavior.
	MaxGroups int
}

// GroupAggregate is the running state for one group key.
type GroupAggregate struct {
	Key         string
	Count       int64
	BytesSent   int64 // running sum
	RequestTime float64
	Buckets     [4]int64 // 2xx, 3xx, 4xx, 5xx
	FirstSeen   time.Time
	LastUpdated time.Time
}

// AvgBytesSent returns the running average of bytes_sent for the group.
func (g *GroupAggregate) AvgBytesSent() float64 {
	if g.Count == 0 {
		return 0
	}
	return float64(g.BytesSent) / float64(g.Count)
}

func (g *GroupAggregate) add(rec model.Record, now time.Time) {
	if g.FirstSeen.IsZero() {
		g.FirstSeen = now
	}
	g.LastUpdated = now
	g.Count++
	g.BytesSent += rec.Int("bytes_sent")
	g.RequestTime += rec.Float("request_time")
	if st := rec.Int("status_type"); st >= 2 && st <= 5 {
		g.Buckets[st-2]++
	}
}

// orderValue maps the configured order-by key onto a sortable figure.
func (g *GroupAggregate) orderValue(orderBy string) float64 {
	switch orderBy {
	case "avg_bytes_sent":
		return g.AvgBytesSent()
	case "bytes_sent":
		return float64(g.BytesSent)
	case "request_time":
		return g.RequestTime
	case "2xx", "3xx", "4xx", "5xx":
		return float64(g.Buckets[orderBy[0]-'2'])
	default:
		return float64(g.Count)
	}
}

// havingEnv exposes a group's aggregates to the having predicate. Bucket
// counts are prefixed with "status_" so they are legal identifiers.
func (g *GroupAggregate) havingEnv() map[string]any {
	return map[string]any{
		"group":          g.Key,
		"count":          g.Count,
		"bytes_sent":     g.BytesSent,
		"avg_bytes_sent": g.AvgBytesSent(),
		"status_2xx":     g.Buckets[0],
		"status_3xx":     g.Buckets[1],
		"status_4xx":     g.Buckets[2],
		"status_5xx":     g.Buckets[3],
	}
}

// Store aggregates records grouped by a configurable field and renders the
// summary/detail report. Safe for one concurrent writer and one reader.
type Store struct {
	mu     sync.Mutex
	cfg    Config
	active bool
	begin  time.Time
	total  GroupAggregate
	groups map[string]*GroupAggregate

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Store. Zero config fields fall back to the shared defaults.
func New(cfg Config) *Store {
	if cfg.GroupBy == "" {
		cfg.GroupBy = model.DefaultGroupBy
	}
	if cfg.OrderBy == "" {
		cfg.OrderBy = model.DefaultOrderBy
	}
	if cfg.Limit <= 0 {
		cfg.Limit = model.DefaultLimit
	}
	return &Store{
		cfg:    cfg,
		groups: make(map[string]*GroupAggregate),
		now:    time.Now,
	}
}

// Process folds one record into the aggregate state. The first call stamps
// the begin time used for throughput figures. Empty records are a no-op.
func (s *Store) Process(rec model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		s.active = true
		s.begin = s.now()
	}
	if len(rec) == 0 {
		return
	}
	if !s.cfg.Filter.Allow(rec) {
		return
	}

	now := s.now()
	s.total.add(rec, now)

	key := groupKey(rec, s.cfg.GroupBy)
	g, ok := s.groups[key]
	if !ok {
		if s.cfg.MaxGroups > 0 && len(s.groups) >= s.cfg.MaxGroups {
			return
		}
		g = &GroupAggregate{Key: key}
		s.groups[key] = g
	}
	g.add(rec, now)
}

// ProcessAll folds a finite batch of records.
func (s *Store) ProcessAll(recs []model.Record) {
	for _, rec := range recs {
		s.Process(rec)
	}
}

// Count returns the number of records processed so far.
func (s *Store) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total.Count
}

// Groups returns a snapshot of the current group aggregates, having-filtered
// and ordered the same way the report is.
func (s *Store) Groups() []GroupAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectGroups()
}

func (s *Store) selectGroups() []GroupAggregate {
	rows := make([]GroupAggregate, 0, len(s.groups))
	for _, g := range s.groups {
		if !s.cfg.Having.Allow(g.havingEnv()) {
			continue
		}
		rows = append(rows, *g)
	}
	sort.Slice(rows, func(i, j int) bool {
		vi, vj := rows[i].orderValue(s.cfg.OrderBy), rows[j].orderValue(s.cfg.OrderBy)
		if vi != vj {
			return vi > vj
		}
		return rows[i].Key < rows[j].Key
	})
	if len(rows) > s.cfg.Limit {
		rows = rows[:s.cfg.Limit]
	}
	return rows
}

// Report renders the current aggregate state: a throughput summary line, the
// global summary table, and the per-group detail table.
func (s *Store) Report() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return ""
	}

	elapsed := s.now().Sub(s.begin).Seconds()
	perSec := 0.0
	if elapsed > 0 {
		perSec = float64(s.total.Count) / elapsed
	}

	var out strings.Builder
	fmt.Fprintf(&out, "running for %.0f seconds, %d records processed: %.2f req/sec\n",
		elapsed, s.total.Count, perSec)

	out.WriteString("\nSummary:\n")
	out.WriteString(renderTable(
		[]string{"count", "avg_bytes_sent", "2xx", "3xx", "4xx", "5xx"},
		[][]string{summaryRow(&s.total)},
	))

	rows := s.selectGroups()
	detail := make([][]string, 0, len(rows))
	for i := range rows {
		detail = append(detail, detailRow(&rows[i]))
	}
	out.WriteString("\nDetailed:\n")
	out.WriteString(renderTable(
		[]string{s.cfg.GroupBy, "count", "avg_bytes_sent", "2xx", "3xx", "4xx", "5xx"},
		detail,
	))

	return out.String()
}

// groupKey stringifies the group-by field. Records missing the field all
// land in the "-" group rather than being dropped.
func groupKey(rec model.Record, field string) string {
	v, ok := rec[field]
	if !ok {
		return "-"
	}
	switch v := v.(type) {
	case string:
		return v
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func summaryRow(g *GroupAggregate) []string {
	return []string{
		fmt.Sprintf("%d", g.Count),
		fmt.Sprintf("%.3f", g.AvgBytesSent()),
		fmt.Sprintf("%d", g.Buckets[0]),
		fmt.Sprintf("%d", g.Buckets[1]),
		fmt.Sprintf("%d", g.Buckets[2]),
		fmt.Sprintf("%d", g.Buckets[3]),
	}
}

func detailRow(g *GroupAggregate) []string {
	return append([]string{g.Key}, summaryRow(g)...)
}
