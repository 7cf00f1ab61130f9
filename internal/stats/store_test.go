package stats

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/logtop/internal/filter"
	"github.com/tinytelemetry/logtop/internal/model"
)

func httpRecord(path string, status int64, bytes int64) model.Record {
	return model.Record{
		"request_path": path,
		"status":       status,
		"status_type":  status / 100,
		"bytes_sent":   bytes,
	}
}

func TestReportBeforeProcessIsEmpty(t *testing.T) {
	s := New(Config{})
	if got := s.Report(); got != "" {
		t.Errorf("Report() before any Process = %q, want empty", got)
	}
}

func TestProcessEmptyRecordIsNeutral(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(Config{})
	s.now = func() time.Time { return base }

	s.Process(model.Record{})
	report := s.Report()
	if !strings.Contains(report, "0 records processed: 0.00 req/sec") {
		t.Errorf("neutral report missing zero-guarded summary, got:\n%s", report)
	}
	if s.Count() != 0 {
		t.Errorf("Count() = %d, want 0", s.Count())
	}
}

func TestGroupingSameKey(t *testing.T) {
	s := New(Config{})
	for i := 0; i < 5; i++ {
		s.Process(httpRecord("/a", 200, 100))
	}
	groups := s.Groups()
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	if groups[0].Count != 5 {
		t.Errorf("count = %d, want 5", groups[0].Count)
	}
}

func TestGroupingDistinctKeys(t *testing.T) {
	s := New(Config{Limit: 100})
	for i := 0; i < 7; i++ {
		s.Process(httpRecord(fmt.Sprintf("/p%d", i), 200, 100))
	}
	groups := s.Groups()
	if len(groups) != 7 {
		t.Fatalf("groups = %d, want 7", len(groups))
	}
	for _, g := range groups {
		if g.Count != 1 {
			t.Errorf("group %s count = %d, want 1", g.Key, g.Count)
		}
	}
}

func TestThroughput(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("count over elapsed", func(t *testing.T) {
		s := New(Config{})
		// Process reads the clock twice (begin stamp + group update),
		// Report once more for the elapsed figure.
		times := []time.Time{base, base, base.Add(4 * time.Second)}
		i := 0
		s.now = func() time.Time { t := times[i]; i++; return t }

		s.Process(httpRecord("/a", 200, 10))
		report := s.Report()
		if !strings.Contains(report, "running for 4 seconds, 1 records processed: 0.25 req/sec") {
			t.Errorf("unexpected summary line in:\n%s", report)
		}
	})

	t.Run("zero elapsed reports zero", func(t *testing.T) {
		s := New(Config{})
		s.now = func() time.Time { return base }
		s.Process(httpRecord("/a", 200, 10))
		report := s.Report()
		if !strings.Contains(report, "1 records processed: 0.00 req/sec") {
			t.Errorf("zero elapsed not guarded in:\n%s", report)
		}
	})
}

func TestStatusBuckets(t *testing.T) {
	s := New(Config{})
	for _, status := range []int64{200, 201, 301, 404, 404, 500} {
		s.Process(httpRecord("/a", status, 0))
	}
	groups := s.Groups()
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	want := [4]int64{2, 1, 2, 1}
	if groups[0].Buckets != want {
		t.Errorf("buckets = %v, want %v", groups[0].Buckets, want)
	}
}

func TestHavingExcludesAllGroups(t *testing.T) {
	having, err := filter.Compile("count > 1000")
	if err != nil {
		t.Fatal(err)
	}
	s := New(Config{Having: having})
	s.Process(httpRecord("/a", 200, 10))
	s.Process(httpRecord("/b", 200, 10))

	if groups := s.Groups(); len(groups) != 0 {
		t.Fatalf("groups = %d, want 0", len(groups))
	}
	report := s.Report()
	if !strings.Contains(report, "2 records processed") {
		t.Errorf("summary missing from report:\n%s", report)
	}
	if !strings.Contains(report, "Detailed:") {
		t.Errorf("detail section header missing from report:\n%s", report)
	}
}

func TestHavingSelectsGroups(t *testing.T) {
	having, err := filter.Compile("status_4xx > 0")
	if err != nil {
		t.Fatal(err)
	}
	s := New(Config{Having: having})
	s.Process(httpRecord("/ok", 200, 10))
	s.Process(httpRecord("/missing", 404, 10))

	groups := s.Groups()
	if len(groups) != 1 || groups[0].Key != "/missing" {
		t.Fatalf("groups = %+v, want single /missing group", groups)
	}
}

func TestFilterExcludesRecords(t *testing.T) {
	pred, err := filter.Compile("status >= 400")
	if err != nil {
		t.Fatal(err)
	}
	s := New(Config{Filter: pred})
	s.Process(httpRecord("/a", 200, 10))
	s.Process(httpRecord("/a", 404, 10))
	if s.Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Count())
	}
}

func TestOrderAndLimit(t *testing.T) {
	s := New(Config{OrderBy: "count", Limit: 2})
	for i, path := range []string{"/one", "/two", "/three"} {
		for j := 0; j <= i; j++ {
			s.Process(httpRecord(path, 200, 10))
		}
	}
	groups := s.Groups()
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2 after limit", len(groups))
	}
	if groups[0].Key != "/three" || groups[1].Key != "/two" {
		t.Errorf("order = [%s %s], want [/three /two]", groups[0].Key, groups[1].Key)
	}
}

func TestOrderByAvgBytes(t *testing.T) {
	s := New(Config{OrderBy: "avg_bytes_sent"})
	s.Process(httpRecord("/small", 200, 10))
	s.Process(httpRecord("/big", 200, 100000))
	groups := s.Groups()
	if groups[0].Key != "/big" {
		t.Errorf("first group = %s, want /big", groups[0].Key)
	}
}

func TestMissingGroupFieldUsesPlaceholder(t *testing.T) {
	s := New(Config{})
	s.Process(model.Record{"status": int64(200), "status_type": int64(2)})
	groups := s.Groups()
	if len(groups) != 1 || groups[0].Key != "-" {
		t.Errorf("groups = %+v, want single \"-\" group", groups)
	}
}

func TestMaxGroupsCapsNewKeys(t *testing.T) {
	s := New(Config{MaxGroups: 2, Limit: 100})
	s.Process(httpRecord("/a", 200, 1))
	s.Process(httpRecord("/b", 200, 1))
	s.Process(httpRecord("/c", 200, 1))
	s.Process(httpRecord("/a", 200, 1))

	groups := s.Groups()
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	// Existing groups still accumulate.
	if s.Count() != 4 {
		t.Errorf("Count() = %d, want 4", s.Count())
	}
}

func TestConcurrentProcessAndReport(t *testing.T) {
	s := New(Config{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			s.Process(httpRecord("/a", 200, 10))
		}
	}()
	for i := 0; i < 50; i++ {
		_ = s.Report()
	}
	<-done
	if s.Count() != 500 {
		t.Errorf("Count() = %d, want 500", s.Count())
	}
}
