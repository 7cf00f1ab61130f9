package stats

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tinytelemetry/logtop/internal/model"
)

// LabeledQuery pairs a report section label with the SQL that produces it.
type LabeledQuery struct {
	Label string
	SQL   string
}

// SQLStore keeps every record in an in-memory SQLite table and answers
// reports by running the configured queries. It backs the print/top/avg/
// sum/query commands, where the report shape is user-defined.
type SQLStore struct {
	mu      sync.Mutex
	db      *sql.DB
	active  bool
	begin   time.Time
	columns []string
	insert  string
	queries []LabeledQuery

	now func() time.Time
}

// NewSQLStore opens an in-memory database with a log table holding the
// given fields and registers the report queries.
func NewSQLStore(fields []string, queries []LabeledQuery) (*SQLStore, error) {
	for _, f := range fields {
		if !validIdent.MatchString(f) {
			return nil, fmt.Errorf("invalid field name %q", f)
		}
	}
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	// A single connection keeps all statements on the same in-memory
	// database instance.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("create table log (" + strings.Join(fields, ", ") + ")"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating log table: %w", err)
	}

	holders := strings.TrimSuffix(strings.Repeat("?, ", len(fields)), ", ")
	return &SQLStore{
		db:      db,
		columns: append([]string(nil), fields...),
		insert: fmt.Sprintf("insert into log (%s) values (%s)",
			strings.Join(fields, ", "), holders),
		queries: queries,
		now:     time.Now,
	}, nil
}

// Process inserts one record. Fields absent from the record insert as NULL.
func (s *SQLStore) Process(rec model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		s.active = true
		s.begin = s.now()
	}
	if len(rec) == 0 {
		return
	}

	args := make([]any, len(s.columns))
	for i, col := range s.columns {
		if v, ok := rec[col]; ok {
			args[i] = v
		}
	}
	if _, err := s.db.Exec(s.insert, args...); err != nil {
		// A failed insert loses that one record only.
		return
	}
}

// Count returns the number of records inserted so far.
func (s *SQLStore) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked()
}

func (s *SQLStore) countLocked() int64 {
	var n int64
	if err := s.db.QueryRow("select count(1) from log").Scan(&n); err != nil {
		return 0
	}
	return n
}

// Report runs every registered query and renders the results, prefixed by
// the throughput summary line. A failing query degrades to an inline error
// for that section; the rest of the report still renders.
func (s *SQLStore) Report() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return ""
	}

	count := s.countLocked()
	elapsed := s.now().Sub(s.begin).Seconds()
	perSec := 0.0
	if elapsed > 0 {
		perSec = float64(count) / elapsed
	}

	sections := []string{fmt.Sprintf(
		"running for %.0f seconds, %d records processed: %.2f req/sec",
		elapsed, count, perSec)}

	for _, q := range s.queries {
		body, err := s.runQuery(q.SQL)
		if err != nil {
			body = fmt.Sprintf("query error: %v\n", err)
		}
		sections = append(sections, q.Label+"\n"+body)
	}
	return strings.Join(sections, "\n\n")
}

func (s *SQLStore) runQuery(query string) (string, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var out [][]string
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = formatSQLValue(v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return renderTable(cols, out), nil
}

func formatSQLValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case float64:
		return fmt.Sprintf("%.3f", v)
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Close releases the in-memory database.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
