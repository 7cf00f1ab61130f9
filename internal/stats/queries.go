package stats

import (
	"fmt"
	"regexp"
	"strings"
)

var validIdent = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// DefaultFields is the column set backing the default SQL report.
func DefaultFields(groupBy string) []string {
	fields := []string{"status", "status_type", "bytes_sent", "request_path", "request_time"}
	for _, f := range fields {
		if f == groupBy {
			return fields
		}
	}
	return append(fields, groupBy)
}

// DefaultQueries reproduces the standard summary/detail report as SQL:
// totals plus per-group rows with status-class bucket counts.
func DefaultQueries(groupBy, having, orderBy string, limit int) []LabeledQuery {
	if having == "" {
		having = "1"
	}
	const buckets = `
  count(1)                                    as count,
  avg(bytes_sent)                             as avg_bytes_sent,
  count(case when status_type = 2 then 1 end) as '2xx',
  count(case when status_type = 3 then 1 end) as '3xx',
  count(case when status_type = 4 then 1 end) as '4xx',
  count(case when status_type = 5 then 1 end) as '5xx'`

	return []LabeledQuery{
		{
			Label: "Summary:",
			SQL: fmt.Sprintf("select%s\nfrom log\norder by %s desc\nlimit %d",
				buckets, orderBy, limit),
		},
		{
			Label: "Detailed:",
			SQL: fmt.Sprintf("select\n  %s,%s\nfrom log\ngroup by %s\nhaving %s\norder by %s desc\nlimit %d",
				groupBy, buckets, groupBy, having, orderBy, limit),
		},
	}
}

// PrintQuery lists the distinct combinations of the given fields.
func PrintQuery(fields []string) LabeledQuery {
	selections := strings.Join(fields, ", ")
	return LabeledQuery{
		Label: selections + ":",
		SQL:   fmt.Sprintf("select %s from log group by %s", selections, selections),
	}
}

// TopQueries builds one top-N count query per field.
func TopQueries(fields []string, limit int) []LabeledQuery {
	queries := make([]LabeledQuery, 0, len(fields))
	for _, f := range fields {
		queries = append(queries, LabeledQuery{
			Label: "top " + f,
			SQL: fmt.Sprintf(
				"select %s, count(1) as count from log group by %s order by count desc limit %d",
				f, f, limit),
		})
	}
	return queries
}

// AvgQuery averages the given numeric fields across all records.
func AvgQuery(fields []string) LabeledQuery {
	avgs := make([]string, 0, len(fields))
	for _, f := range fields {
		avgs = append(avgs, fmt.Sprintf("avg(%s)", f))
	}
	return LabeledQuery{
		Label: "average " + strings.Join(fields, ", "),
		SQL:   "select " + strings.Join(avgs, ", ") + " from log",
	}
}

// SumQuery sums the given numeric fields across all records.
func SumQuery(fields []string) LabeledQuery {
	sums := make([]string, 0, len(fields))
	for _, f := range fields {
		sums = append(sums, fmt.Sprintf("sum(%s)", f))
	}
	return LabeledQuery{
		Label: "sum " + strings.Join(fields, ", "),
		SQL:   "select " + strings.Join(sums, ", ") + " from log",
	}
}
