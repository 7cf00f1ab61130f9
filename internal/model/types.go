package model

// Record represents a single parsed and enriched access-log entry.
// It is the canonical type flowing between the pattern matcher, the
// enrichment pipeline, and the aggregation stores. Values are either
// string, int64, or float64.
type Record map[string]any

// Str returns the string value of field, or "" when absent or non-string.
func (r Record) Str(field string) string {
	if v, ok := r[field].(string); ok {
		return v
	}
	return ""
}

// Int returns the int64 value of field. Float values are truncated.
// Absent or non-numeric fields return 0.
func (r Record) Int(field string) int64 {
	switch v := r[field].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

// Float returns the float64 value of field. Absent or non-numeric
// fields return 0.
func (r Record) Float(field string) float64 {
	switch v := r[field].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

// Has reports whether field is present in the record.
func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}
