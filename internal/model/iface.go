package model

// Processor consumes enriched records and answers report queries.
// Implementations own all mutable aggregate state; Process and Report
// may be called from different goroutines.
type Processor interface {
	Process(rec Record)
	Report() string
	Count() int64
}
