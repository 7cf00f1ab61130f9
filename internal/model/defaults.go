package model

import "time"

// Shared defaults used by the CLI and the aggregation stores.
const (
	DefaultReportInterval = 2 * time.Second
	DefaultGroupBy        = "request_path"
	DefaultOrderBy        = "count"
	DefaultLimit          = 10
	DefaultLineBuffer     = 10_000
)
