package enrich

import (
	"strconv"
	"time"

	"github.com/tinytelemetry/logtop/internal/logformat"
	"github.com/tinytelemetry/logtop/internal/model"
)

// Known request-line shapes that carry an HLS stream name. Built with the
// same format machinery that parses log lines.
var streamRequestFormats = []string{
	`GET /live/$stream.m3u8 HTTP/1.1`,
	`GET /live/$stream-$fragment.ts HTTP/1.1`,
}

var streamPatterns = compileStreamPatterns()

func compileStreamPatterns() []*logformat.Pattern {
	patterns := make([]*logformat.Pattern, 0, len(streamRequestFormats))
	for _, format := range streamRequestFormats {
		p, err := logformat.Compile(format)
		if err != nil {
			panic("enrich: bad built-in stream format: " + err.Error())
		}
		patterns = append(patterns, p)
	}
	return patterns
}

// StreamKey identifies the HLS stream a request belongs to. Requests that
// match none of the known URL shapes fall back to the literal request line,
// so unrecognized traffic still groups deterministically.
func StreamKey(request string) string {
	for _, p := range streamPatterns {
		if fields, ok := p.Match(request); ok {
			if name, ok := fields["stream"]; ok {
				return name
			}
		}
	}
	return request
}

// timeLocalLayout matches the nginx $time_local clock format,
// e.g. "27/Apr/2016:07:04:48 +0000".
const timeLocalLayout = "02/Jan/2006:15:04:05 -0700"

// JoinTime derives the moment a client joined a stream. Priority order:
// the local timestamp field, a relative "time" offset in seconds, then
// wall-clock now.
func JoinTime(rec model.Record, now time.Time) time.Time {
	if rec.Has("time_local") {
		if ts, err := time.Parse(timeLocalLayout, rec.Str("time_local")); err == nil {
			return ts
		}
	}
	if rec.Has("time") {
		if offset, err := strconv.ParseFloat(rec.Str("time"), 64); err == nil {
			return now.Add(-time.Duration(offset * float64(time.Second)))
		}
	}
	return now
}
