package enrich

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/tinytelemetry/logtop/internal/model"
)

// Transform applies one enrichment step to a record. A false return drops
// the record from the pipeline.
type Transform func(model.Record) bool

// Pipeline applies a fixed ordered set of transforms to raw field maps.
type Pipeline struct {
	steps []Transform
}

// NewHTTPPipeline builds the enrichment profile for web-server access logs:
// numeric coercion of status/bytes_sent/request_time plus the derived
// status_type and request_path fields.
func NewHTTPPipeline() *Pipeline {
	return &Pipeline{steps: []Transform{
		coerceInt("status"),
		deriveStatusType,
		deriveBytesSent,
		coerceInt("bytes_sent"),
		coerceFloat("request_time"),
		deriveRequestPath,
	}}
}

// Enrich converts a raw field map into a typed record. The second return is
// false when a transform dropped the record (for example a non-numeric
// status value).
func (p *Pipeline) Enrich(raw map[string]string) (model.Record, bool) {
	rec := make(model.Record, len(raw)+3)
	for name, value := range raw {
		rec[name] = value
	}
	for _, step := range p.steps {
		if !step(rec) {
			return nil, false
		}
	}
	return rec, true
}

// coerceInt converts the field to int64, treating absent values and the
// nginx "-" placeholder as zero. A non-numeric value drops the record.
func coerceInt(field string) Transform {
	return func(rec model.Record) bool {
		n, err := toInt(rec.Str(field))
		if err != nil {
			return false
		}
		rec[field] = n
		return true
	}
}

// coerceFloat converts the field to float64 with the same "-" handling.
func coerceFloat(field string) Transform {
	return func(rec model.Record) bool {
		f, err := toFloat(rec.Str(field))
		if err != nil {
			return false
		}
		rec[field] = f
		return true
	}
}

func deriveStatusType(rec model.Record) bool {
	if rec.Has("status") {
		rec["status_type"] = rec.Int("status") / 100
	}
	return true
}

// deriveBytesSent aliases body_bytes_sent into bytes_sent so queries work
// against either the nginx or apache field name.
func deriveBytesSent(rec model.Record) bool {
	if !rec.Has("bytes_sent") {
		rec["bytes_sent"] = rec.Str("body_bytes_sent")
	}
	return true
}

func deriveRequestPath(rec model.Record) bool {
	if rec.Has("request_path") {
		return true
	}
	if path, ok := RequestPath(rec); ok {
		rec["request_path"] = path
	}
	return true
}

// RequestPath extracts the URL path, preferring an explicit request_uri
// field over the middle token of a "METHOD PATH PROTOCOL" request line.
// The query string is stripped.
func RequestPath(rec model.Record) (string, bool) {
	var uri string
	if rec.Has("request_uri") {
		uri = rec.Str("request_uri")
	} else if rec.Has("request") {
		tokens := strings.Split(rec.Str("request"), " ")
		if len(tokens) > 2 {
			uri = strings.Join(tokens[1:len(tokens)-1], " ")
		}
	}
	if uri == "" {
		return "", false
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", false
	}
	return u.Path, true
}

func toInt(value string) (int64, error) {
	if value == "" || value == "-" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

func toFloat(value string) (float64, error) {
	if value == "" || value == "-" {
		return 0, nil
	}
	return strconv.ParseFloat(value, 64)
}
