package logformat

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Built-in log format vocabulary, matching the nginx log_format directives
// the tool understands out of the box.
const (
	FormatCombined = `$remote_addr - $remote_user [$time_local] "$request" $status $body_bytes_sent "$http_referer" "$http_user_agent"`
	FormatCommon   = `$remote_addr - $remote_user [$time_local] "$request" $status $body_bytes_sent "$http_x_forwarded_for"`
	FormatHLSOut   = FormatCombined
	// FormatHLSIn has no known expansion; compiling it is a configuration error.
	FormatHLSIn = ""
)

// ErrInvalidFormat reports a named format with no defined expansion.
var ErrInvalidFormat = errors.New("log format has no defined expansion")

var presets = map[string]string{
	"combined": FormatCombined,
	"common":   FormatCommon,
	"hls_out":  FormatHLSOut,
	"hls_in":   FormatHLSIn,
}

var (
	// specialChars are the regexp metacharacters that may appear as literal
	// text in a log_format directive.
	specialChars = regexp.MustCompile(`([.*+?|(){}\[\]])`)
	placeholder  = regexp.MustCompile(`\$([A-Za-z0-9_]+)`)
)

// Resolve maps a preset name to its literal format string. Anything that is
// not a preset name is taken as a literal format string already.
func Resolve(name string) (string, error) {
	format, ok := presets[name]
	if !ok {
		return name, nil
	}
	if format == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, name)
	}
	return format, nil
}

// Pattern is a compiled log-format matcher. It is immutable and safe for
// concurrent use.
type Pattern struct {
	re *regexp.Regexp
	// names holds the placeholder name for each capture group in order.
	// Duplicate names are allowed; the later capture wins when both
	// populate the same record key.
	names []string
}

// Compile turns a format string (or preset name) into a line matcher.
// Each $name placeholder becomes a capture that runs up to the next literal
// delimiter; a trailing placeholder captures the remainder of the line.
func Compile(format string) (*Pattern, error) {
	literal, err := Resolve(format)
	if err != nil {
		return nil, err
	}

	escaped := specialChars.ReplaceAllString(literal, `\$1`)

	var names []string
	var sb strings.Builder
	sb.WriteString("^")
	last := 0
	for _, loc := range placeholder.FindAllStringSubmatchIndex(escaped, -1) {
		sb.WriteString(escaped[last:loc[0]])
		// Synthetic group names sidestep the duplicate-name restriction
		// of the regexp package while keeping capture order.
		fmt.Fprintf(&sb, "(?P<g%d>.*)", len(names))
		names = append(names, escaped[loc[2]:loc[3]])
		last = loc[1]
	}
	sb.WriteString(escaped[last:])

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("compiling format %q: %w", format, err)
	}
	return &Pattern{re: re, names: names}, nil
}

// Match extracts the placeholder fields from line. A non-matching line is an
// expected outcome, reported via ok=false, never an error.
func (p *Pattern) Match(line string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	fields := make(map[string]string, len(p.names))
	for i, name := range p.names {
		fields[name] = m[i+1]
	}
	return fields, true
}

// Names returns the placeholder names captured by the pattern, in order.
func (p *Pattern) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Variables extracts placeholder names from a format string in order of
// first appearance. Duplicates are preserved. Used for introspection only.
func Variables(format string) []string {
	literal, err := Resolve(format)
	if err != nil {
		return nil
	}
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(literal, -1) {
		names = append(names, m[1])
	}
	return names
}
