package logformat

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

const combinedLine = `192.168.1.10 - - [27/Apr/2016:07:04:48 +0000] "GET /a/b HTTP/1.1" 200 227036 "http://ref" "UA"`

func TestCompileCombined(t *testing.T) {
	p, err := Compile("combined")
	if err != nil {
		t.Fatalf("Compile(combined): %v", err)
	}

	fields, ok := p.Match(combinedLine)
	if !ok {
		t.Fatalf("combined pattern did not match %q", combinedLine)
	}

	expected := map[string]string{
		"remote_addr":     "192.168.1.10",
		"remote_user":     "-",
		"time_local":      "27/Apr/2016:07:04:48 +0000",
		"request":         "GET /a/b HTTP/1.1",
		"status":          "200",
		"body_bytes_sent": "227036",
		"http_referer":    "http://ref",
		"http_user_agent": "UA",
	}
	if !reflect.DeepEqual(fields, expected) {
		t.Errorf("Match() = %v, want %v", fields, expected)
	}
}

func TestCompileRoundTrip(t *testing.T) {
	tests := []struct {
		format string
		values map[string]string
	}{
		{
			format: `$a $b $c`,
			values: map[string]string{"a": "one", "b": "two", "c": "three"},
		},
		{
			format: `[$ts] "$msg" $code`,
			values: map[string]string{"ts": "12:00:01", "msg": "hello world", "code": "42"},
		},
		{
			format: `$head literal middle $tail`,
			values: map[string]string{"head": "x", "tail": "trailing value with spaces"},
		},
		{
			format: `$addr - - {$weird}`,
			values: map[string]string{"addr": "10.0.0.1", "weird": "v"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			line := tt.format
			for name, value := range tt.values {
				line = strings.ReplaceAll(line, "$"+name, value)
			}

			p, err := Compile(tt.format)
			if err != nil {
				t.Fatalf("Compile(%q): %v", tt.format, err)
			}
			fields, ok := p.Match(line)
			if !ok {
				t.Fatalf("pattern for %q did not match generated line %q", tt.format, line)
			}
			if !reflect.DeepEqual(fields, tt.values) {
				t.Errorf("Match(%q) = %v, want %v", line, fields, tt.values)
			}
		})
	}
}

func TestCompileDeterministic(t *testing.T) {
	p1, err := Compile("combined")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := Compile("combined")
	if err != nil {
		t.Fatal(err)
	}

	f1, ok1 := p1.Match(combinedLine)
	f2, ok2 := p2.Match(combinedLine)
	if ok1 != ok2 || !reflect.DeepEqual(f1, f2) {
		t.Error("two compilations of the same format disagree")
	}
}

func TestCompileHLSInFails(t *testing.T) {
	if _, err := Compile("hls_in"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Compile(hls_in) err = %v, want ErrInvalidFormat", err)
	}
}

func TestCompileDuplicatePlaceholderLastWins(t *testing.T) {
	p, err := Compile(`$v - $v`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	fields, ok := p.Match("first - second")
	if !ok {
		t.Fatal("pattern did not match")
	}
	if fields["v"] != "second" {
		t.Errorf("duplicate placeholder captured %q, want %q", fields["v"], "second")
	}
}

func TestMatchNoMatch(t *testing.T) {
	p, err := Compile("combined")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Match("not an access log line"); ok {
		t.Error("expected no match for malformed line")
	}
}

func TestPlaceholderCapturesAreGreedy(t *testing.T) {
	// Captures are greedy, so an earlier placeholder absorbs ambiguous
	// delimiters and the trailing one gets the remainder.
	p, err := Compile(`$first $rest`)
	if err != nil {
		t.Fatal(err)
	}
	fields, ok := p.Match("a b c d")
	if !ok {
		t.Fatal("pattern did not match")
	}
	if fields["first"] != "a b c" {
		t.Errorf("first = %q, want %q", fields["first"], "a b c")
	}
	if fields["rest"] != "d" {
		t.Errorf("rest = %q, want %q", fields["rest"], "d")
	}
}

func TestVariables(t *testing.T) {
	tests := []struct {
		format string
		want   []string
	}{
		{`$a $b $a`, []string{"a", "b", "a"}},
		{`no placeholders`, nil},
		{FormatCommon, []string{
			"remote_addr", "remote_user", "time_local", "request",
			"status", "body_bytes_sent", "http_x_forwarded_for",
		}},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("case%d", i), func(t *testing.T) {
			if got := Variables(tt.format); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Variables(%q) = %v, want %v", tt.format, got, tt.want)
			}
		})
	}
}

func TestVariablesResolvesPreset(t *testing.T) {
	got := Variables("combined")
	if len(got) != 8 || got[0] != "remote_addr" || got[7] != "http_user_agent" {
		t.Errorf("Variables(combined) = %v", got)
	}
}

func TestResolveUnknownNameIsLiteral(t *testing.T) {
	format := `$a literal $b`
	got, err := Resolve(format)
	if err != nil || got != format {
		t.Errorf("Resolve(%q) = %q, %v", format, got, err)
	}
}
