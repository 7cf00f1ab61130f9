// Package nginxconf discovers the access-log path and log format from an
// nginx configuration file, so the tool can run with no arguments on a
// standard installation.
package nginxconf

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/tinytelemetry/logtop/internal/logformat"
)

// ErrNoAccessLog reports a configuration without any usable access_log
// directive. This is a hard configuration error.
var ErrNoAccessLog = errors.New("no access_log directive found")

// AccessLog is one access_log directive: a destination path and the name of
// the log format it references.
type AccessLog struct {
	Path       string
	FormatName string
}

var (
	confPathRe   = regexp.MustCompile(`--conf-path=(\S*)`)
	prefixRe     = regexp.MustCompile(`--prefix=(\S*)`)
	commentRe    = regexp.MustCompile(`(?m)#.*$`)
	accessLogRe  = regexp.MustCompile(`(?m)\baccess_log\s+([^;]+);`)
	logFormatRe  = regexp.MustCompile(`(?s)\blog_format\s+([A-Za-z0-9_]+)\s+(.*?);`)
	quotedPartRe = regexp.MustCompile(`'([^']*)'|"([^"]*)"`)
)

// DetectConfigPath locates the nginx configuration file from `nginx -V`
// output, falling back to the conventional path.
func DetectConfigPath() (string, error) {
	out, err := exec.Command("nginx", "-V").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("access log file or format was not set and nginx config file cannot be detected; perhaps nginx is not in your PATH: %w", err)
	}
	if m := confPathRe.FindSubmatch(out); m != nil {
		return string(m[1]), nil
	}
	if m := prefixRe.FindSubmatch(out); m != nil {
		return string(m[1]) + "/conf/nginx.conf", nil
	}
	return "/etc/nginx/nginx.conf", nil
}

// AccessLogs extracts every access_log directive from the config text,
// skipping disabled and syslog destinations. A directive without a format
// name references the built-in combined format.
func AccessLogs(config string) []AccessLog {
	config = commentRe.ReplaceAllString(config, "")

	var logs []AccessLog
	for _, m := range accessLogRe.FindAllStringSubmatch(config, -1) {
		params := splitParams(m[1])
		if len(params) == 0 {
			continue
		}
		path := params[0]
		if path == "off" || strings.HasPrefix(path, "syslog:") {
			continue
		}
		formatName := "combined"
		if len(params) > 1 && !strings.Contains(params[1], "=") {
			formatName = params[1]
		}
		logs = append(logs, AccessLog{Path: path, FormatName: formatName})
	}
	return logs
}

// LogFormats extracts every log_format definition, concatenating the quoted
// parts of multi-line definitions into a single format string.
func LogFormats(config string) map[string]string {
	config = commentRe.ReplaceAllString(config, "")

	formats := make(map[string]string)
	for _, m := range logFormatRe.FindAllStringSubmatch(config, -1) {
		name := m[1]
		body := m[2]
		var parts []string
		for _, q := range quotedPartRe.FindAllStringSubmatch(body, -1) {
			if q[1] != "" {
				parts = append(parts, q[1])
			} else {
				parts = append(parts, q[2])
			}
		}
		if len(parts) == 0 {
			parts = []string{strings.TrimSpace(body)}
		}
		formats[name] = strings.Join(parts, "")
	}
	return formats
}

// splitParams tokenizes a directive parameter list, honoring quotes.
func splitParams(s string) []string {
	var params []string
	var cur strings.Builder
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\t' || r == '\n':
			if cur.Len() > 0 {
				params = append(params, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		params = append(params, cur.String())
	}
	return params
}

// Chooser selects one path when multiple access logs are configured.
type Chooser func(paths []string) (string, error)

// DetectLogConfig resolves the access-log path and its literal format
// string from the config file at configPath. When several access_log
// directives exist, choose picks one.
func DetectLogConfig(configPath string, choose Chooser) (string, string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", "", fmt.Errorf("nginx config file not found: %s", configPath)
	}
	config := string(data)

	logs := AccessLogs(config)
	if len(logs) == 0 {
		return "", "", fmt.Errorf("%w in %s", ErrNoAccessLog, configPath)
	}
	formats := LogFormats(config)

	selected := logs[0]
	if len(logs) > 1 && choose != nil {
		paths := make([]string, len(logs))
		byPath := make(map[string]AccessLog, len(logs))
		for i, l := range logs {
			paths[i] = l.Path
			byPath[l.Path] = l
		}
		path, err := choose(paths)
		if err != nil {
			return "", "", err
		}
		selected = byPath[path]
	}

	if format, ok := formats[selected.FormatName]; ok {
		return selected.Path, format, nil
	}
	format, err := logformat.Resolve(selected.FormatName)
	if err != nil || format == selected.FormatName {
		return "", "", fmt.Errorf("incorrect format name %q set in config for access log file %q",
			selected.FormatName, selected.Path)
	}
	return selected.Path, format, nil
}
