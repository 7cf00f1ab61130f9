// logtop is a "top"-like console view over a live nginx access-log stream:
// it parses each line against the configured log format, aggregates grouped
// running statistics, and redraws a tabular report on a fixed interval.
//
// Usage:
//
//	logtop                          detect log and format from nginx config
//	logtop -access-log path         follow a specific access log
//	cat access.log | logtop         read a finite stream from stdin
//	logtop info                     print the detected configuration and exit
//	logtop report                   standard summary/detail report as SQL
//	logtop print request status    stream selected fields per record
//	logtop top request_path        top occurrences of a field combination
//	logtop avg bytes_sent          running average of a numeric field
//	logtop sum bytes_sent          running sum of a numeric field
//	logtop query 'select ...'      free-form report query
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var configPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/logtop/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")

	flag.String("access-log", "", "access log file to analyze (default: detect from nginx config, or stdin when piped)")
	flag.String("log-format", "", "literal log format string with $variable placeholders")
	flag.String("format-name", "", "named log format preset (combined, common, hls_out)")
	flag.Bool("no-follow", false, "read the file once instead of tailing new lines")
	flag.Float64("interval", defaultIntervalSeconds, "report refresh interval in seconds")
	flag.String("group-by", defaultGroupBy, "record field to group the detailed table by")
	flag.String("order-by", defaultOrderBy, "group metric to sort the detailed table by")
	flag.Int("limit", defaultLimit, "maximum number of groups in the detailed table")
	flag.String("filter", "", "record predicate, e.g. 'status == 404'")
	flag.String("pre-filter", "", "raw line predicate evaluated before parsing")
	flag.String("having", "", "group predicate, e.g. 'count > 100'")
	flag.String("profile", defaultProfile, "aggregation profile: http or hls")
	flag.Int("samples", 0, "exit after this many reports, 0 means run until stopped")
	flag.Int("max-groups", 0, "cap on distinct groups, 0 means unbounded")
	flag.String("rtmp-stat-url", "", "nginx-rtmp stat url to append to each report")
	flag.Bool("api-enabled", false, "serve the live report over HTTP")
	flag.String("api-addr", defaultAPIAddr, "HTTP API listen address")
	flag.Bool("verbose", false, "log pipeline configuration")
	flag.Bool("debug", false, "log every raw line and parsed record")

	flag.Parse()

	if showVersion {
		fmt.Printf("logtop - Access Log Analyzer\n")
		fmt.Printf("  Version: %s\n", version)
		fmt.Printf("  Commit:  %s\n", commit)
		fmt.Printf("  Built:   %s\n", buildTime)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	v := viper.New()
	v.SetEnvPrefix("LOGTOP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("access-log", "")
	v.SetDefault("log-format", "")
	v.SetDefault("format-name", "")
	v.SetDefault("no-follow", false)
	v.SetDefault("interval", defaultIntervalSeconds)
	v.SetDefault("group-by", defaultGroupBy)
	v.SetDefault("order-by", defaultOrderBy)
	v.SetDefault("limit", defaultLimit)
	v.SetDefault("filter", "")
	v.SetDefault("pre-filter", "")
	v.SetDefault("having", "")
	v.SetDefault("profile", defaultProfile)
	v.SetDefault("samples", 0)
	v.SetDefault("max-groups", 0)
	v.SetDefault("rtmp-stat-url", "")
	v.SetDefault("api-enabled", false)
	v.SetDefault("api-addr", defaultAPIAddr)
	v.SetDefault("verbose", false)
	v.SetDefault("debug", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigFile(filepath.Join(home, ".config", "logtop", "config.yml"))
	}

	if v.ConfigFileUsed() != "" || configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
				return cfg, err
			}
		}
	}

	// Explicit flags take precedence over config file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "version":
		default:
			v.Set(f.Name, f.Value.String())
		}
	})

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	if cfg.Interval <= 0 {
		return cfg, fmt.Errorf("invalid interval: %g", cfg.Interval)
	}
	if cfg.Samples < 0 {
		return cfg, fmt.Errorf("invalid samples: %d", cfg.Samples)
	}
	if cfg.Limit <= 0 {
		return cfg, fmt.Errorf("invalid limit: %d", cfg.Limit)
	}
	if cfg.Profile != "http" && cfg.Profile != "hls" {
		return cfg, fmt.Errorf("unknown profile %q, want http or hls", cfg.Profile)
	}

	return cfg, nil
}
