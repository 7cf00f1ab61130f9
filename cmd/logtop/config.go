package main

import (
	"time"

	"github.com/tinytelemetry/logtop/internal/model"
)

const (
	defaultIntervalSeconds = float64(model.DefaultReportInterval) / float64(time.Second)
	defaultGroupBy         = model.DefaultGroupBy
	defaultOrderBy         = model.DefaultOrderBy
	defaultLimit           = model.DefaultLimit
	defaultProfile         = "http"
	defaultAPIAddr         = "127.0.0.1:3000"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	AccessLog   string  `mapstructure:"access-log"`
	LogFormat   string  `mapstructure:"log-format"`
	FormatName  string  `mapstructure:"format-name"`
	NoFollow    bool    `mapstructure:"no-follow"`
	Interval    float64 `mapstructure:"interval"`
	GroupBy     string  `mapstructure:"group-by"`
	OrderBy     string  `mapstructure:"order-by"`
	Limit       int     `mapstructure:"limit"`
	Filter      string  `mapstructure:"filter"`
	PreFilter   string  `mapstructure:"pre-filter"`
	Having      string  `mapstructure:"having"`
	Profile     string  `mapstructure:"profile"`
	Samples     int     `mapstructure:"samples"`
	MaxGroups   int     `mapstructure:"max-groups"`
	RTMPStatURL string  `mapstructure:"rtmp-stat-url"`
	APIEnabled  bool    `mapstructure:"api-enabled"`
	APIAddr     string  `mapstructure:"api-addr"`
	Verbose     bool    `mapstructure:"verbose"`
	Debug       bool    `mapstructure:"debug"`
}
