package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/logtop/internal/display"
	"github.com/tinytelemetry/logtop/internal/enrich"
	"github.com/tinytelemetry/logtop/internal/filter"
	"github.com/tinytelemetry/logtop/internal/httpserver"
	"github.com/tinytelemetry/logtop/internal/logformat"
	"github.com/tinytelemetry/logtop/internal/model"
	"github.com/tinytelemetry/logtop/internal/nginxconf"
	"github.com/tinytelemetry/logtop/internal/rtmpstat"
	"github.com/tinytelemetry/logtop/internal/stats"
	"github.com/tinytelemetry/logtop/internal/tailer"
)

// inputConfig is the fully resolved ingestion setup: where lines come from
// and how to parse them.
type inputConfig struct {
	AccessLog  string // empty means stdin
	Format     string
	ConfigPath string // nginx config the setup came from, when detected
}

func run(cfg appConfig, args []string) error {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags)

	if len(args) > 0 && args[0] == "info" {
		return runInfo(cfg)
	}

	input, err := resolveInput(cfg)
	if err != nil {
		return err
	}

	pipe, err := buildPipeline(cfg, input.Format)
	if err != nil {
		return err
	}

	proc, closeProc, err := buildProcessor(cfg, args)
	if err != nil {
		return err
	}
	defer closeProc()

	if cfg.Verbose {
		log.Printf("run: source=%s format=%q group-by=%s order-by=%s limit=%d profile=%s",
			sourceLabel(input), input.Format, cfg.GroupBy, cfg.OrderBy, cfg.Limit, cfg.Profile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, oneShot, err := buildSource(ctx, cfg, input)
	if err != nil {
		return err
	}
	defer src.Stop()

	if oneShot {
		return runOnce(cfg, pipe, proc, src)
	}
	return runFollow(ctx, cancel, cfg, input, pipe, proc, src)
}

// resolveInput decides the access log path and the log format, in order of
// preference: explicit flags, piped stdin, nginx config discovery.
func resolveInput(cfg appConfig) (inputConfig, error) {
	var input inputConfig
	input.AccessLog = cfg.AccessLog

	input.Format = cfg.LogFormat
	if input.Format == "" && cfg.FormatName != "" {
		format, err := logformat.Resolve(cfg.FormatName)
		if err != nil {
			return input, err
		}
		input.Format = format
	}

	if input.AccessLog != "" {
		if input.Format == "" {
			input.Format = logformat.FormatCombined
		}
		return input, nil
	}

	if tailer.StdinIsPiped() {
		if input.Format == "" {
			input.Format = logformat.FormatCombined
		}
		return input, nil
	}

	configPath, err := nginxconf.DetectConfigPath()
	if err != nil {
		return input, err
	}
	path, format, err := nginxconf.DetectLogConfig(configPath, promptChooser)
	if err != nil {
		return input, err
	}
	input.ConfigPath = configPath
	input.AccessLog = path
	if input.Format == "" {
		input.Format = format
	}
	return input, nil
}

// promptChooser lists the configured access logs and reads a selection from
// the terminal. Without a terminal the first entry wins.
func promptChooser(paths []string) (string, error) {
	if tailer.StdinIsPiped() {
		return paths[0], nil
	}
	fmt.Fprintln(os.Stderr, "Multiple access logs detected in configuration:")
	for i, p := range paths {
		fmt.Fprintf(os.Stderr, "  %d: %s\n", i, p)
	}
	fmt.Fprintf(os.Stderr, "Select access log to process [0]: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return paths[0], nil
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return paths[0], nil
	}
	idx, err := strconv.Atoi(line)
	if err != nil || idx < 0 || idx >= len(paths) {
		return "", fmt.Errorf("invalid selection %q", line)
	}
	return paths[idx], nil
}

// runInfo prints the resolved configuration without starting ingestion.
func runInfo(cfg appConfig) error {
	input, err := resolveInput(cfg)
	if err != nil {
		return err
	}
	if input.ConfigPath != "" {
		fmt.Printf("nginx configuration file:\n  %s\n", input.ConfigPath)
	}
	fmt.Printf("access log file:\n  %s\n", sourceLabel(input))
	fmt.Printf("access log format:\n  %s\n", input.Format)

	vars := logformat.Variables(input.Format)
	sort.Strings(vars)
	fmt.Printf("available variables:\n  %s\n", strings.Join(vars, ", "))

	if cfg.RTMPStatURL != "" {
		fmt.Printf("rtmp stat url:\n  %s\n", cfg.RTMPStatURL)
	}
	return nil
}

func sourceLabel(input inputConfig) string {
	if input.AccessLog == "" {
		return "stdin"
	}
	return input.AccessLog
}

// pipeline turns a raw line into an enriched record, or rejects it.
type pipeline struct {
	pattern  *logformat.Pattern
	pre      *filter.Predicate
	flt      *filter.Predicate
	enricher *enrich.Pipeline
	debug    bool
}

func buildPipeline(cfg appConfig, format string) (*pipeline, error) {
	pattern, err := logformat.Compile(format)
	if err != nil {
		return nil, err
	}
	pre, err := filter.Compile(cfg.PreFilter)
	if err != nil {
		return nil, fmt.Errorf("compiling pre-filter: %w", err)
	}
	flt, err := filter.Compile(cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("compiling filter: %w", err)
	}
	return &pipeline{
		pattern:  pattern,
		pre:      pre,
		flt:      flt,
		enricher: enrich.NewHTTPPipeline(),
		debug:    cfg.Debug,
	}, nil
}

func (p *pipeline) parse(line string) (model.Record, bool) {
	if p.debug {
		log.Printf("pipeline: line %q", line)
	}
	if !p.pre.Allow(filter.LineEnv(line)) {
		return nil, false
	}
	raw, ok := p.pattern.Match(line)
	if !ok {
		return nil, false
	}
	rec, ok := p.enricher.Enrich(raw)
	if !ok {
		return nil, false
	}
	if !p.flt.Allow(map[string]any(rec)) {
		return nil, false
	}
	if p.debug {
		log.Printf("pipeline: record %v", rec)
	}
	return rec, true
}

// buildProcessor picks the aggregation backend: an ad-hoc query processor
// when a command is given, otherwise the grouped store of the profile.
func buildProcessor(cfg appConfig, args []string) (model.Processor, func(), error) {
	noop := func() {}

	if len(args) == 0 {
		if cfg.Profile == "hls" {
			return stats.NewStreamStore(), noop, nil
		}
		having, err := filter.Compile(cfg.Having)
		if err != nil {
			return nil, nil, fmt.Errorf("compiling having: %w", err)
		}
		return stats.New(stats.Config{
			GroupBy:   cfg.GroupBy,
			OrderBy:   cfg.OrderBy,
			Limit:     cfg.Limit,
			Having:    having,
			MaxGroups: cfg.MaxGroups,
		}), noop, nil
	}

	var fields []string
	var queries []stats.LabeledQuery

	switch cmd := args[0]; cmd {
	case "print":
		if len(args) < 2 {
			return nil, nil, fmt.Errorf("print requires at least one field")
		}
		fields = args[1:]
		queries = []stats.LabeledQuery{stats.PrintQuery(fields)}
	case "top":
		if len(args) < 2 {
			return nil, nil, fmt.Errorf("top requires at least one field")
		}
		fields = args[1:]
		queries = stats.TopQueries(fields, cfg.Limit)
	case "avg":
		if len(args) < 2 {
			return nil, nil, fmt.Errorf("avg requires at least one field")
		}
		fields = args[1:]
		queries = []stats.LabeledQuery{stats.AvgQuery(fields)}
	case "sum":
		if len(args) < 2 {
			return nil, nil, fmt.Errorf("sum requires at least one field")
		}
		fields = args[1:]
		queries = []stats.LabeledQuery{stats.SumQuery(fields)}
	case "report":
		if len(args) != 1 {
			return nil, nil, fmt.Errorf("report takes no arguments")
		}
		// SQL-backed rendition of the standard summary/detail report. The
		// having clause is embedded in the SQL, so plain comparisons like
		// "count > 100" work in both backends.
		fields = stats.DefaultFields(cfg.GroupBy)
		queries = stats.DefaultQueries(cfg.GroupBy, cfg.Having, cfg.OrderBy, cfg.Limit)
	case "query":
		if len(args) < 2 {
			return nil, nil, fmt.Errorf("query requires a sql statement")
		}
		fields = args[2:]
		if len(fields) == 0 {
			fields = stats.DefaultFields(cfg.GroupBy)
		}
		queries = []stats.LabeledQuery{{Label: "Query:", SQL: args[1]}}
	default:
		return nil, nil, fmt.Errorf("unknown command %q", cmd)
	}

	store, err := stats.NewSQLStore(fields, queries)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

// buildSource returns the line source and whether ingestion is one-shot.
func buildSource(ctx context.Context, cfg appConfig, input inputConfig) (tailer.LineSource, bool, error) {
	if input.AccessLog == "" {
		return tailer.NewStdinSource(ctx), false, nil
	}
	if cfg.NoFollow {
		src, err := tailer.NewFileSource(ctx, input.AccessLog)
		return src, true, err
	}
	src, err := tailer.NewFollowSource(ctx, input.AccessLog)
	return src, false, err
}

// renderReport composes the processor report with the optional RTMP stat
// section. RTMP failures degrade to a logged warning.
func renderReport(proc model.Processor, rtmpURL string) string {
	report := proc.Report()
	if rtmpURL == "" {
		return report
	}
	stat, err := rtmpstat.Fetch(context.Background(), rtmpURL)
	if err != nil {
		log.Printf("rtmpstat: %v", err)
		return report
	}
	if report != "" {
		report += "\n"
	}
	return report + stat.Render()
}

// runOnce drains the source synchronously and emits exactly one report.
func runOnce(cfg appConfig, pipe *pipeline, proc model.Processor, src tailer.LineSource) error {
	for line := range src.Lines() {
		if rec, ok := pipe.parse(line); ok {
			proc.Process(rec)
		}
	}
	fmt.Println(renderReport(proc, cfg.RTMPStatURL))
	return nil
}

// runFollow runs ingestion and periodic rendering until the source ends,
// the user quits the view, or a shutdown signal arrives.
func runFollow(ctx context.Context, cancel context.CancelFunc, cfg appConfig, input inputConfig, pipe *pipeline, proc model.Processor, src tailer.LineSource) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var sink display.Sink
	var screenDone <-chan struct{}
	if stdoutIsTerminal() {
		screen := display.NewScreenSink("logtop - " + sourceLabel(input))
		screenDone = screen.Done()
		sink = screen
	} else {
		sink = display.NewStdoutSink()
	}

	if cfg.APIEnabled {
		api := httpserver.NewServer(cfg.APIAddr, proc)
		if err := api.Start(); err != nil {
			return fmt.Errorf("starting report API: %w", err)
		}
		defer api.Stop()
	}

	interval := time.Duration(cfg.Interval * float64(time.Second))

	g, gctx := errgroup.WithContext(ctx)

	// Ingestion loop. A closing source (stdin ending) stops the run.
	g.Go(func() error {
		defer cancel()
		for line := range src.Lines() {
			if rec, ok := pipe.parse(line); ok {
				proc.Process(rec)
			}
		}
		return nil
	})

	// Render loop on a fixed interval. A spent sample budget ends the run
	// cleanly.
	var samplesSpent bool
	g.Go(func() error {
		spent, err := renderLoop(gctx, sink, proc, cfg.RTMPStatURL, interval, cfg.Samples)
		if spent {
			samplesSpent = true
			cancel()
		}
		return err
	})

	// Shutdown on signal or when the user quits the screen view.
	g.Go(func() error {
		select {
		case <-sigCh:
		case <-screenDoneOrNever(screenDone):
		case <-gctx.Done():
		}
		cancel()
		src.Stop()
		return nil
	})

	err := g.Wait()
	_ = sink.Close()
	if err != nil {
		return err
	}

	// Leave a final report on plain stdout so the run ends with the
	// complete picture, terminal restored. A samples run already emitted
	// its last report.
	if !samplesSpent {
		if report := renderReport(proc, cfg.RTMPStatURL); report != "" {
			fmt.Println(report)
		}
	}
	return nil
}

// renderLoop renders the report on every tick until ctx ends or the sample
// budget is spent. The first return is true when the budget ended the loop.
func renderLoop(ctx context.Context, sink display.Sink, proc model.Processor, rtmpURL string, interval time.Duration, samples int) (bool, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rendered := 0
	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
			report := renderReport(proc, rtmpURL)
			if report == "" {
				continue
			}
			if err := sink.Render(report); err != nil {
				return false, err
			}
			rendered++
			if samples > 0 && rendered >= samples {
				return true, nil
			}
		}
	}
}

func screenDoneOrNever(done <-chan struct{}) <-chan struct{} {
	if done != nil {
		return done
	}
	return make(chan struct{})
}

func stdoutIsTerminal() bool {
	stat, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
