package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"icalmerge/internal/cache"
	"icalmerge/internal/config"
	"icalmerge/internal/engine"
	"icalmerge/internal/ics"
	appLog "icalmerge/internal/log"
	"icalmerge/internal/metrics"
	"icalmerge/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath  string
	listen      string
	once        bool
	printConfig bool
}

func main() {
	flags := parseFlags()

	cfg, err := config.NewLoader().Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.Init(cfg.Log.Level, cfg.Log.Format)
	defer appLog.Sync()

	if flags.listen != "" {
		if err := applyListen(cfg, flags.listen); err != nil {
			appLog.Error("invalid -listen", err, "listen", flags.listen)
			os.Exit(1)
		}
	}

	if flags.printConfig {
		if err := printConfig(cfg); err != nil {
			appLog.Error("failed to print config", err)
			os.Exit(1)
		}
		return
	}

	appLog.Info("icalmerge starting",
		"version", version,
		"listen", cfg.Listen(),
		"sources", len(cfg.URLs),
		"hide_details", cfg.HideDetails,
		"merge_overlapping_events", cfg.MergeOverlapping,
		"future_days_limit", cfg.FutureDaysLimit,
		"strict_privacy", cfg.StrictPrivacy,
		"timezone", cfg.Timezone,
		"refresh", cfg.RefreshCron,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flags.once); err != nil {
		appLog.Error("icalmerge failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Info("icalmerge exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "", "Path to YAML config file (environment only if empty)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address host:port (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Build the merged calendar once, print it to stdout and exit")
	flag.BoolVar(&cfg.printConfig, "print-config", false, "Print the effective configuration and exit")

	flag.Parse()

	return cfg
}

func run(ctx context.Context, cfg *config.Config, once bool) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	pipeline := engine.NewPipeline(pipelineOptions(cfg, loc), ics.NewFetcher(cfg.FetchTimeout), m)

	if once {
		out, err := pipeline.Build(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(os.Stdout, out)
		return err
	}

	gate := cache.New[string](cfg.CacheTTL, cache.WithMetrics(m))
	build := cachedBuild(gate, cfg.Fingerprint(), pipeline)

	if cfg.RefreshCron != "" {
		c, err := startRefresh(ctx, cfg.RefreshCron, build)
		if err != nil {
			return err
		}
		defer c.Stop()
	}

	return web.NewServer(cfg, build, registry).Run(ctx)
}

// cachedBuild serves pipeline results through gate. Builds run detached
// from the request context so one disconnecting client cannot fail the
// callers coalesced on the same build.
func cachedBuild(gate *cache.Gate[string], key string, p *engine.Pipeline) web.BuildFunc {
	return func(ctx context.Context) (string, error) {
		return gate.Do(key, func() (string, error) {
			return p.Build(context.WithoutCancel(ctx))
		})
	}
}

// startRefresh rebuilds the calendar on schedule so requests find a warm cache.
// The first build runs immediately.
func startRefresh(ctx context.Context, schedule string, build web.BuildFunc) (*cron.Cron, error) {
	refresh := func() {
		if _, err := build(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, refresh); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	c.Start()
	go refresh()

	appLog.Info("background refresh enabled", "schedule", schedule)
	return c, nil
}

func pipelineOptions(cfg *config.Config, loc *time.Location) engine.Options {
	sources := make([]ics.Source, 0, len(cfg.URLs))
	for i, u := range cfg.URLs {
		sources = append(sources, ics.Source{
			ID:  "source-" + strconv.Itoa(i+1),
			URL: u,
		})
	}

	return engine.Options{
		Sources:          sources,
		Offsets:          cfg.TZOffsets,
		HideDetails:      cfg.HideDetails,
		MergeOverlapping: cfg.MergeOverlapping,
		FutureDays:       cfg.FutureDaysLimit,
		Strict:           cfg.StrictPrivacy,
		Location:         loc,
	}
}

func applyListen(cfg *config.Config, listen string) error {
	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", portStr)
	}
	if host != "" {
		cfg.Host = host
	}
	cfg.Port = port
	return nil
}

// printConfig writes cfg as YAML with secrets and feed URLs redacted.
func printConfig(cfg *config.Config) error {
	out := *cfg
	out.URLs = make([]string, len(cfg.URLs))
	for i, u := range cfg.URLs {
		out.URLs[i] = ics.RedactURL(u)
	}
	if cfg.BasicAuth != nil {
		out.BasicAuth = &config.BasicAuthConfig{Username: cfg.BasicAuth.Username, Password: "***"}
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
