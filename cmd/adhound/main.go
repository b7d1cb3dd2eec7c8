/*
adhound polls marketplace search pages and notifies users about new
listings that match their saved searches.

Have a look at the README.md for more information.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"github.com/adhound/adhound/internal/browser"
	"github.com/adhound/adhound/internal/config"
	"github.com/adhound/adhound/internal/dedup"
	"github.com/adhound/adhound/internal/engine"
	"github.com/adhound/adhound/internal/fetch"
	"github.com/adhound/adhound/internal/health"
	"github.com/adhound/adhound/internal/log"
	"github.com/adhound/adhound/internal/metrics"
	"github.com/adhound/adhound/internal/output"
	"github.com/adhound/adhound/internal/settings"
	"github.com/adhound/adhound/internal/sources"
	"github.com/adhound/adhound/internal/watch"
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

var version = "dev"

type VersionFlag string

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

type cli struct {
	Version VersionFlag `short:"v" long:"version" help:"Print the version and exit."`
	Debug   bool        `short:"d" long:"debug" help:"Set log level to 'debug'."`

	Run   RunCmd   `cmd:"" help:"Run the polling workers configured in the workers section of the configuration file."`
	Watch WatchCmd `cmd:"" help:"Run the polling workers with a terminal dashboard showing per-worker health."`
	Check CheckCmd `cmd:"" help:"Validate the configuration and probe the settings provider and the browser runtime."`
	List  ListCmd  `cmd:"" help:"List the available marketplace sources."`
}

// app bundles the engine with everything the commands need to release on
// exit, such as database pools.
type app struct {
	engine    *engine.Engine
	registry  *sources.Registry
	settings  settings.Provider
	collector *metrics.Collector
	closers   []func()
}

func (a *app) Close() {
	for _, c := range a.closers {
		c()
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{registry: sources.NewRegistry()}
	if cfg.SourcesDir != "" {
		if err := a.registry.LoadDir(cfg.SourcesDir); err != nil {
			return nil, fmt.Errorf("failed to load source profiles: %w", err)
		}
	}

	switch cfg.Settings.Provider {
	case config.FILE_SETTINGS_PROVIDER:
		a.settings = settings.NewFileProvider(cfg.Settings.Dir)
	case config.POSTGRES_SETTINGS_PROVIDER:
		pool, err := settings.OpenPool(ctx, cfg.Settings.DSN, cfg.Settings.MaxConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.settings = settings.NewPGProvider(pool)
	default:
		return nil, fmt.Errorf("settings provider of type %s not implemented", cfg.Settings.Provider)
	}

	var store dedup.Store
	ttl := time.Duration(cfg.Dedup.TTLHours) * time.Hour
	switch cfg.Dedup.Store {
	case config.MEMORY_DEDUP_STORE:
		store = dedup.NewMemoryStore(cfg.Dedup.MaxEntries, ttl)
	case config.REDIS_DEDUP_STORE:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Dedup.RedisAddr,
			Password: cfg.Dedup.RedisPassword,
			DB:       cfg.Dedup.RedisDB,
		})
		a.closers = append(a.closers, func() { _ = client.Close() })
		store = dedup.NewRedisStore(client, ttl)
	default:
		return nil, fmt.Errorf("dedup store of type %s not implemented", cfg.Dedup.Store)
	}

	notifier, err := output.NewNotifier(&cfg.Notifier)
	if err != nil {
		return nil, err
	}
	fetcher, err := fetch.NewFetcher(&cfg.Fetcher)
	if err != nil {
		return nil, err
	}
	a.collector, err = metrics.NewCollector()
	if err != nil {
		return nil, err
	}

	var reposts *dedup.RepostDetector
	if cfg.Dedup.DetectReposts {
		reposts = dedup.NewRepostDetector(0, 0)
	}

	a.engine, err = engine.New(engine.Options{
		Settings:  a.settings,
		Sources:   a.registry,
		Fetcher:   fetcher,
		Browser:   browser.NewManager(&cfg.Browser),
		Dedup:     store,
		Notifier:  notifier,
		Health:    health.NewTracker(cfg.Breaker.Threshold, time.Duration(cfg.Breaker.WindowMinutes)*time.Minute),
		History:   metrics.NewHistory(0),
		Collector: a.collector,
		Reposts:   reposts,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// startWorkers starts one worker per configured (user, source) pair and
// returns how many came up. A pair that fails to start is logged and
// skipped so a single bad source does not block the rest.
func startWorkers(a *app, cfg *config.Config, user string) int {
	started := 0
	for _, w := range cfg.Workers {
		if user != "" && w.User != user {
			continue
		}
		for _, source := range w.Sources {
			if err := a.engine.Start(w.User, source); err != nil {
				slog.Error(fmt.Sprintf("error starting worker for user %s on %s: %v", w.User, source, err))
				continue
			}
			started++
		}
	}
	return started
}

type RunCmd struct {
	Config string `short:"c" default:"./config.yaml" help:"The location of the configuration file."`
	User   string `short:"u" help:"Only start the workers of this user, if set."`
	Stdout bool   `short:"o" help:"If set to true new listings will be written to stdout despite any other existing notifier configuration."`
}

func (rc *RunCmd) Run() error {
	_ = godotenv.Load()

	cfg, err := config.NewConfig(rc.Config)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	if rc.Stdout {
		cfg.Notifier.Type = output.STDOUT_NOTIFIER_TYPE
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer a.Close()

	started := startWorkers(a, cfg, rc.User)
	if started == 0 {
		return errors.New("no workers started, check the workers section of the configuration file")
	}
	slog.Info(fmt.Sprintf("started %d workers", started))

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.collector.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			slog.Info(fmt.Sprintf("serving metrics on %s/metrics", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error(fmt.Sprintf("metrics server failed: %v", err))
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down, waiting for running iterations to finish")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := a.engine.Shutdown(shutdownCtx); err != nil {
		slog.Error(fmt.Sprintf("error during shutdown: %v", err))
	}

	printRunSummary(os.Stdout, a.engine)
	return nil
}

// printRunSummary prints a per-source overview of the last 24 hours,
// the same numbers the watch dashboard shows live.
func printRunSummary(out io.Writer, e *engine.Engine) {
	workers := e.Workers()
	if len(workers) == 0 {
		return
	}
	table := tablewriter.NewWriter(out)
	table.Header([]string{"source", "runs 24h", "success rate", "new listings", "grade"})
	seen := map[string]bool{}
	for _, w := range workers {
		if seen[w.Source] {
			continue
		}
		seen[w.Source] = true
		s := e.Summary(w.Source, metrics.WindowDay)
		table.Append([]string{
			w.Source,
			strconv.Itoa(s.TotalRuns),
			fmt.Sprintf("%.0f%%", s.SuccessRate*100),
			strconv.Itoa(s.TotalListings),
			string(e.Grade(w.Source, metrics.WindowDay)),
		})
	}
	table.Render()
}

type WatchCmd struct {
	Config  string `short:"c" default:"./config.yaml" help:"The location of the configuration file."`
	User    string `short:"u" help:"Only start the workers of this user, if set."`
	Refresh int    `short:"r" default:"2000" help:"Dashboard refresh interval in milliseconds."`
}

func (wc *WatchCmd) Run() error {
	_ = godotenv.Load()

	cfg, err := config.NewConfig(wc.Config)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer a.Close()

	started := startWorkers(a, cfg, wc.User)
	if started == 0 {
		return errors.New("no workers started, check the workers section of the configuration file")
	}

	// The dashboard owns the terminal until the user quits with q or
	// Escape, then the workers are shut down.
	dashErr := watch.New(a.engine, time.Duration(wc.Refresh)*time.Millisecond).Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.engine.Shutdown(shutdownCtx); err != nil {
		slog.Error(fmt.Sprintf("error during shutdown: %v", err))
	}
	return dashErr
}

type CheckCmd struct {
	Config string `short:"c" default:"./config.yaml" help:"The location of the configuration file."`
}

func (cc *CheckCmd) Run() error {
	_ = godotenv.Load()

	cfg, err := config.NewConfig(cc.Config)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	defer a.Close()

	fmt.Printf("configuration ok, %d sources known\n", len(a.registry.Names()))

	failures := 0
	for _, w := range cfg.Workers {
		for _, source := range w.Sources {
			if _, err := a.settings.Get(ctx, w.User, source); err != nil {
				slog.Error(fmt.Sprintf("settings check failed for user %s on %s: %v", w.User, source, err))
				failures++
			}
		}
	}
	if failures == 0 {
		fmt.Println("settings ok")
	}

	if err := a.engine.BrowserReady(ctx); err != nil {
		slog.Warn(fmt.Sprintf("browser check failed, sources with render_js will not work: %v", err))
	} else {
		fmt.Println("browser ok")
	}

	if failures > 0 {
		return fmt.Errorf("%d settings checks failed", failures)
	}
	return nil
}

type ListCmd struct {
	Config string `short:"c" default:"./config.yaml" help:"The location of the configuration file. Builtin sources are listed even when the file does not exist."`
	Show   string `short:"s" help:"Print the named source profile as yaml instead of listing names. The output can be dropped into the sources directory as a starting point for a custom profile."`
}

func (lc *ListCmd) Run() error {
	registry := sources.NewRegistry()
	if cfg, err := config.NewConfig(lc.Config); err == nil && cfg.SourcesDir != "" {
		if err := registry.LoadDir(cfg.SourcesDir); err != nil {
			slog.Error(fmt.Sprintf("%v", err))
			return err
		}
	}

	if lc.Show != "" {
		p, err := registry.Get(lc.Show)
		if err != nil {
			slog.Error(fmt.Sprintf("%v", err))
			return err
		}
		out := struct {
			Sources []*sources.Profile `yaml:"sources"`
		}{Sources: []*sources.Profile{p}}
		yamlData, err := yaml.Marshal(&out)
		if err != nil {
			slog.Error(fmt.Sprintf("error while marshalling. %v", err))
			return err
		}
		fmt.Print(string(yamlData))
		return nil
	}

	for _, name := range registry.Names() {
		fmt.Println(name)
	}
	return nil
}

func getVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			return buildInfo.Main.Version
		}
	}
	return version
}

func main() {
	cli := cli{
		Version: VersionFlag(getVersion()),
	}

	ctx := kong.Parse(&cli,
		kong.Vars{
			"version": string(cli.Version),
		})

	log.Debug = cli.Debug
	log.InitializeDefaultLogger()

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
