package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/doridoridoriand/omniping/internal/cli"
	"github.com/doridoridoriand/omniping/internal/config"
	"github.com/doridoridoriand/omniping/internal/engine"
	"github.com/doridoridoriand/omniping/internal/httpapi"
	"github.com/doridoridoriand/omniping/internal/log"
	"github.com/doridoridoriand/omniping/internal/metrics"
	"github.com/doridoridoriand/omniping/internal/probe"
	"github.com/doridoridoriand/omniping/internal/ui"
)

const (
	version           = "0.1.0"
	defaultTargetFile = "hosts.json"
	shutdownTimeout   = 5 * time.Second
)

type invocation struct {
	flags       cli.Flags
	targetFile  string
	showVersion bool
}

func parseArgs(args []string, stderr io.Writer) (invocation, error) {
	var inv invocation
	fs := flag.NewFlagSet("omniping", flag.ContinueOnError)
	fs.SetOutput(stderr)
	inv.flags.Register(fs)
	fs.BoolVar(&inv.showVersion, "version", false, "show version")
	fs.BoolVar(&inv.showVersion, "v", false, "show version")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: omniping [options] [target-file]\n\n")
		fmt.Fprintf(stderr, "target-file defaults to %s; .json, .yaml/.yml or line format.\n\n", defaultTargetFile)
		fmt.Fprintln(stderr, "Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return inv, err
	}
	switch fs.NArg() {
	case 0:
		inv.targetFile = defaultTargetFile
	case 1:
		inv.targetFile = fs.Arg(0)
	default:
		fs.Usage()
		return inv, fmt.Errorf("expected at most one target file, got %d", fs.NArg())
	}
	return inv, nil
}

// loadTargets falls back to the sample configuration when the file is missing or invalid.
func loadTargets(path string, logger *log.Logger) *config.Config {
	cfg, err := config.Load(path)
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		logger.LogConfigLoad(false, path, 0, err)
		logger.Warn("using default configuration", zap.String("path", path))
		return config.DefaultConfig()
	}
	logger.LogConfigLoad(true, path, len(cfg.Targets), nil)
	return cfg
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type app struct {
	opts   config.Options
	log    *log.Logger
	store  *config.Store
	engine *engine.Engine
	api    *httpapi.Server
	ui     *ui.UI
}

func newApp(inv invocation, opts config.Options, cfg *config.Config, logger *log.Logger, prober probe.Prober, clk clock.Clock) *app {
	store := config.NewStore(inv.targetFile, cfg)
	eng := engine.New(store, prober, engine.Options{
		MaxConcurrency: opts.MaxConcurrency,
		Clock:          clk,
		Logger:         logger,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.MustRegister(reg, eng)

	a := &app{
		opts:   opts,
		log:    logger,
		store:  store,
		engine: eng,
		api: httpapi.NewServer(logger.Named("http").Zap(), eng, store, httpapi.Options{
			Version: version,
			Metrics: metrics.Handler(reg),
			Clock:   clk,
		}),
	}
	if opts.UIEnable {
		a.ui = ui.New(eng, store, clk, logger)
	}
	return a
}

// run serves until ctx ends or the dashboard quits, then drains the engine.
func (a *app) run(ctx context.Context) error {
	if a.opts.AutoStart {
		res := a.engine.Start()
		a.log.Info("autostart", zap.String("message", res.Message))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("listening", zap.String("addr", a.opts.Listen))
		return httpapi.Serve(gctx, a.opts.Listen, a.api.Router())
	})
	if a.ui != nil {
		g.Go(func() error {
			return a.ui.Run(gctx)
		})
	}

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := a.engine.Shutdown(shutdownCtx); serr != nil {
		a.log.LogError("engine", serr)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// logConfig drops stderr logging while the dashboard owns the terminal.
func logConfig(opts config.Options) log.Config {
	return log.Config{
		Dir:     opts.LogDir,
		Level:   opts.LogLevel,
		Discard: opts.UIEnable,
	}
}

func main() {
	inv, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if inv.showVersion {
		fmt.Fprintf(os.Stdout, "omniping version %s\n", version)
		return
	}

	opts := config.OptionsFromEnv(os.Getenv)
	overrides := inv.flags.Overrides()
	config.ApplyOverrides(&opts, nil, overrides)

	logger, err := log.New(logConfig(opts))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := loadTargets(inv.targetFile, logger)
	config.ApplyOverrides(&opts, &cfg.Settings, overrides)
	if err := config.ValidateSettings(cfg.Settings); err != nil {
		logger.LogError("config", err)
		os.Exit(1)
	}

	clk := clock.New()
	prober := probe.Set{
		Ping: probe.NewPingProber(probe.NewPinger(opts.PingMode), clk),
		HTTP: probe.NewHTTPProber(clk),
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := newApp(inv, opts, cfg, logger, prober, clk).run(ctx); err != nil {
		logger.LogError("main", err)
		os.Exit(1)
	}
}
