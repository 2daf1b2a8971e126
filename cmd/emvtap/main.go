package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/emvtap/internal/config"
	"github.com/danmuck/emvtap/internal/emv"
	"github.com/danmuck/emvtap/internal/logging"
	"github.com/danmuck/emvtap/internal/observability"
	"github.com/danmuck/emvtap/internal/server"
	"github.com/danmuck/emvtap/internal/transport"
)

type options struct {
	configPath string
	scriptPath string
	once       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to the emvtap TOML config; defaults apply when empty")
	flag.StringVar(&opts.scriptPath, "script", "", "scripted card file; selects the script driver")
	flag.BoolVar(&opts.once, "once", false, "exit after the first tap cycle")
	flag.Parse()

	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		stop()
		log.Fatal().Err(err).Msg("emvtap stopped")
	}
}

func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if opts.scriptPath != "" {
		cfg.Reader.Driver = config.DriverScript
		cfg.Reader.Script = opts.scriptPath
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func configureLogger(cfg config.LogConfig) zerolog.Logger {
	lc := logging.DefaultConfig(logging.ProfileRuntime)
	lc.Level = cfg.Level
	lc.JSON = cfg.JSON
	logging.ApplyEnvOverrides(&lc)
	return logging.Apply(lc)
}

func setupTracing(cfg config.TracingConfig) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch cfg.Exporter {
	case config.TraceStdout:
		return observability.InitTracing(os.Stdout, cfg.Pretty)
	case config.TraceFile:
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open span file: %w", err)
		}
		shutdown, err := observability.InitTracing(f, cfg.Pretty)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return func(ctx context.Context) error {
			return errors.Join(shutdown(ctx), f.Close())
		}, nil
	default:
		return noop, nil
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := configureLogger(cfg.Log)
	mainLog := observability.Component("main")
	mainLog.Info().
		Str("config", opts.configPath).
		Str("driver", cfg.Reader.Driver).
		Int("terminal_tags", cfg.TerminalData().Len()).
		Str("tracing", cfg.Tracing.Exporter).
		Msg("loaded config")

	drv, err := transport.Open(cfg.Reader, logger)
	if err != nil {
		return fmt.Errorf("open %s transport: %w", cfg.Reader.Driver, err)
	}
	defer func() {
		if err := drv.Close(); err != nil {
			mainLog.Warn().Err(err).Msg("transport close")
		}
	}()

	shutdownTracing, err := setupTracing(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			mainLog.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	observability.RegisterMetrics()
	cycles := server.NewCycleStore()

	reader := emv.NewReader(drv, cfg.TerminalData(), emv.WithLogger(logger))
	loopCfg := emv.DefaultLoopConfig()
	loopCfg.PollInterval = cfg.Reader.PollInterval
	loopCfg.Once = opts.once
	loop := emv.NewLoop(reader, loopCfg, logger)
	loop.OnOutcome(cycles.Record)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return loop.Run(gctx)
	})
	if cfg.Metrics.Addr != "" {
		srv := server.New(cfg.Metrics.Addr, cycles, logger, server.WithCORSOrigins(cfg.Metrics.CORSOrigins...))
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}
	return g.Wait()
}
