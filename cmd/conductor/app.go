package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/backend"
	"github.com/aristath/conductor/internal/config"
	"github.com/aristath/conductor/internal/logging"
	"github.com/aristath/conductor/internal/metrics"
	"github.com/aristath/conductor/internal/orchestrator"
	"github.com/aristath/conductor/internal/persistence"
)

// app carries global flags and the factories commands build their runtime from.
type app struct {
	configPath string
	logLevel   string
	out        io.Writer

	buildRegistry func(*config.Config, *backend.ProcessManager) (*agent.Registry, error)
	openStore     func(ctx context.Context, path string) (persistence.Store, error)
}

func defaultApp() *app {
	return &app{
		out:           os.Stdout,
		buildRegistry: orchestrator.BuildRegistry,
		openStore: func(ctx context.Context, path string) (persistence.Store, error) {
			return persistence.NewSQLiteStore(ctx, path)
		},
	}
}

func (a *app) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// runtime is everything a running command needs.
type runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	pm        *backend.ProcessManager
	registry  *agent.Registry
	store     persistence.Store
	collector *metrics.Collector
	server    *http.Server
}

type runtimeOptions struct {
	quiet bool // keep logs off the terminal while a TUI owns it
}

// start builds the runtime. Cancelling ctx kills every provider subprocess.
func (a *app) start(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if !opts.quiet || len(cfg.Log.OutputPaths) > 0 {
		if logger, err = logging.New(cfg.Log); err != nil {
			return nil, err
		}
	}

	rt := &runtime{cfg: cfg, logger: logger, pm: backend.NewProcessManager()}
	context.AfterFunc(ctx, func() {
		if err := rt.pm.KillAll(); err != nil {
			logger.Warn("failed to kill provider processes", zap.Error(err))
		}
	})

	if rt.registry, err = a.buildRegistry(cfg, rt.pm); err != nil {
		rt.Close()
		return nil, err
	}

	if cfg.Storage.Enabled {
		path, err := cfg.ResolveStoragePath()
		if err != nil {
			rt.Close()
			return nil, err
		}
		if rt.store, err = a.openStore(ctx, path); err != nil {
			rt.Close()
			return nil, fmt.Errorf("opening run archive: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	rt.collector = metrics.NewCollector(cfg.Metrics.Namespace, reg, logger)
	if cfg.Metrics.Addr != "" {
		rt.server = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := rt.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	}

	return rt, nil
}

func metricsMux(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	return mux
}

func (rt *runtime) orchestrator(extra ...orchestrator.Option) (*orchestrator.Orchestrator, error) {
	opts := []orchestrator.Option{
		orchestrator.WithLogger(rt.logger),
		orchestrator.WithMetrics(rt.collector),
	}
	if rt.store != nil {
		opts = append(opts, orchestrator.WithStore(rt.store))
	}
	return orchestrator.New(rt.registry, orchestrator.FromConfig(rt.cfg), append(opts, extra...)...)
}

// Close releases everything start acquired.
func (rt *runtime) Close() {
	if rt.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rt.server.Shutdown(ctx)
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Warn("closing run archive", zap.Error(err))
		}
	}
	if rt.registry != nil {
		if err := rt.registry.Close(); err != nil {
			rt.logger.Warn("closing agents", zap.Error(err))
		}
	}
	rt.pm.KillAll()
	rt.logger.Sync()
}

// openArchive opens only the run archive, for read-only commands.
func (a *app) openArchive(ctx context.Context) (persistence.Store, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	path, err := cfg.ResolveStoragePath()
	if err != nil {
		return nil, err
	}
	return a.openStore(ctx, path)
}
