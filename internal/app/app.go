// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	membridge "github.com/groupsio/membridge"
	"github.com/groupsio/membridge/internal/api"
	"github.com/groupsio/membridge/internal/credentials"
	"github.com/groupsio/membridge/internal/events"
	"github.com/groupsio/membridge/internal/gateway"
	"github.com/groupsio/membridge/internal/ingest"
	"github.com/groupsio/membridge/internal/metrics"
	"github.com/groupsio/membridge/internal/supervisor"
	"github.com/groupsio/membridge/internal/synthesis"
)

// ShutdownTimeout bounds App.Shutdown's ordered teardown, mirroring the
// teacher's internal/app.App.Shutdown 30s context timeout.
const ShutdownTimeout = 30 * time.Second

// CognifyWorkers is the worker-goroutine count for the default in-process
// cognify queue (spec.md §4.6's background job hand-off).
const CognifyWorkers = 2

// CognifyQueueCapacity bounds the default in-process cognify queue.
const CognifyQueueCapacity = 64

// Options configures App.New, mirroring the teacher's app.Options shape
// (ConfigPath/Host/Port/Debug/Version) generalized to this repository's
// membridge.Host abstraction in place of the teacher's own config loader.
type Options struct {
	Host membridge.Host
	Bind string
	Port int
	// Bus, when set, is reused as the App's internal event bus instead of
	// constructing a new one in Initialize. cmd/membridged passes the same
	// bus it gave hostadapter.Standalone so the Host's Notifier publishes
	// onto the bus the diagnostics stream actually tails.
	Bus     events.EventBus
	Version string
}

// App composes every component package into one runnable daemon.
// Grounded on the teacher's internal/app.App: the same
// New/Initialize/Start/Run/Shutdown/Stop lifecycle shape, generalized
// from N named services with a worktree/workflow/terminal surface down
// to this repository's single worker plus HTTP façade.
type App struct {
	mu sync.RWMutex

	opts    Options
	host    membridge.Host
	log     *zap.Logger
	version string

	bus         events.EventBus
	metrics     *metrics.Registry
	supervisor  *supervisor.Supervisor
	gateway     *gateway.Gateway
	coordinator *ingest.Coordinator
	cognifyQ    *ingest.InProcessQueue
	apiServer   *api.Server

	done     chan struct{}
	stopOnce sync.Once
}

// New constructs an App from opts. It does not start anything; call
// Initialize then Start, or Run to do both and block until shutdown.
func New(opts Options) (*App, error) {
	if opts.Host == nil {
		return nil, fmt.Errorf("app: Host is required")
	}

	cfg := opts.Host.Config()
	log, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("construct logger: %w", err)
	}

	return &App{
		opts:    opts,
		host:    opts.Host,
		log:     log,
		version: opts.Version,
		done:    make(chan struct{}),
	}, nil
}

// newLogger builds a zap.Logger honoring Config.Logging.Level, the
// ambient logging concern spec.md's distillation omits (SPEC_FULL.md §9).
func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = lvl
	}
	return zcfg.Build()
}

// Initialize wires every component's collaborators. Grounded on the
// teacher's App.Initialize building worktree/workflow/log/trace/crash
// managers in dependency order before Start touches any of them.
func (a *App) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg := a.host.Config()

	a.bus = a.opts.Bus
	if a.bus == nil {
		a.bus = events.NewMemoryEventBus(events.MemoryBusConfig{Logger: a.log})
	}
	a.bus.SetDefaultWorkspace(a.host.WorkspaceRoot())
	a.metrics = metrics.NewRegistry()

	a.supervisor = supervisor.New(supervisor.Config{
		WorkspaceRoot:  a.host.WorkspaceRoot(),
		Namespace:      "membridge",
		Spawner:        NewSpawner(a.host),
		Handshaker:     NewHandshaker(),
		Bus:            a.bus,
		Log:            a.log.Named("supervisor"),
		IdleTimeout:    time.Duration(cfg.Bridge.IdleTimeoutMinutes) * time.Minute,
		RequestTimeout: 60 * time.Second,
	})

	a.gateway = gateway.New(gateway.Config{
		MaxConcurrentRequests: cfg.Gateway.MaxConcurrentRequests,
		RateLimitPerMinute:    cfg.Gateway.RateLimitPerMinute,
		MaxQueueSize:          cfg.Gateway.MaxQueueSize,
		RequestTimeout:        60 * time.Second,
		Bridge:                a.supervisor,
		Credentials:           credentials.NewProvider(a.host.Secrets()),
		Synthesizer: synthesis.New(synthesis.Config{
			Model:            a.host.Model(),
			MaxContextTokens: cfg.Context.MaxTokens,
			Notifier:         hostNotifierAdapter{a.host},
			Bus:              a.bus,
			Log:              a.log.Named("synthesis"),
		}),
		Metrics: a.metrics,
		Bus:     a.bus,
		Log:     a.log.Named("gateway"),
	})

	a.cognifyQ = ingest.NewInProcessQueue(CognifyQueueCapacity, CognifyWorkers, a.runCognifyJob)

	a.coordinator = ingest.New(ingest.Config{
		Bridge:  a.supervisor,
		Queue:   a.cognifyQ,
		Metrics: a.metrics,
		Bus:     a.bus,
		Log:     a.log.Named("ingest"),
	})

	a.apiServer = api.NewServer(api.ServerConfig{Host: a.opts.Bind, Port: a.opts.Port}, api.Dependencies{
		Supervisor:  a.supervisor,
		Gateway:     a.gateway,
		Coordinator: a.coordinator,
		Bus:         a.bus,
		Log:         a.log.Named("api"),
	})

	return nil
}

// runCognifyJob dispatches a staged payload's background cognify call
// (spec.md §4.6 "hand cognification off to the background job queue").
// A failure here only logs and counts: the payload is already staged,
// so cognify is a best-effort enrichment pass, not a durability concern.
func (a *App) runCognifyJob(job ingest.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	params := map[string]interface{}{
		"operationId": job.OperationID,
		"content":     job.Payload.Content,
		"metadata":    job.Payload.Metadata,
	}
	if _, err := a.supervisor.Call(ctx, "cognify", params, 5*time.Minute); err != nil {
		a.log.Warn("background cognify job failed", zap.String("operationId", job.OperationID), zap.Error(err))
		a.metrics.IngestOutcome.WithLabelValues(metrics.IngestOutcomeFailed).Inc()
	}
}

// Start launches the HTTP server in the background. The worker itself is
// not spawned here: Supervisor starts it lazily on the first admitted
// Gateway/ingest call, per spec.md §4.4's on-demand startup model.
func (a *App) Start(ctx context.Context) error {
	a.mu.RLock()
	server := a.apiServer
	a.mu.RUnlock()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("api server error", zap.Error(err))
		}
	}()

	return nil
}

// Run initializes, starts, and blocks until a shutdown signal, context
// cancellation, or Stop() call, then runs an ordered Shutdown.
func (a *App) Run(ctx context.Context) error {
	if err := a.Initialize(ctx); err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
		a.log.Info("context cancelled, shutting down")
	case <-a.done:
		a.log.Info("shutdown requested")
	}

	return a.Shutdown(context.Background())
}

// Shutdown tears every component down in reverse dependency order,
// bounded by ShutdownTimeout. Grounded on the teacher's App.Shutdown
// (API server first, then long-lived managers, event bus last).
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	if a.apiServer != nil {
		if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("api server shutdown error", zap.Error(err))
		}
	}

	if a.supervisor != nil {
		if err := a.supervisor.Stop(shutdownCtx); err != nil {
			a.log.Warn("supervisor stop error", zap.Error(err))
		}
		a.supervisor.Close()
	}

	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn("event bus close error", zap.Error(err))
		}
	}

	_ = a.log.Sync()
	return nil
}

// Stop signals Run's select loop to begin shutdown. Safe to call more
// than once.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
	})
}

// hostNotifierAdapter adapts membridge.Host.Notifier() (which may be nil)
// into synthesis.Notifier, since a nil interface value assigned through
// a concrete wrapper still reaches synthesis.Config.Notifier as non-nil
// and would panic on first use; this keeps the nil check at the point
// where it is actually safe to make.
type hostNotifierAdapter struct {
	host membridge.Host
}

func (h hostNotifierAdapter) Notify(ctx context.Context, message string) error {
	notifier := h.host.Notifier()
	if notifier == nil {
		return nil
	}
	return notifier.Notify(ctx, message)
}
