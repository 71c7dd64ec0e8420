// Package app orchestrates process startup: load config, wire the
// logger, stand up both tables, the ingest channel and batcher, the
// applier, both transports, the metrics pipeline, the audit sink, and
// the websocket hub, then run until a shutdown signal arrives.
//
// Grounded on internal/app/bootstrap.go: a Bootstrap struct holding the
// wired components, an Initialize step, and a main.go that wires
// gateways onto the sequencer's inbox the same way this wires
// connection handlers onto the ingest channel.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tradingengine/internal/applier"
	"tradingengine/internal/config"
	"tradingengine/internal/domain"
	"tradingengine/internal/event"
	"tradingengine/internal/infra"
	"tradingengine/internal/ingest"
	"tradingengine/internal/logging"
	"tradingengine/internal/metrics"
	"tradingengine/internal/metrics/audit"
	"tradingengine/internal/table"
	"tradingengine/internal/transport"
	"tradingengine/internal/wshub"
)

// Bootstrap holds every wired component so tests and cmd/server can
// both reach into it without re-deriving the wiring.
type Bootstrap struct {
	Config Config

	OrderBook *table.Table
	TradeBook *table.Table

	Channel *ingest.Channel
	Batcher *ingest.Batcher
	Applier *applier.Applier

	Metrics *metrics.Pipeline
	Audit   *audit.Sink
	Hub     *wshub.Hub
	Server  *transport.Server

	dashboard *http.Server
	logCloser interface{ Close() error }
}

// Config is a thin alias kept local to app so this package's public
// surface doesn't leak internal/config's import path to every caller.
type Config = config.Config

// New loads configuration from configPath and wires every component.
// It does not start any goroutines; call Run for that.
func New(configPath string) (*Bootstrap, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	closer, err := logging.Setup(cfg.LogDirectory, slog.LevelInfo)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: logging: %w", err)
	}

	event.Warmup(cfg.BatchSize)
	slog.Info("event pool warmed up", slog.Int("size", cfg.BatchSize))

	orderBook := table.New(domain.OrderBook)
	tradeBook := table.New(domain.TradeBook)

	channel := ingest.NewChannel(cfg.BatchSize * 4)
	batcher := ingest.NewBatcher(channel, cfg.BatchSize, time.Duration(cfg.BatchTimeoutMs)*time.Millisecond)

	hub := wshub.New()

	var auditSink *audit.Sink
	if cfg.EnableMetrics {
		auditSink, err = audit.Open(cfg.AuditDBPath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: audit: %w", err)
		}
	}

	metricsDir := ""
	if cfg.EnableMetrics {
		metricsDir = cfg.MetricsDirectory
	}
	pipeline := metrics.New(metricsDir)

	server := transport.New(fmt.Sprintf(":%d", cfg.TCPPort), cfg.PipeName, cfg.TCPBufferSize, channel)

	a := applier.New(orderBook, tradeBook, func(batch applier.BatchApplied) {
		hub.Broadcast(batch)
		if auditSink != nil {
			auditSink.RecordBatch(context.Background(), time.Now().UnixMilli(), server.ParseErrors(), batch)
		}
	})
	if cfg.EnableMetrics {
		a.SetMetrics(pipeline)
		pipeline.SetOnSummary(func(s metrics.Summary) { hub.Broadcast(s) })
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeHTTP)
	dashboard := &http.Server{Addr: fmt.Sprintf(":%d", cfg.DashboardPort), Handler: mux}

	return &Bootstrap{
		Config:    cfg,
		OrderBook: orderBook,
		TradeBook: tradeBook,
		Channel:   channel,
		Batcher:   batcher,
		Applier:   a,
		Metrics:   pipeline,
		Audit:     auditSink,
		Hub:       hub,
		Server:    server,
		dashboard: dashboard,
		logCloser: closer,
	}, nil
}

// Run starts every background component and blocks until ctx is
// cancelled, then shuts everything down in reverse dependency order.
func (b *Bootstrap) Run(ctx context.Context) error {
	workDir := infra.GetWorkspaceDir()
	if err := infra.EnsureDir(workDir); err != nil {
		return fmt.Errorf("app: workspace dir: %w", err)
	}
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	defer unlock()

	if b.Config.EnableMetrics {
		if err := b.Metrics.Start(); err != nil {
			return fmt.Errorf("app: metrics start: %w", err)
		}
	}

	// runCtx is cancelled whenever Run decides to shut down, whether that
	// is the caller's ctx firing or either server exiting on its own, so
	// every background component always gets a shutdown signal instead
	// of leaking past a server error that left the caller's ctx alive.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// batches is closed by the batcher goroutine once it has emitted its
	// final post-cancellation batch, so the applier's next drains every
	// batch — including that final one — before it ever sees the channel
	// close, with no race against ctx.Done() on either side (§5).
	batches := make(chan []*domain.DataMessage, 4)
	batcherDone := make(chan struct{})
	go func() {
		defer close(batches)
		defer close(batcherDone)
		b.Batcher.Run(runCtx, func(batch []*domain.DataMessage) {
			batches <- batch
		})
	}()
	applierDone := make(chan struct{})
	go func() {
		defer close(applierDone)
		b.Applier.Run(runCtx, func(ctx context.Context) ([]*domain.DataMessage, bool) {
			batch, ok := <-batches
			return batch, ok
		})
	}()

	serverErr := make(chan error, 1)
	go func() { serverErr <- b.Server.Run(runCtx) }()

	dashboardErr := make(chan error, 1)
	go func() {
		if err := b.dashboard.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			dashboardErr <- err
		}
	}()

	slog.InfoContext(ctx, "server operational",
		slog.Int("tcp_port", b.Config.TCPPort), slog.String("pipe", b.Config.PipeName),
		slog.Int("dashboard_port", b.Config.DashboardPort))

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			slog.Error("transport server exited", slog.Any("error", err))
		}
	case err := <-dashboardErr:
		slog.Error("dashboard server exited", slog.Any("error", err))
	}
	cancelRun()

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := b.dashboard.Shutdown(shutdownCtx); err != nil {
		slog.Error("dashboard server shutdown", slog.Any("error", err))
	}
	cancel()

	<-batcherDone
	<-applierDone

	if b.Config.EnableMetrics {
		b.Metrics.Dispose()
	}
	if b.Audit != nil {
		b.Audit.Close()
	}
	if b.logCloser != nil {
		b.logCloser.Close()
	}
	return nil
}
