package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/textwave/textwave/internal/config"
	"github.com/textwave/textwave/internal/convert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Runtime hosts the converter's operational surface: telemetry providers and
// an optional HTTP listener with health, metrics, and live job progress.
// It also implements convert.ProgressSink so the orchestrator feeds it
// directly.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	addr       string
	telClose   func(context.Context) error
	ready      atomic.Bool
	wg         sync.WaitGroup

	chunksDone metric.Int64Counter
	audioBytes metric.Int64Counter

	mu       sync.Mutex
	latest   convert.Progress
	hasJob   bool
	prevDone int
	prevByte int64
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{cfg: cfg, logger: logger}
}

// Start brings up telemetry and, when enabled, the HTTP listener. It returns
// once the listener is accepting; Shutdown tears everything down.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telClose = shutdownTelemetry

	meter := otel.Meter("github.com/textwave/textwave/internal/runtime")
	if r.chunksDone, err = meter.Int64Counter("textwave.chunks.completed",
		metric.WithDescription("Chunks successfully synthesized")); err != nil {
		r.logger.Warn("chunk counter unavailable", slog.String("error", err.Error()))
	}
	if r.audioBytes, err = meter.Int64Counter("textwave.audio.bytes",
		metric.WithDescription("Audio bytes produced")); err != nil {
		r.logger.Warn("byte counter unavailable", slog.String("error", err.Error()))
	}

	if !r.cfg.HTTP.Enabled {
		r.ready.Store(true)
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/progress", r.handleProgress)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	r.addr = ln.Addr().String()
	r.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", r.addr))
	return nil
}

// Addr reports the bound HTTP address, empty when the listener is disabled.
func (r *Runtime) Addr() string { return r.addr }

// Shutdown stops the HTTP listener and flushes telemetry.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.ready.Store(false)
	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(ctx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.telClose != nil {
		if err := r.telClose(ctx); err != nil {
			return err
		}
	}
	return nil
}

// OnProgress records the latest snapshot for /progress and feeds the
// counters. Deltas are computed against the previous report, so restored
// chunks from a resumed job count too.
func (r *Runtime) OnProgress(p convert.Progress) {
	r.mu.Lock()
	doneDelta := p.Completed - r.prevDone
	byteDelta := p.BytesWritten - r.prevByte
	if p.JobID != r.latest.JobID {
		doneDelta = p.Completed
		byteDelta = p.BytesWritten
	}
	r.latest = p
	r.hasJob = true
	r.prevDone = p.Completed
	r.prevByte = p.BytesWritten
	r.mu.Unlock()

	ctx := context.Background()
	if r.chunksDone != nil && doneDelta > 0 {
		r.chunksDone.Add(ctx, int64(doneDelta))
	}
	if r.audioBytes != nil && byteDelta > 0 {
		r.audioBytes.Add(ctx, byteDelta)
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleProgress(w http.ResponseWriter, _ *http.Request) {
	r.mu.Lock()
	p, ok := r.latest, r.hasJob
	r.mu.Unlock()

	if !ok {
		http.Error(w, "no job", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}
