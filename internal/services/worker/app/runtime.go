package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/platform/metrics"
	"github.com/acdrainwiz/drainwiz/internal/platform/timeouts"
	"github.com/acdrainwiz/drainwiz/internal/platform/upstream"
	"github.com/acdrainwiz/drainwiz/internal/services/email"
	"github.com/acdrainwiz/drainwiz/internal/services/fulfillment"
	"github.com/acdrainwiz/drainwiz/internal/services/fulfillment/shipstation"
	"github.com/acdrainwiz/drainwiz/internal/services/orders"
	orderssqlite "github.com/acdrainwiz/drainwiz/internal/services/orders/storage/sqlite"
	workerdomain "github.com/acdrainwiz/drainwiz/internal/services/worker/domain"
	workerstorage "github.com/acdrainwiz/drainwiz/internal/services/worker/storage"
	workersqlite "github.com/acdrainwiz/drainwiz/internal/services/worker/storage/sqlite"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls worker startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port          int
	MetricsAddr   string
	OrdersDBPath  string
	DBPath        string
	Consumer      string
	PollInterval  time.Duration
	BatchSize     int
	LeaseTTL      time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	ShipStation   shipstation.Config
	Email         email.Config
	Log           *logrus.Entry
}

const (
	defaultWorkerPort = 8089
	defaultWorkerDB   = "data/worker.db"
	defaultOrdersDB   = "data/orders.db"
)

// Run starts worker runtime dependencies and the background processing loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !cfg.ShipStation.Enabled() {
		return fmt.Errorf("shipstation credentials are required")
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultWorkerPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultWorkerDB
	}
	if strings.TrimSpace(cfg.OrdersDBPath) == "" {
		cfg.OrdersDBPath = defaultOrdersDB
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	for _, path := range []string{cfg.DBPath, cfg.OrdersDBPath} {
		if err := ensureDir(path); err != nil {
			return err
		}
	}

	workerStore, err := workersqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open worker sqlite store: %w", err)
	}
	defer func() {
		if closeErr := workerStore.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("close worker sqlite store")
		}
	}()

	orderStore, err := orderssqlite.Open(ctx, cfg.OrdersDBPath)
	if err != nil {
		return fmt.Errorf("open orders sqlite store: %w", err)
	}
	defer func() {
		if closeErr := orderStore.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("close orders sqlite store")
		}
	}()

	httpClient := &http.Client{Timeout: timeouts.Upstream}
	handlers := Handlers(
		orderStore,
		shipstation.New(cfg.ShipStation, upstream.WithHTTPClient(httpClient)),
		email.NewSender(cfg.Email, log.WithField("component", "email"), upstream.WithHTTPClient(httpClient)),
		log,
	)
	loopConfig := Config{
		Consumer:      cfg.Consumer,
		PollInterval:  cfg.PollInterval,
		BatchSize:     cfg.BatchSize,
		LeaseTTL:      cfg.LeaseTTL,
		MaxAttempts:   cfg.MaxAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		RetryMaxDelay: cfg.RetryMaxDelay,
	}.normalized()
	workerLoop := New(
		orderStore,
		newAttemptStoreRecorder(workerStore, loopConfig.Consumer),
		handlers,
		loopConfig,
		log,
	)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on worker port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("worker.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" {
		stop := serveMetrics(addr, log)
		defer stop()
	}

	log.WithField("addr", listener.Addr().String()).Info("worker health server listening")
	return workerLoop.Run(ctx)
}

// Handlers maps each order event type to its handler.
func Handlers(store fulfillment.OrderStore, ss fulfillment.OrderCreator, sender email.Sender, log *logrus.Entry) map[string]workerdomain.EventHandler {
	return map[string]workerdomain.EventHandler{
		orders.EventFulfillmentRequested: &fulfillment.Submitter{
			Orders:      store,
			ShipStation: ss,
			Log:         log.WithField("handler", orders.EventFulfillmentRequested),
		},
		orders.EventConfirmationEmail: &fulfillment.Confirmer{
			Orders: store,
			Sender: sender,
			Log:    log.WithField("handler", orders.EventConfirmationEmail),
		},
	}
}

func serveMetrics(addr string, log *logrus.Entry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: timeouts.ReadHeader}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	return nil
}

type attemptStoreRecorder struct {
	store    workerstorage.AttemptStore
	consumer string
}

func newAttemptStoreRecorder(store workerstorage.AttemptStore, consumer string) *attemptStoreRecorder {
	normalizedConsumer := strings.TrimSpace(consumer)
	if normalizedConsumer == "" {
		normalizedConsumer = defaultConsumer
	}
	return &attemptStoreRecorder{store: store, consumer: normalizedConsumer}
}

func (r *attemptStoreRecorder) RecordAttempt(ctx context.Context, attempt Attempt) error {
	if r == nil || r.store == nil {
		return nil
	}
	consumer := strings.TrimSpace(r.consumer)
	if consumer == "" {
		consumer = defaultConsumer
	}
	return r.store.RecordAttempt(ctx, workerstorage.AttemptRecord{
		EventID:      attempt.EventID,
		EventType:    attempt.EventType,
		OrderID:      attempt.OrderID,
		Consumer:     consumer,
		Outcome:      string(attempt.Outcome),
		AttemptCount: attempt.AttemptCount,
		LastError:    attempt.Error,
		Duration:     attempt.Duration,
		CreatedAt:    attempt.CreatedAt,
	})
}
