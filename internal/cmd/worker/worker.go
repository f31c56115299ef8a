// Package worker parses worker command flags and launches the worker runtime.
package worker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/acdrainwiz/drainwiz/internal/platform/cmd"
	"github.com/acdrainwiz/drainwiz/internal/platform/logging"
	"github.com/acdrainwiz/drainwiz/internal/services/email"
	"github.com/acdrainwiz/drainwiz/internal/services/fulfillment/shipstation"
	workerserver "github.com/acdrainwiz/drainwiz/internal/services/worker/app"
)

// Config holds worker command configuration.
type Config struct {
	Port          int           `env:"DRAINWIZ_WORKER_PORT" envDefault:"8089"`
	MetricsAddr   string        `env:"DRAINWIZ_WORKER_METRICS_ADDR" envDefault:":9089"`
	OrdersDBPath  string        `env:"DRAINWIZ_ORDERS_DB_PATH" envDefault:"data/orders.db"`
	DBPath        string        `env:"DRAINWIZ_WORKER_DB_PATH" envDefault:"data/worker.db"`
	Consumer      string        `env:"DRAINWIZ_WORKER_CONSUMER" envDefault:"worker-orders"`
	PollInterval  time.Duration `env:"DRAINWIZ_WORKER_POLL_INTERVAL" envDefault:"2s"`
	BatchSize     int           `env:"DRAINWIZ_WORKER_BATCH_SIZE" envDefault:"10"`
	LeaseTTL      time.Duration `env:"DRAINWIZ_WORKER_LEASE_TTL" envDefault:"30s"`
	MaxAttempts   int           `env:"DRAINWIZ_WORKER_MAX_ATTEMPTS" envDefault:"8"`
	RetryBackoff  time.Duration `env:"DRAINWIZ_WORKER_RETRY_BACKOFF" envDefault:"5s"`
	RetryMaxDelay time.Duration `env:"DRAINWIZ_WORKER_RETRY_MAX_DELAY" envDefault:"5m"`
	LogLevel      string        `env:"DRAINWIZ_LOG_LEVEL" envDefault:"info"`
	LogFormat     string        `env:"DRAINWIZ_LOG_FORMAT" envDefault:"json"`

	ShipStation shipstation.Config
	Email       email.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The worker health gRPC server port")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Address for the Prometheus /metrics endpoint (empty disables)")
	fs.StringVar(&cfg.OrdersDBPath, "orders-db-path", cfg.OrdersDBPath, "The orders SQLite database path")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The worker SQLite database path")
	fs.StringVar(&cfg.Consumer, "consumer", cfg.Consumer, "Order outbox consumer name")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Order outbox poll interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Events leased per poll")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", cfg.LeaseTTL, "Order outbox lease duration")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum processing attempts before dead-letter")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the worker runtime.
func Run(ctx context.Context, cfg Config) error {
	log, err := logging.Setup(logging.Options{
		Service: entrypoint.ServiceWorker,
		Level:   cfg.LogLevel,
		Format:  logging.Format(cfg.LogFormat),
	})
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorker, func(ctx context.Context) error {
		return workerserver.Run(ctx, workerserver.RuntimeConfig{
			Port:          cfg.Port,
			MetricsAddr:   cfg.MetricsAddr,
			OrdersDBPath:  cfg.OrdersDBPath,
			DBPath:        cfg.DBPath,
			Consumer:      cfg.Consumer,
			PollInterval:  cfg.PollInterval,
			BatchSize:     cfg.BatchSize,
			LeaseTTL:      cfg.LeaseTTL,
			MaxAttempts:   cfg.MaxAttempts,
			RetryBackoff:  cfg.RetryBackoff,
			RetryMaxDelay: cfg.RetryMaxDelay,
			ShipStation:   cfg.ShipStation,
			Email:         cfg.Email,
			Log:           log,
		})
	})
}
