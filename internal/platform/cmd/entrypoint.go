// Package cmd holds the startup steps every drainwiz command shares:
// config loading, flag parsing and the telemetry-wrapped run loop.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/platform/config"
	"github.com/acdrainwiz/drainwiz/internal/platform/otel"
	"github.com/sirupsen/logrus"
)

const otelShutdownTimeout = 5 * time.Second

// Service names, used for the log "service" field and the trace resource.
const (
	ServiceAdmin      = "admin"
	ServiceMCP        = "mcp"
	ServiceStorefront = "storefront"
	ServiceWorker     = "worker"
)

// ParseConfig loads a local .env file and then environment defaults into cfg.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags. Parse failures are usage errors.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return config.Usage(err)
	}
	if rest := fs.Args(); len(rest) > 0 {
		return config.Usage(fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " ")))
	}
	return nil
}

// RunWithTelemetry sets up tracing for service, runs fn and flushes spans
// when fn returns.
func RunWithTelemetry(ctx context.Context, service string, fn func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return fmt.Errorf("service name is required")
	}
	if fn == nil {
		return fmt.Errorf("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log := logrus.WithField("service", service)

	otelCfg, err := otel.LoadConfig()
	if err != nil {
		return err
	}
	shutdown, err := otel.Setup(ctx, service, otelCfg)
	if err != nil {
		return err
	}
	if otelCfg.Active() {
		log.WithField("endpoint", otelCfg.Endpoint).Info("trace export enabled")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("otel shutdown")
		}
	}()

	started := time.Now()
	err = fn(ctx)
	log.WithField("uptime", time.Since(started).Round(time.Second).String()).Info("stopped")
	return err
}
