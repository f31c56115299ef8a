// Package mcp parses MCP command flags and selects stdio or HTTP transport.
package mcp

import (
	"context"
	"flag"
	"net/http"

	"github.com/acdrainwiz/drainwiz/internal/platform/assets/imagecdn"
	entrypoint "github.com/acdrainwiz/drainwiz/internal/platform/cmd"
	"github.com/acdrainwiz/drainwiz/internal/platform/logging"
	"github.com/acdrainwiz/drainwiz/internal/platform/timeouts"
	"github.com/acdrainwiz/drainwiz/internal/platform/upstream"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/acdrainwiz/drainwiz/internal/services/fulfillment/shipstation"
	mcpservice "github.com/acdrainwiz/drainwiz/internal/services/mcp/service"
	"github.com/acdrainwiz/drainwiz/internal/services/shipping"
)

// Config holds MCP command configuration.
type Config struct {
	HTTPAddr  string `env:"DRAINWIZ_MCP_HTTP_ADDR" envDefault:"localhost:8081"`
	Transport string `env:"DRAINWIZ_MCP_TRANSPORT" envDefault:"stdio"`
	CDNBase   string `env:"DRAINWIZ_IMAGE_CDN_BASE"`
	LogLevel  string `env:"DRAINWIZ_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"DRAINWIZ_LOG_FORMAT" envDefault:"json"`

	ShipStation shipstation.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address (for HTTP transport)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Transport type: stdio or http")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP tool server.
func Run(ctx context.Context, cfg Config) error {
	log, err := logging.Setup(logging.Options{
		Service: entrypoint.ServiceMCP,
		Level:   cfg.LogLevel,
		Format:  logging.Format(cfg.LogFormat),
	})
	if err != nil {
		return err
	}
	cat := catalog.Default()
	opts := shipping.Options{Logger: log.WithField("component", "shipping")}
	if cfg.ShipStation.Enabled() {
		client := shipstation.New(cfg.ShipStation, upstream.WithHTTPClient(&http.Client{Timeout: timeouts.Upstream}))
		opts.Source = shipping.ShipStationSource{
			Client:     client,
			Carriers:   cfg.ShipStation.Carriers,
			FromPostal: cfg.ShipStation.FromPostal,
		}
	} else {
		log.Info("shipstation not configured, estimates use table rates")
	}

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		return mcpservice.Run(ctx, mcpservice.Config{
			Transport: cfg.Transport,
			HTTPAddr:  cfg.HTTPAddr,
		}, mcpservice.Dependencies{
			Catalog:  cat,
			Shipping: shipping.NewCalculator(cat, opts),
			CDN:      imagecdn.New(cfg.CDNBase),
			Log:      log,
		})
	})
}
