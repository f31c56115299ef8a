// Package storefront parses storefront command flags and launches the
// storefront runtime.
package storefront

import (
	"context"
	"flag"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/platform/blob"
	entrypoint "github.com/acdrainwiz/drainwiz/internal/platform/cmd"
	"github.com/acdrainwiz/drainwiz/internal/platform/logging"
	"github.com/acdrainwiz/drainwiz/internal/services/account/magiclink"
	"github.com/acdrainwiz/drainwiz/internal/services/account/passkey"
	"github.com/acdrainwiz/drainwiz/internal/services/botdefense"
	"github.com/acdrainwiz/drainwiz/internal/services/email"
	"github.com/acdrainwiz/drainwiz/internal/services/fulfillment/shipstation"
	"github.com/acdrainwiz/drainwiz/internal/services/payments"
	storefrontapp "github.com/acdrainwiz/drainwiz/internal/services/storefront/app"
)

// Config holds storefront command configuration.
type Config struct {
	HTTPAddr       string        `env:"DRAINWIZ_HTTP_ADDR" envDefault:":8080"`
	OrdersDBPath   string        `env:"DRAINWIZ_ORDERS_DB_PATH" envDefault:"data/orders.db"`
	FormsDBPath    string        `env:"DRAINWIZ_FORMS_DB_PATH" envDefault:"data/forms.db"`
	AccountsDBPath string        `env:"DRAINWIZ_ACCOUNTS_DB_PATH" envDefault:"data/accounts.db"`
	SessionSecret  string        `env:"DRAINWIZ_SESSION_SECRET"`
	SessionTTL     time.Duration `env:"DRAINWIZ_SESSION_TTL" envDefault:"720h"`
	TrustedProxies []string      `env:"DRAINWIZ_TRUSTED_PROXIES" envSeparator:","`
	CDNBase        string        `env:"DRAINWIZ_IMAGE_CDN_BASE"`
	ShippingTTL    time.Duration `env:"DRAINWIZ_SHIPPING_CACHE_TTL" envDefault:"15m"`
	LogLevel       string        `env:"DRAINWIZ_LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"DRAINWIZ_LOG_FORMAT" envDefault:"json"`

	Stripe      payments.Config
	ShipStation shipstation.Config
	Email       email.Config
	Blob        blob.Config
	Bots        botdefense.Config
	MagicLink   magiclink.Config
	Passkey     passkey.Config
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.OrdersDBPath, "orders-db-path", cfg.OrdersDBPath, "The orders SQLite database path")
	fs.StringVar(&cfg.FormsDBPath, "forms-db-path", cfg.FormsDBPath, "The form submissions SQLite database path")
	fs.StringVar(&cfg.AccountsDBPath, "accounts-db-path", cfg.AccountsDBPath, "The contractor accounts SQLite database path")
	fs.StringVar(&cfg.Blob.Driver, "blob-driver", cfg.Blob.Driver, "Blob store driver: local or s3")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the storefront runtime.
func Run(ctx context.Context, cfg Config) error {
	log, err := logging.Setup(logging.Options{
		Service: entrypoint.ServiceStorefront,
		Level:   cfg.LogLevel,
		Format:  logging.Format(cfg.LogFormat),
	})
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceStorefront, func(ctx context.Context) error {
		return storefrontapp.Run(ctx, storefrontapp.RuntimeConfig{
			HTTPAddr:       cfg.HTTPAddr,
			OrdersDBPath:   cfg.OrdersDBPath,
			FormsDBPath:    cfg.FormsDBPath,
			AccountsDBPath: cfg.AccountsDBPath,
			SessionSecret:  cfg.SessionSecret,
			SessionTTL:     cfg.SessionTTL,
			TrustedProxies: cfg.TrustedProxies,
			CDNBase:        cfg.CDNBase,
			ShippingTTL:    cfg.ShippingTTL,
			Stripe:         cfg.Stripe,
			ShipStation:    cfg.ShipStation,
			Email:          cfg.Email,
			Blob:           cfg.Blob,
			Bots:           cfg.Bots,
			MagicLink:      cfg.MagicLink,
			Passkey:        cfg.Passkey,
			Log:            log,
		})
	})
}
