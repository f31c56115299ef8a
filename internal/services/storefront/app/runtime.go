// Package app assembles the storefront's stores, upstream clients and
// services, then serves the storefront HTTP handler.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/platform/assets/imagecdn"
	"github.com/acdrainwiz/drainwiz/internal/platform/blob"
	"github.com/acdrainwiz/drainwiz/internal/platform/httpx"
	"github.com/acdrainwiz/drainwiz/internal/platform/timeouts"
	"github.com/acdrainwiz/drainwiz/internal/platform/upstream"
	"github.com/acdrainwiz/drainwiz/internal/services/account"
	"github.com/acdrainwiz/drainwiz/internal/services/account/magiclink"
	"github.com/acdrainwiz/drainwiz/internal/services/account/passkey"
	accountservice "github.com/acdrainwiz/drainwiz/internal/services/account/service"
	accountsqlite "github.com/acdrainwiz/drainwiz/internal/services/account/storage/sqlite"
	"github.com/acdrainwiz/drainwiz/internal/services/botdefense"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/acdrainwiz/drainwiz/internal/services/checkout"
	"github.com/acdrainwiz/drainwiz/internal/services/email"
	"github.com/acdrainwiz/drainwiz/internal/services/forms"
	formssqlite "github.com/acdrainwiz/drainwiz/internal/services/forms/storage/sqlite"
	"github.com/acdrainwiz/drainwiz/internal/services/fulfillment/shipstation"
	orderssqlite "github.com/acdrainwiz/drainwiz/internal/services/orders/storage/sqlite"
	"github.com/acdrainwiz/drainwiz/internal/services/payments"
	"github.com/acdrainwiz/drainwiz/internal/services/shipping"
	"github.com/acdrainwiz/drainwiz/internal/services/storefront"
	"github.com/sirupsen/logrus"
)

// RuntimeConfig controls storefront startup and its dependencies.
type RuntimeConfig struct {
	HTTPAddr       string
	OrdersDBPath   string
	FormsDBPath    string
	AccountsDBPath string
	SessionSecret  string
	SessionTTL     time.Duration
	TrustedProxies []string
	CDNBase        string
	ShippingTTL    time.Duration

	Stripe      payments.Config
	ShipStation shipstation.Config
	Email       email.Config
	Blob        blob.Config
	Bots        botdefense.Config
	MagicLink   magiclink.Config
	Passkey     passkey.Config
	Log         *logrus.Entry
}

const (
	defaultHTTPAddr   = ":8080"
	defaultOrdersDB   = "data/orders.db"
	defaultFormsDB    = "data/forms.db"
	defaultAccountsDB = "data/accounts.db"
)

// Run opens every store, builds the services and serves until the context
// ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.normalized()
	log := cfg.Log

	proxies, err := httpx.ParseProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}
	sessions, err := account.NewSessions(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}
	for _, path := range []string{cfg.OrdersDBPath, cfg.FormsDBPath, cfg.AccountsDBPath} {
		if err := ensureDir(path); err != nil {
			return err
		}
	}

	var closers []namedCloser
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.WithError(err).Warnf("close %s", closers[i].name)
			}
		}
	}()

	orderStore, err := orderssqlite.Open(ctx, cfg.OrdersDBPath)
	if err != nil {
		return fmt.Errorf("open orders sqlite store: %w", err)
	}
	closers = append(closers, namedCloser{"orders sqlite store", orderStore})

	formStore, err := formssqlite.Open(ctx, cfg.FormsDBPath)
	if err != nil {
		return fmt.Errorf("open forms sqlite store: %w", err)
	}
	closers = append(closers, namedCloser{"forms sqlite store", formStore})

	accountStore, err := accountsqlite.Open(ctx, cfg.AccountsDBPath)
	if err != nil {
		return fmt.Errorf("open accounts sqlite store: %w", err)
	}
	closers = append(closers, namedCloser{"accounts sqlite store", accountStore})

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	httpClient := &http.Client{Timeout: timeouts.Upstream}
	cat := catalog.Default()
	sender := email.NewSender(cfg.Email, log.WithField("component", "email"), upstream.WithHTTPClient(httpClient))

	bots, err := botdefense.New(cfg.Bots, log.WithField("component", "botdefense"))
	if err != nil {
		return fmt.Errorf("build bot defense: %w", err)
	}

	var gateway payments.Gateway
	if cfg.Stripe.Enabled() {
		gateway = payments.NewStripe(cfg.Stripe, httpClient)
	} else {
		log.Warn("stripe not configured, checkout intents and webhooks are disabled")
	}

	calculator := shipping.NewCalculator(cat, shippingOptions(cfg, httpClient, log))

	accounts := accountservice.New(accountStore, sender, sessions, accountservice.Config{
		MagicLink: cfg.MagicLink,
		Passkey:   cfg.Passkey,
		SalesTo:   cfg.Email.SalesTo,
	}, log.WithField("component", "accounts"))
	// Sign-in emails still in flight finish after the listener stops.
	defer accounts.Wait()

	server, err := storefront.NewServer(cfg.HTTPAddr, storefront.Dependencies{
		Catalog:  cat,
		Checkout: checkout.NewService(cat, calculator, gateway, log.WithField("component", "checkout")),
		Webhooks: checkout.NewWebhooks(orderStore, cat, log.WithField("component", "webhooks")),
		Payments: gateway,
		Orders:   orderStore,
		Forms:    forms.NewService(bots, formStore, blobs, sender, cfg.Email.SalesTo, log.WithField("component", "forms")),
		Bots:     bots,
		Accounts: accounts,
		CDN:      imagecdn.New(cfg.CDNBase),
		Proxies:  httpx.ProxyPolicy{TrustedProxies: proxies},
		Log:      log,
	})
	if err != nil {
		return err
	}
	return server.ListenAndServe(ctx)
}

func shippingOptions(cfg RuntimeConfig, httpClient *http.Client, log *logrus.Entry) shipping.Options {
	opts := shipping.Options{
		CacheTTL: cfg.ShippingTTL,
		Logger:   log.WithField("component", "shipping"),
	}
	if !cfg.ShipStation.Enabled() {
		log.Info("shipstation not configured, shipping uses table rates")
		return opts
	}
	opts.Source = shipping.ShipStationSource{
		Client:     shipstation.New(cfg.ShipStation, upstream.WithHTTPClient(httpClient)),
		Carriers:   cfg.ShipStation.Carriers,
		FromPostal: cfg.ShipStation.FromPostal,
	}
	return opts
}

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}
	if strings.TrimSpace(cfg.OrdersDBPath) == "" {
		cfg.OrdersDBPath = defaultOrdersDB
	}
	if strings.TrimSpace(cfg.FormsDBPath) == "" {
		cfg.FormsDBPath = defaultFormsDB
	}
	if strings.TrimSpace(cfg.AccountsDBPath) == "" {
		cfg.AccountsDBPath = defaultAccountsDB
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return cfg
}

type namedCloser struct {
	name string
	io.Closer
}

func ensureDir(path string) error {
	if path == "" {
		return errors.New("storage path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	return nil
}
