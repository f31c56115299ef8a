// Package admin builds the drainwiz-admin operator CLI: contractor approval,
// order and outbox inspection, and catalog validation.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	entrypoint "github.com/acdrainwiz/drainwiz/internal/platform/cmd"
	"github.com/acdrainwiz/drainwiz/internal/platform/logging"
	"github.com/acdrainwiz/drainwiz/internal/platform/money"
	"github.com/acdrainwiz/drainwiz/internal/services/account"
	accountservice "github.com/acdrainwiz/drainwiz/internal/services/account/service"
	accountsqlite "github.com/acdrainwiz/drainwiz/internal/services/account/storage/sqlite"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/acdrainwiz/drainwiz/internal/services/email"
	"github.com/acdrainwiz/drainwiz/internal/services/orders/storage"
	orderssqlite "github.com/acdrainwiz/drainwiz/internal/services/orders/storage/sqlite"
	workerstorage "github.com/acdrainwiz/drainwiz/internal/services/worker/storage"
	workersqlite "github.com/acdrainwiz/drainwiz/internal/services/worker/storage/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Config holds admin command configuration.
type Config struct {
	OrdersDBPath   string `env:"DRAINWIZ_ORDERS_DB_PATH" envDefault:"data/orders.db"`
	AccountsDBPath string `env:"DRAINWIZ_ACCOUNTS_DB_PATH" envDefault:"data/accounts.db"`
	WorkerDBPath   string `env:"DRAINWIZ_WORKER_DB_PATH" envDefault:"data/worker.db"`
	LogLevel       string `env:"DRAINWIZ_ADMIN_LOG_LEVEL" envDefault:"warn"`
}

// LoadConfig reads environment defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type app struct {
	cfg   Config
	log   *logrus.Entry
	clock func() time.Time
}

// NewRootCommand builds the drainwiz-admin command tree.
func NewRootCommand(cfg Config) *cobra.Command {
	a := &app{cfg: cfg, log: logging.Discard(), clock: time.Now}

	root := &cobra.Command{
		Use:           "drainwiz-admin",
		Short:         "Operate the AC Drain Wiz storefront",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logging.Setup(logging.Options{
				Service: entrypoint.ServiceAdmin,
				Level:   a.cfg.LogLevel,
				Format:  logging.FormatText,
				Output:  cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.cfg.OrdersDBPath, "orders-db", a.cfg.OrdersDBPath, "orders SQLite database path")
	root.PersistentFlags().StringVar(&a.cfg.AccountsDBPath, "accounts-db", a.cfg.AccountsDBPath, "contractor accounts SQLite database path")
	root.PersistentFlags().StringVar(&a.cfg.WorkerDBPath, "worker-db", a.cfg.WorkerDBPath, "worker attempt history SQLite database path")
	root.PersistentFlags().StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level")

	root.AddCommand(a.contractorsCommand(), a.ordersCommand(), a.outboxCommand(), a.catalogCommand())
	return root
}

// Execute runs the command tree against os.Args and returns the exit code.
func Execute(ctx context.Context, cfg Config) int {
	root := NewRootCommand(cfg)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) contractorsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contractors",
		Short: "List, approve and suspend contractor accounts",
	}

	var (
		status string
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List contractors, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter account.Status
			if status != "" {
				parsed, err := account.ParseStatus(status)
				if err != nil {
					return err
				}
				filter = parsed
			}
			return a.withAccounts(cmd.Context(), func(svc *accountservice.Service) error {
				contractors, err := svc.ListContractors(cmd.Context(), filter, limit)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout(), "ID", "EMAIL", "NAME", "COMPANY", "STATE", "LICENSE", "STATUS", "CREATED")
				for _, c := range contractors {
					tw.row(c.ID, c.Email, c.Name, c.Company, c.State, c.LicenseNumber, string(c.Status), c.CreatedAt.Format(time.DateOnly))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status: pending, approved or suspended")
	list.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	cmd.AddCommand(list,
		a.statusCommand("approve", "Approve a contractor for contractor pricing", account.StatusApproved),
		a.statusCommand("suspend", "Suspend a contractor account", account.StatusSuspended),
	)
	return cmd
}

func (a *app) statusCommand(use, short string, to account.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <contractor-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withAccounts(cmd.Context(), func(svc *accountservice.Service) error {
				contractor, err := svc.SetStatus(cmd.Context(), strings.TrimSpace(args[0]), to)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "contractor %s (%s) is now %s\n", contractor.ID, contractor.Email, contractor.Status)
				return err
			})
		},
	}
}

func (a *app) ordersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect paid orders",
	}
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withOrders(cmd.Context(), func(store *orderssqlite.Store) error {
				list, err := store.ListOrders(cmd.Context(), limit)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout(), "ID", "PAYMENT INTENT", "STATUS", "TIER", "ITEMS", "TOTAL", "EMAIL", "CREATED")
				for _, o := range list {
					items := 0
					for _, line := range o.Lines {
						items += line.Quantity
					}
					tw.row(o.ID, o.PaymentIntentID, string(o.Status), o.Tier, fmt.Sprint(items), money.Format(o.TotalCents, o.Currency), o.Email, o.CreatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	cmd.AddCommand(list)
	return cmd
}

func (a *app) outboxCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect, retry and audit order outbox events",
	}

	var (
		status string
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List outbox events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, ok := storage.ParseOutboxStatus(status)
			if !ok {
				return fmt.Errorf("unknown outbox status %q", status)
			}
			return a.withOrders(cmd.Context(), func(store *orderssqlite.Store) error {
				events, err := store.ListOutboxEvents(cmd.Context(), filter, limit)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout(), "ID", "TYPE", "STATUS", "ATTEMPTS", "NEXT ATTEMPT", "LAST ERROR")
				for _, evt := range events {
					tw.row(evt.ID, evt.EventType, string(evt.Status), fmt.Sprint(evt.AttemptCount), evt.NextAttemptAt.Format(time.RFC3339), evt.LastError)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status: pending, leased, succeeded or dead")
	list.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	retry := &cobra.Command{
		Use:   "retry <event-id>",
		Short: "Move a dead event back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return a.withOrders(cmd.Context(), func(store *orderssqlite.Store) error {
				err := store.RetryOutboxEvent(cmd.Context(), id, a.clock().UTC())
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("event %s is not dead", id)
				}
				if err != nil {
					return err
				}
				a.log.WithField("event_id", id).Info("outbox event requeued")
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "event %s requeued\n", id)
				return err
			})
		},
	}

	var (
		eventID      string
		orderID      string
		attemptLimit int
	)
	attempts := &cobra.Command{
		Use:   "attempts",
		Short: "Show worker delivery attempts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withAttempts(cmd.Context(), func(store *workersqlite.Store) error {
				records, err := store.ListAttempts(cmd.Context(), workerstorage.AttemptFilter{EventID: eventID, OrderID: orderID}, attemptLimit)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout(), "EVENT", "TYPE", "ORDER", "ATTEMPT", "OUTCOME", "DURATION", "AT", "ERROR")
				for _, r := range records {
					tw.row(r.EventID, r.EventType, r.OrderID, fmt.Sprint(r.AttemptCount), r.Outcome, r.Duration.String(), r.CreatedAt.Format(time.RFC3339), r.LastError)
				}
				return tw.Flush()
			})
		},
	}
	attempts.Flags().StringVar(&eventID, "event", "", "only attempts for this outbox event id")
	attempts.Flags().StringVar(&orderID, "order", "", "only attempts for this order id")
	attempts.Flags().IntVar(&attemptLimit, "limit", 50, "maximum rows")

	var since time.Duration
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Summarize worker outcomes per event type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if since <= 0 {
				return fmt.Errorf("--since must be positive")
			}
			return a.withAttempts(cmd.Context(), func(store *workersqlite.Store) error {
				counts, err := store.SummarizeOutcomes(cmd.Context(), a.clock().UTC().Add(-since))
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout(), "TYPE", "OUTCOME", "COUNT", "SLOWEST")
				for _, c := range counts {
					tw.row(c.EventType, c.Outcome, fmt.Sprint(c.Count), c.MaxDuration.String())
				}
				return tw.Flush()
			})
		},
	}
	stats.Flags().DurationVar(&since, "since", 24*time.Hour, "look-back window")

	cmd.AddCommand(list, retry, attempts, stats)
	return cmd
}

func (a *app) catalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate the product catalog",
	}
	var file string
	check := &cobra.Command{
		Use:   "check",
		Short: "Load and validate a catalog file, or the embedded catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, source, err := loadCatalog(file)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			tw := newTable(out, "SKU", "NAME", "RETAIL", "CONTRACTOR", "WEIGHT OZ", "SETUP STEPS", "ACTIVE")
			for _, p := range cat.All() {
				retail := "-"
				if p.RetailCents > 0 {
					retail = money.FormatUSD(p.RetailCents)
				}
				tw.row(p.SKU, p.Name, retail, money.FormatUSD(p.ContractorCents), fmt.Sprint(p.WeightOz), fmt.Sprint(len(p.SetupGuide)), fmt.Sprint(p.Active))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "%s: %d products, %d price mappings OK\n", source, len(cat.All()), len(cat.PriceMappings()))
			return err
		},
	}
	check.Flags().StringVar(&file, "file", "", "catalog YAML file (default: embedded catalog)")
	cmd.AddCommand(check)
	return cmd
}

func loadCatalog(file string) (*catalog.Catalog, string, error) {
	if strings.TrimSpace(file) == "" {
		return catalog.Default(), "embedded catalog", nil
	}
	clean := filepath.Clean(file)
	cat, err := catalog.Load(os.DirFS(filepath.Dir(clean)), filepath.Base(clean))
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", clean, err)
	}
	return cat, clean, nil
}

func (a *app) withAccounts(ctx context.Context, fn func(*accountservice.Service) error) error {
	if err := requireFile(a.cfg.AccountsDBPath); err != nil {
		return err
	}
	store, err := accountsqlite.Open(ctx, a.cfg.AccountsDBPath)
	if err != nil {
		return fmt.Errorf("open accounts sqlite store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.log.WithError(err).Warn("close accounts sqlite store")
		}
	}()
	// Operators never sign in here, so no session issuer is needed and
	// email goes to the log sender.
	svc := accountservice.New(store, email.NewSender(email.Config{}, a.log), nil, accountservice.Config{}, a.log)
	return fn(svc)
}

func (a *app) withOrders(ctx context.Context, fn func(*orderssqlite.Store) error) error {
	if err := requireFile(a.cfg.OrdersDBPath); err != nil {
		return err
	}
	store, err := orderssqlite.Open(ctx, a.cfg.OrdersDBPath)
	if err != nil {
		return fmt.Errorf("open orders sqlite store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.log.WithError(err).Warn("close orders sqlite store")
		}
	}()
	return fn(store)
}

func (a *app) withAttempts(ctx context.Context, fn func(*workersqlite.Store) error) error {
	if err := requireFile(a.cfg.WorkerDBPath); err != nil {
		return err
	}
	store, err := workersqlite.Open(ctx, a.cfg.WorkerDBPath)
	if err != nil {
		return fmt.Errorf("open worker sqlite store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.log.WithError(err).Warn("close worker sqlite store")
		}
	}()
	return fn(store)
}

// requireFile keeps the CLI from creating an empty database on a typo.
func requireFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("database path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("database %s: %w", path, err)
	}
	return nil
}

type table struct {
	*tabwriter.Writer
}

func newTable(w io.Writer, headers ...string) table {
	t := table{tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)}
	t.row(headers...)
	return t
}

func (t table) row(cells ...string) {
	fmt.Fprintln(t.Writer, strings.Join(cells, "\t"))
}
