package shipping

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/metrics"
	"github.com/acdrainwiz/drainwiz/internal/platform/otel"
	"github.com/acdrainwiz/drainwiz/internal/platform/timeouts"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// MaxLineQuantity bounds the quantity of one cart line.
const MaxLineQuantity = 100

// Quote sources.
const (
	SourceTable = "table"
	SourceAPI   = "api"
)

// Item is one cart line.
type Item struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Destination is where the package goes.
type Destination struct {
	Country    string `json:"country"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

// QuoteRequest asks for a shipping price.
type QuoteRequest struct {
	Destination   Destination
	Items         []Item
	ServiceLevel  ServiceLevel
	SubtotalCents int64
}

// Quote is a priced shipping option.
type Quote struct {
	Zone          Zone         `json:"zone"`
	ServiceLevel  ServiceLevel `json:"service_level"`
	WeightOz      int          `json:"weight_oz"`
	AmountCents   int64        `json:"amount_cents"`
	Source        string       `json:"source"`
	Carrier       string       `json:"carrier,omitempty"`
	ServiceName   string       `json:"service_name,omitempty"`
	EstimatedDays DayRange     `json:"estimated_days"`
	FreeShipping  bool         `json:"free_shipping"`
}

// LiveRate is a carrier rate from an external source.
type LiveRate struct {
	Carrier     string
	ServiceCode string
	ServiceName string
	Level       ServiceLevel
	AmountCents int64
}

// RateQuery is what a live source needs to price a package.
type RateQuery struct {
	Destination Destination
	Zone        Zone
	WeightOz    int
	Dimensions  catalog.Dimensions
}

// RateSource quotes live carrier rates.
type RateSource interface {
	Rates(ctx context.Context, q RateQuery) ([]LiveRate, error)
}

// ProductLookup resolves SKUs for weight and size.
type ProductLookup interface {
	Product(sku string) (catalog.Product, error)
}

// Options configures a Calculator.
type Options struct {
	Source   RateSource
	CacheTTL time.Duration
	CacheMax int
	Timeout  time.Duration
	Logger   *logrus.Entry
}

// Calculator prices shipments.
type Calculator struct {
	products ProductLookup
	source   RateSource
	cache    *expirable.LRU[string, Quote]
	timeout  time.Duration
	log      *logrus.Entry
}

// NewCalculator builds a calculator. A nil Source means table rates only.
func NewCalculator(products ProductLookup, opts Options) *Calculator {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 15 * time.Minute
	}
	if opts.CacheMax <= 0 {
		opts.CacheMax = 1024
	}
	if opts.Timeout <= 0 {
		opts.Timeout = timeouts.RateQuote
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Calculator{
		products: products,
		source:   opts.Source,
		cache:    expirable.NewLRU[string, Quote](opts.CacheMax, nil, opts.CacheTTL),
		timeout:  opts.Timeout,
		log:      opts.Logger,
	}
}

// ParseServiceLevel accepts "", "ground" and "expedited".
func ParseServiceLevel(value string) (ServiceLevel, error) {
	switch ServiceLevel(strings.ToLower(strings.TrimSpace(value))) {
	case "", ServiceGround:
		return ServiceGround, nil
	case ServiceExpedited:
		return ServiceExpedited, nil
	default:
		return "", apperrors.WithMetadata(apperrors.CodeInvalidArgument, "unknown service level", map[string]string{"service_level": "Choose ground or expedited."})
	}
}

// MergeItems combines repeated SKUs and bounds each merged quantity.
func MergeItems(items []Item) ([]Item, error) {
	if len(items) == 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidArgument, "cart is empty", map[string]string{"items": "Add at least one product."})
	}
	index := map[string]int{}
	var out []Item
	for i, item := range items {
		sku := strings.ToUpper(strings.TrimSpace(item.SKU))
		if item.Quantity < 1 || item.Quantity > MaxLineQuantity {
			return nil, quantityError(i)
		}
		if at, ok := index[sku]; ok {
			out[at].Quantity += item.Quantity
			if out[at].Quantity > MaxLineQuantity {
				return nil, quantityError(i)
			}
			continue
		}
		index[sku] = len(out)
		out = append(out, Item{SKU: sku, Quantity: item.Quantity})
	}
	return out, nil
}

func quantityError(i int) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidArgument, "quantity out of range", map[string]string{
		fmt.Sprintf("items[%d].quantity", i): fmt.Sprintf("Quantity must be between 1 and %d.", MaxLineQuantity),
	})
}

// PackageWeight sums line weights and returns the largest product
// dimensions, which stand in for the box size.
func PackageWeight(products ProductLookup, items []Item) (int, catalog.Dimensions, error) {
	merged, err := MergeItems(items)
	if err != nil {
		return 0, catalog.Dimensions{}, err
	}
	var (
		total int
		box   catalog.Dimensions
	)
	for _, item := range merged {
		product, err := products.Product(item.SKU)
		if err != nil {
			return 0, catalog.Dimensions{}, err
		}
		total += product.WeightOz * item.Quantity
		box.Length = max(box.Length, product.Dimensions.Length)
		box.Width = max(box.Width, product.Dimensions.Width)
		box.Height = max(box.Height, product.Dimensions.Height)
	}
	return total, box, nil
}

// Quote prices a shipment. Live rates are used when a source is
// configured; any source failure falls back to the table.
func (c *Calculator) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	ctx, span := otel.Tracer("shipping").Start(ctx, "shipping.Quote")
	defer span.End()

	level := req.ServiceLevel
	if level == "" {
		level = ServiceGround
	}
	zone, err := ZoneFor(req.Destination.Country, req.Destination.State)
	if err != nil {
		return Quote{}, err
	}
	postal, err := NormalizePostal(req.Destination.Country, req.Destination.PostalCode)
	if err != nil {
		return Quote{}, err
	}
	dest := req.Destination
	dest.PostalCode = postal
	dest.Country = strings.ToUpper(strings.TrimSpace(dest.Country))
	if dest.Country == "" {
		dest.Country = "US"
	}
	dest.State = strings.ToUpper(strings.TrimSpace(dest.State))

	weight, box, err := PackageWeight(c.products, req.Items)
	if err != nil {
		return Quote{}, err
	}
	amount, days, ok := TableRate(zone, level, weight)
	if !ok {
		return Quote{}, apperrors.WithMetadata(apperrors.CodeServiceUnavailable, "service level not offered", map[string]string{
			"service_level": string(level),
			"zone":          string(zone),
		})
	}
	span.SetAttributes(
		attribute.String("shipping.zone", string(zone)),
		attribute.Int("shipping.weight_oz", weight),
		attribute.String("shipping.level", string(level)),
	)

	quote := Quote{
		Zone:          zone,
		ServiceLevel:  level,
		WeightOz:      weight,
		AmountCents:   amount,
		Source:        SourceTable,
		EstimatedDays: days,
	}
	if level == ServiceGround && zone.Contiguous() && req.SubtotalCents >= FreeShippingThresholdCents {
		quote.AmountCents = 0
		quote.FreeShipping = true
		metrics.ShippingQuotes.WithLabelValues("free").Inc()
		return quote, nil
	}

	key := cacheKey(dest, weight, level)
	if cached, ok := c.cache.Get(key); ok {
		metrics.ShippingQuotes.WithLabelValues("cache").Inc()
		return cached, nil
	}

	if c.source != nil {
		if live, ok := c.liveQuote(ctx, RateQuery{Destination: dest, Zone: zone, WeightOz: weight, Dimensions: box}, level); ok {
			quote.AmountCents = live.AmountCents
			quote.Source = SourceAPI
			quote.Carrier = live.Carrier
			quote.ServiceName = live.ServiceName
		}
	}
	span.SetAttributes(attribute.String("shipping.source", quote.Source))
	metrics.ShippingQuotes.WithLabelValues(quote.Source).Inc()
	// Table fallbacks are not cached so the next quote retries the source.
	if quote.Source == SourceAPI {
		c.cache.Add(key, quote)
	}
	return quote, nil
}

func (c *Calculator) liveQuote(ctx context.Context, q RateQuery, level ServiceLevel) (LiveRate, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rates, err := c.source.Rates(ctx, q)
	if err != nil {
		c.log.WithError(err).WithField("zone", q.Zone).Warn("live shipping rates failed, using table")
		return LiveRate{}, false
	}
	matching := make([]LiveRate, 0, len(rates))
	for _, rate := range rates {
		if rate.Level == level && rate.AmountCents > 0 {
			matching = append(matching, rate)
		}
	}
	if len(matching) == 0 {
		c.log.WithField("zone", q.Zone).WithField("level", level).Info("no live rate for service level, using table")
		return LiveRate{}, false
	}
	sort.SliceStable(matching, func(i, j int) bool { return matching[i].AmountCents < matching[j].AmountCents })
	return matching[0], true
}

func cacheKey(dest Destination, weightOz int, level ServiceLevel) string {
	return strings.Join([]string{dest.Country, dest.State, dest.PostalCode, fmt.Sprint(weightOz), string(level)}, "|")
}
