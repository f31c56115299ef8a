// Package catalog holds the product catalog, the price-id to SKU mapping
// and the per-product setup guides.
package catalog

import (
	"strings"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/samber/lo"
)

// Tier selects which price list applies to a buyer.
type Tier string

const (
	TierRetail     Tier = "retail"
	TierContractor Tier = "contractor"
)

// ParseTier maps a request value onto a tier. Empty means retail.
func ParseTier(value string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(value))) {
	case "", TierRetail:
		return TierRetail, nil
	case TierContractor:
		return TierContractor, nil
	default:
		return "", apperrors.New(apperrors.CodeInvalidArgument, "unknown tier "+value)
	}
}

// Dimensions are package dimensions in inches.
type Dimensions struct {
	Length float64 `yaml:"length" json:"length"`
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// SetupStep is one step of a product's guided setup. A step becomes
// available once every step in Requires is complete.
type SetupStep struct {
	ID       string   `yaml:"id" json:"id"`
	Title    string   `yaml:"title" json:"title"`
	Body     string   `yaml:"body" json:"body"`
	Requires []string `yaml:"requires" json:"requires,omitempty"`
}

// Product is a sellable catalog entry.
type Product struct {
	SKU             string      `json:"sku"`
	Slug            string      `json:"slug"`
	Name            string      `json:"name"`
	Category        string      `json:"category"`
	Summary         string      `json:"summary"`
	Description     string      `json:"description"`
	RetailCents     int64       `json:"retail_cents,omitempty"`
	ContractorCents int64       `json:"contractor_cents"`
	ContractorOnly  bool        `json:"contractor_only"`
	WeightOz        int         `json:"weight_oz"`
	Dimensions      Dimensions  `json:"dimensions"`
	ImageAssetID    string      `json:"image_asset_id"`
	Features        []string    `json:"features"`
	Compatibility   []string    `json:"compatibility"`
	Active          bool        `json:"active"`
	SetupGuide      []SetupStep `json:"setup_guide,omitempty"`
}

// VisibleTo reports whether tier may see and buy the product.
func (p Product) VisibleTo(tier Tier) bool {
	if !p.Active {
		return false
	}
	return tier == TierContractor || !p.ContractorOnly
}

// PriceCents returns the unit price for tier.
func (p Product) PriceCents(tier Tier) (int64, bool) {
	if !p.VisibleTo(tier) {
		return 0, false
	}
	return p.ListPriceCents(tier)
}

// ListPriceCents returns the tier's list price even when the product is no
// longer sold. Paid orders are rebuilt with it.
func (p Product) ListPriceCents(tier Tier) (int64, bool) {
	if tier == TierContractor {
		return p.ContractorCents, p.ContractorCents > 0
	}
	return p.RetailCents, p.RetailCents > 0
}

// PriceMapping links a payment price id to the SKU it fulfills.
type PriceMapping struct {
	PriceID string `json:"price_id"`
	SKU     string `json:"sku"`
	Tier    Tier   `json:"tier"`
}

// Catalog is an immutable, validated product list.
type Catalog struct {
	products []Product
	bySKU    map[string]int
	bySlug   map[string]int
	byPrice  map[string]PriceMapping
	priceIDs map[string]map[Tier]string
}

// Products returns active products visible to tier in catalog order.
func (c *Catalog) Products(tier Tier) []Product {
	return lo.Filter(c.products, func(p Product, _ int) bool {
		return p.VisibleTo(tier)
	})
}

// All returns every product, including inactive ones.
func (c *Catalog) All() []Product {
	return append([]Product(nil), c.products...)
}

// Product looks up a product by SKU. SKUs are matched case-insensitively.
func (c *Catalog) Product(sku string) (Product, error) {
	idx, ok := c.bySKU[normalizeSKU(sku)]
	if !ok {
		return Product{}, apperrors.WithMetadata(apperrors.CodeNotFound, "unknown sku", map[string]string{"sku": sku})
	}
	return c.products[idx], nil
}

// ProductBySlug looks up a product by its URL slug.
func (c *Catalog) ProductBySlug(slug string) (Product, error) {
	idx, ok := c.bySlug[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return Product{}, apperrors.WithMetadata(apperrors.CodeNotFound, "unknown slug", map[string]string{"slug": slug})
	}
	return c.products[idx], nil
}

// Search matches query words against name, summary, features and
// compatibility. Every word must match somewhere.
func (c *Catalog) Search(query string, tier Tier) []Product {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return c.Products(tier)
	}
	return lo.Filter(c.Products(tier), func(p Product, _ int) bool {
		haystack := strings.ToLower(strings.Join(lo.Flatten([][]string{
			{p.SKU, p.Name, p.Summary, p.Category},
			p.Features,
			p.Compatibility,
		}), " "))
		return lo.EveryBy(words, func(w string) bool {
			return strings.Contains(haystack, w)
		})
	})
}

// Price returns the unit price of sku for tier.
func (c *Catalog) Price(sku string, tier Tier) (int64, error) {
	product, err := c.Product(sku)
	if err != nil {
		return 0, err
	}
	cents, ok := product.PriceCents(tier)
	if !ok {
		return 0, apperrors.WithMetadata(apperrors.CodeProductUnavailable, "product not sold to tier", map[string]string{
			"sku":  product.SKU,
			"tier": string(tier),
		})
	}
	return cents, nil
}

// PriceID returns the payment price id of sku for tier.
func (c *Catalog) PriceID(sku string, tier Tier) (string, error) {
	product, err := c.Product(sku)
	if err != nil {
		return "", err
	}
	priceID, ok := c.priceIDs[product.SKU][tier]
	if !ok || !product.VisibleTo(tier) {
		return "", apperrors.WithMetadata(apperrors.CodeProductUnavailable, "no price for tier", map[string]string{
			"sku":  product.SKU,
			"tier": string(tier),
		})
	}
	return priceID, nil
}

// ResolvePriceID maps a payment price id back to its SKU and tier.
func (c *Catalog) ResolvePriceID(priceID string) (PriceMapping, error) {
	mapping, ok := c.byPrice[strings.TrimSpace(priceID)]
	if !ok {
		return PriceMapping{}, apperrors.WithMetadata(apperrors.CodeUnknownPrice, "unknown price id", map[string]string{"price_id": priceID})
	}
	return mapping, nil
}

// PriceMappings returns the full SKU mapping table in catalog order.
func (c *Catalog) PriceMappings() []PriceMapping {
	out := make([]PriceMapping, 0, len(c.byPrice))
	for _, p := range c.products {
		for _, tier := range []Tier{TierRetail, TierContractor} {
			if priceID, ok := c.priceIDs[p.SKU][tier]; ok {
				out = append(out, c.byPrice[priceID])
			}
		}
	}
	return out
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}
