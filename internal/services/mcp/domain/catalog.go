package domain

import (
	"context"
	"strings"

	"github.com/acdrainwiz/drainwiz/internal/platform/assets/imagecdn"
	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/money"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/samber/lo"
)

// Catalog is the product data the tools read.
type Catalog interface {
	Products(tier catalog.Tier) []catalog.Product
	Product(sku string) (catalog.Product, error)
	ProductBySlug(slug string) (catalog.Product, error)
	Search(query string, tier catalog.Tier) []catalog.Product
	Price(sku string, tier catalog.Tier) (int64, error)
	NextSetupSteps(sku string, completed []string) (catalog.SetupProgress, error)
}

// ListProductsInput represents the MCP tool input for listing products.
type ListProductsInput struct {
	Tier string `json:"tier,omitempty" jsonschema:"price list to use: retail (default) or contractor"`
}

// ProductsResult is the MCP tool output for product lists.
type ProductsResult struct {
	Tier     string           `json:"tier" jsonschema:"price list the prices come from"`
	Products []ProductSummary `json:"products" jsonschema:"products visible to the tier"`
}

// ProductSummary is one product line in a list.
type ProductSummary struct {
	SKU            string `json:"sku" jsonschema:"stock keeping unit"`
	Slug           string `json:"slug" jsonschema:"URL slug"`
	Name           string `json:"name" jsonschema:"product name"`
	Category       string `json:"category" jsonschema:"product category"`
	Summary        string `json:"summary" jsonschema:"one line description"`
	PriceCents     int64  `json:"price_cents" jsonschema:"unit price in cents for the tier"`
	PriceDisplay   string `json:"price_display" jsonschema:"formatted unit price"`
	ContractorOnly bool   `json:"contractor_only" jsonschema:"true when only approved contractors can buy it"`
	ImageURL       string `json:"image_url,omitempty" jsonschema:"thumbnail image URL"`
}

// GetProductInput represents the MCP tool input for a product lookup.
type GetProductInput struct {
	SKU  string `json:"sku,omitempty" jsonschema:"product SKU"`
	Slug string `json:"slug,omitempty" jsonschema:"product URL slug, used when sku is empty"`
}

// ProductDetail is the MCP tool output for a single product.
type ProductDetail struct {
	SKU             string   `json:"sku" jsonschema:"stock keeping unit"`
	Slug            string   `json:"slug" jsonschema:"URL slug"`
	Name            string   `json:"name" jsonschema:"product name"`
	Category        string   `json:"category" jsonschema:"product category"`
	Summary         string   `json:"summary" jsonschema:"one line description"`
	ContractorOnly  bool     `json:"contractor_only" jsonschema:"true when only approved contractors can buy it"`
	ImageURL        string   `json:"image_url,omitempty" jsonschema:"product image URL"`
	Description     string   `json:"description" jsonschema:"long description"`
	RetailCents     int64    `json:"retail_cents,omitempty" jsonschema:"retail price in cents"`
	ContractorCents int64    `json:"contractor_cents" jsonschema:"contractor price in cents"`
	WeightOz        int      `json:"weight_oz" jsonschema:"shipping weight in ounces"`
	Features        []string `json:"features" jsonschema:"feature bullet points"`
	Compatibility   []string `json:"compatibility" jsonschema:"compatible drain line sizes and systems"`
	SetupSteps      int      `json:"setup_steps" jsonschema:"number of guided setup steps"`
}

// SearchProductsInput represents the MCP tool input for a catalog search.
type SearchProductsInput struct {
	Query string `json:"query" jsonschema:"words matched against SKU, name, summary, category, features and compatibility"`
	Tier  string `json:"tier,omitempty" jsonschema:"price list to use: retail (default) or contractor"`
}

// ListProductsTool defines the MCP tool schema for listing products.
func ListProductsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_products",
		Description: "Lists the AC Drain Wiz products and prices for a tier",
	}
}

// GetProductTool defines the MCP tool schema for product lookups.
func GetProductTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_product",
		Description: "Returns one product by SKU or slug",
	}
}

// SearchProductsTool defines the MCP tool schema for catalog search.
func SearchProductsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_products",
		Description: "Searches the catalog by keyword",
	}
}

// ListProductsHandler lists the products visible to a tier.
func ListProductsHandler(cat Catalog, cdn imagecdn.CDN) mcp.ToolHandlerFor[ListProductsInput, ProductsResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input ListProductsInput) (*mcp.CallToolResult, ProductsResult, error) {
		tier, err := catalog.ParseTier(input.Tier)
		if err != nil {
			return nil, ProductsResult{}, toolError(err)
		}
		return nil, productsResult(tier, cat.Products(tier), cdn), nil
	}
}

// SearchProductsHandler searches the products visible to a tier.
func SearchProductsHandler(cat Catalog, cdn imagecdn.CDN) mcp.ToolHandlerFor[SearchProductsInput, ProductsResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input SearchProductsInput) (*mcp.CallToolResult, ProductsResult, error) {
		tier, err := catalog.ParseTier(input.Tier)
		if err != nil {
			return nil, ProductsResult{}, toolError(err)
		}
		if strings.TrimSpace(input.Query) == "" {
			return nil, ProductsResult{}, toolError(apperrors.New(apperrors.CodeInvalidArgument, "query is required"))
		}
		return nil, productsResult(tier, cat.Search(input.Query, tier), cdn), nil
	}
}

// GetProductHandler returns one product by SKU, or by slug when no SKU is
// given. Both tier prices are included.
func GetProductHandler(cat Catalog, cdn imagecdn.CDN) mcp.ToolHandlerFor[GetProductInput, ProductDetail] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input GetProductInput) (*mcp.CallToolResult, ProductDetail, error) {
		product, err := lookupProduct(cat, input.SKU, input.Slug)
		if err != nil {
			return nil, ProductDetail{}, toolError(err)
		}
		return nil, productDetail(product, cdn), nil
	}
}

func lookupProduct(cat Catalog, sku, slug string) (catalog.Product, error) {
	switch {
	case strings.TrimSpace(sku) != "":
		return cat.Product(sku)
	case strings.TrimSpace(slug) != "":
		return cat.ProductBySlug(slug)
	default:
		return catalog.Product{}, apperrors.New(apperrors.CodeInvalidArgument, "sku or slug is required")
	}
}

func productsResult(tier catalog.Tier, products []catalog.Product, cdn imagecdn.CDN) ProductsResult {
	return ProductsResult{
		Tier: string(tier),
		Products: lo.Map(products, func(p catalog.Product, _ int) ProductSummary {
			return productSummary(p, tier, cdn)
		}),
	}
}

func productSummary(p catalog.Product, tier catalog.Tier, cdn imagecdn.CDN) ProductSummary {
	price, _ := p.PriceCents(tier)
	return ProductSummary{
		SKU:            p.SKU,
		Slug:           p.Slug,
		Name:           p.Name,
		Category:       p.Category,
		Summary:        p.Summary,
		PriceCents:     price,
		PriceDisplay:   money.FormatUSD(price),
		ContractorOnly: p.ContractorOnly,
		ImageURL:       p.ImageURL(cdn, catalog.ImageThumbWidth),
	}
}

func productDetail(p catalog.Product, cdn imagecdn.CDN) ProductDetail {
	return ProductDetail{
		SKU:             p.SKU,
		Slug:            p.Slug,
		Name:            p.Name,
		Category:        p.Category,
		Summary:         p.Summary,
		ContractorOnly:  p.ContractorOnly,
		ImageURL:        p.ImageURL(cdn, catalog.ImageDetailWidth),
		Description:     p.Description,
		RetailCents:     p.RetailCents,
		ContractorCents: p.ContractorCents,
		WeightOz:        p.WeightOz,
		Features:        lo.Ternary(p.Features == nil, []string{}, p.Features),
		Compatibility:   lo.Ternary(p.Compatibility == nil, []string{}, p.Compatibility),
		SetupSteps:      len(p.SetupGuide),
	}
}
