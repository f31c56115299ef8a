package domain

import (
	"context"

	"github.com/acdrainwiz/drainwiz/internal/platform/money"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/acdrainwiz/drainwiz/internal/services/shipping"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/samber/lo"
)

// ShippingQuoter prices a shipment.
type ShippingQuoter interface {
	Quote(ctx context.Context, req shipping.QuoteRequest) (shipping.Quote, error)
}

// EstimateShippingItem is one cart line of a shipping estimate.
type EstimateShippingItem struct {
	SKU      string `json:"sku" jsonschema:"product SKU"`
	Quantity int    `json:"quantity" jsonschema:"units of the product, 1 to 100"`
}

// EstimateShippingInput represents the MCP tool input for shipping estimates.
type EstimateShippingInput struct {
	Country      string                 `json:"country,omitempty" jsonschema:"ISO country code, US (default) or CA"`
	State        string                 `json:"state" jsonschema:"two letter state or province code"`
	PostalCode   string                 `json:"postal_code" jsonschema:"ZIP or postal code"`
	Items        []EstimateShippingItem `json:"items" jsonschema:"cart lines to ship"`
	ServiceLevel string                 `json:"service_level,omitempty" jsonschema:"ground (default) or expedited"`
	Tier         string                 `json:"tier,omitempty" jsonschema:"price list for the free shipping threshold: retail (default) or contractor"`
}

// EstimateShippingResult is the MCP tool output for a shipping estimate.
type EstimateShippingResult struct {
	Zone          string `json:"zone" jsonschema:"shipping zone from the Florida warehouse"`
	ServiceLevel  string `json:"service_level" jsonschema:"service level priced"`
	WeightOz      int    `json:"weight_oz" jsonschema:"package weight in ounces"`
	SubtotalCents int64  `json:"subtotal_cents" jsonschema:"merchandise subtotal in cents"`
	AmountCents   int64  `json:"amount_cents" jsonschema:"shipping price in cents"`
	AmountDisplay string `json:"amount_display" jsonschema:"formatted shipping price"`
	Source        string `json:"source" jsonschema:"table or api"`
	Carrier       string `json:"carrier,omitempty" jsonschema:"carrier of a live rate"`
	MinDays       int    `json:"min_days" jsonschema:"fewest business days in transit"`
	MaxDays       int    `json:"max_days" jsonschema:"most business days in transit"`
	FreeShipping  bool   `json:"free_shipping" jsonschema:"true when the order qualifies for free ground shipping"`
}

// EstimateShippingTool defines the MCP tool schema for shipping estimates.
func EstimateShippingTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "estimate_shipping",
		Description: "Estimates shipping for a cart to a US or Canadian address",
	}
}

// EstimateShippingHandler prices the items to the destination.
func EstimateShippingHandler(cat Catalog, quoter ShippingQuoter) mcp.ToolHandlerFor[EstimateShippingInput, EstimateShippingResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input EstimateShippingInput) (*mcp.CallToolResult, EstimateShippingResult, error) {
		tier, err := catalog.ParseTier(input.Tier)
		if err != nil {
			return nil, EstimateShippingResult{}, toolError(err)
		}
		level, err := shipping.ParseServiceLevel(input.ServiceLevel)
		if err != nil {
			return nil, EstimateShippingResult{}, toolError(err)
		}
		items, err := shipping.MergeItems(lo.Map(input.Items, func(item EstimateShippingItem, _ int) shipping.Item {
			return shipping.Item{SKU: item.SKU, Quantity: item.Quantity}
		}))
		if err != nil {
			return nil, EstimateShippingResult{}, toolError(err)
		}

		var subtotal int64
		for _, item := range items {
			price, err := cat.Price(item.SKU, tier)
			if err != nil {
				return nil, EstimateShippingResult{}, toolError(err)
			}
			subtotal += price * int64(item.Quantity)
		}

		quote, err := quoter.Quote(ctx, shipping.QuoteRequest{
			Destination: shipping.Destination{
				Country:    input.Country,
				State:      input.State,
				PostalCode: input.PostalCode,
			},
			Items:         items,
			ServiceLevel:  level,
			SubtotalCents: subtotal,
		})
		if err != nil {
			return nil, EstimateShippingResult{}, toolError(err)
		}
		return nil, EstimateShippingResult{
			Zone:          string(quote.Zone),
			ServiceLevel:  string(quote.ServiceLevel),
			WeightOz:      quote.WeightOz,
			SubtotalCents: subtotal,
			AmountCents:   quote.AmountCents,
			AmountDisplay: money.FormatUSD(quote.AmountCents),
			Source:        quote.Source,
			Carrier:       quote.Carrier,
			MinDays:       quote.EstimatedDays.Min,
			MaxDays:       quote.EstimatedDays.Max,
			FreeShipping:  quote.FreeShipping,
		}, nil
	}
}
