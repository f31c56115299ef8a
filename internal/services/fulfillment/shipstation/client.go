// Package shipstation is a minimal client for the ShipStation v1 REST API:
// order creation for fulfillment and live rate lookups for shipping quotes.
package shipstation

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/acdrainwiz/drainwiz/internal/platform/money"
	"github.com/acdrainwiz/drainwiz/internal/platform/upstream"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://ssapi.shipstation.com"

// Config holds API credentials.
type Config struct {
	BaseURL    string   `env:"DRAINWIZ_SHIPSTATION_BASE_URL" envDefault:"https://ssapi.shipstation.com"`
	APIKey     string   `env:"DRAINWIZ_SHIPSTATION_API_KEY"`
	APISecret  string   `env:"DRAINWIZ_SHIPSTATION_API_SECRET"`
	StoreID    int      `env:"DRAINWIZ_SHIPSTATION_STORE_ID"`
	FromPostal string   `env:"DRAINWIZ_SHIPSTATION_FROM_POSTAL" envDefault:"33602"`
	Carriers   []string `env:"DRAINWIZ_SHIPSTATION_CARRIERS" envSeparator:"," envDefault:"stamps_com,ups_walleted,fedex_walleted"`
}

// Enabled reports whether credentials are present.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.APISecret) != ""
}

// Client calls ShipStation.
type Client struct {
	api     *upstream.Client
	storeID int
}

// New returns a client using basic auth credentials from cfg.
func New(cfg Config, opts ...upstream.Option) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	opts = append([]upstream.Option{upstream.WithBasicAuth(cfg.APIKey, cfg.APISecret)}, opts...)
	return &Client{api: upstream.New("shipstation", base, opts...), storeID: cfg.StoreID}
}

// Amount is a dollar amount encoded as a bare JSON number with two
// decimal places.
type Amount struct {
	decimal.Decimal
}

// Cents converts an integer cent amount.
func Cents(cents int64) Amount {
	return Amount{Decimal: money.Dollars(cents)}
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.StringFixed(2)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.Decimal.UnmarshalJSON(b)
}

// Weight is a package or item weight.
type Weight struct {
	Value float64 `json:"value"`
	Units string  `json:"units"`
}

// Ounces builds a weight in ounces.
func Ounces(oz int) Weight {
	return Weight{Value: float64(oz), Units: "ounces"}
}

// Dimensions are package dimensions.
type Dimensions struct {
	Units  string  `json:"units"`
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Address is a ShipStation postal address.
type Address struct {
	Name        string `json:"name"`
	Company     string `json:"company,omitempty"`
	Street1     string `json:"street1"`
	Street2     string `json:"street2,omitempty"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postalCode"`
	Country     string `json:"country"`
	Phone       string `json:"phone,omitempty"`
	Residential bool   `json:"residential"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	LineItemKey string `json:"lineItemKey"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   Amount `json:"unitPrice"`
	Weight      Weight `json:"weight"`
}

// AdvancedOptions carries store routing and custom fields.
type AdvancedOptions struct {
	StoreID      int    `json:"storeId,omitempty"`
	CustomField1 string `json:"customField1,omitempty"`
	CustomField2 string `json:"customField2,omitempty"`
	Source       string `json:"source,omitempty"`
}

// Order is the createorder request body.
type Order struct {
	OrderNumber              string          `json:"orderNumber"`
	OrderKey                 string          `json:"orderKey"`
	OrderDate                string          `json:"orderDate"`
	PaymentDate              string          `json:"paymentDate"`
	OrderStatus              string          `json:"orderStatus"`
	CustomerEmail            string          `json:"customerEmail"`
	BillTo                   Address         `json:"billTo"`
	ShipTo                   Address         `json:"shipTo"`
	Items                    []OrderItem     `json:"items"`
	AmountPaid               Amount          `json:"amountPaid"`
	ShippingAmount           Amount          `json:"shippingAmount"`
	RequestedShippingService string          `json:"requestedShippingService,omitempty"`
	Weight                   Weight          `json:"weight"`
	AdvancedOptions          AdvancedOptions `json:"advancedOptions"`
}

// CreatedOrder is the subset of the createorder response we keep.
type CreatedOrder struct {
	OrderID     int64  `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	OrderKey    string `json:"orderKey"`
	OrderStatus string `json:"orderStatus"`
}

// CreateOrder creates or updates the order identified by OrderKey. Calls
// with the same key update the existing order, so retries are safe.
func (c *Client) CreateOrder(ctx context.Context, order Order) (CreatedOrder, error) {
	if order.OrderKey == "" {
		return CreatedOrder{}, fmt.Errorf("shipstation: order key is required")
	}
	if order.OrderStatus == "" {
		order.OrderStatus = "awaiting_shipment"
	}
	if c.storeID != 0 && order.AdvancedOptions.StoreID == 0 {
		order.AdvancedOptions.StoreID = c.storeID
	}
	var created CreatedOrder
	if err := c.api.DoJSON(ctx, http.MethodPost, "/orders/createorder", order, &created); err != nil {
		return CreatedOrder{}, err
	}
	return created, nil
}

// RateRequest is the getrates request body. CarrierCode is required by
// the API, so callers query one carrier per request.
type RateRequest struct {
	CarrierCode    string      `json:"carrierCode"`
	ServiceCode    string      `json:"serviceCode,omitempty"`
	FromPostalCode string      `json:"fromPostalCode"`
	ToState        string      `json:"toState,omitempty"`
	ToCountry      string      `json:"toCountry"`
	ToPostalCode   string      `json:"toPostalCode"`
	Weight         Weight      `json:"weight"`
	Dimensions     *Dimensions `json:"dimensions,omitempty"`
	Confirmation   string      `json:"confirmation,omitempty"`
	Residential    bool        `json:"residential"`
}

// Rate is one quoted service.
type Rate struct {
	ServiceName  string  `json:"serviceName"`
	ServiceCode  string  `json:"serviceCode"`
	ShipmentCost float64 `json:"shipmentCost"`
	OtherCost    float64 `json:"otherCost"`
}

// GetRates lists rates for one carrier.
func (c *Client) GetRates(ctx context.Context, req RateRequest) ([]Rate, error) {
	if req.CarrierCode == "" {
		return nil, fmt.Errorf("shipstation: carrier code is required")
	}
	var rates []Rate
	if err := c.api.DoJSON(ctx, http.MethodPost, "/shipments/getrates", req, &rates); err != nil {
		return nil, err
	}
	return rates, nil
}
