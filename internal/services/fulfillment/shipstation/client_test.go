package shipstation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/platform/upstream"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "key", APISecret: "secret", StoreID: 42},
		upstream.WithRetryPolicy(upstream.RetryPolicy{MaxTries: 2, MinWait: time.Millisecond, MaxWait: time.Millisecond}))
}

func TestCreateOrder(t *testing.T) {
	t.Parallel()

	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/createorder" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "key" || pass != "secret" {
			t.Errorf("basic auth = %q/%q", user, pass)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"orderId":991,"orderNumber":"DW-1001","orderKey":"ord_1","orderStatus":"awaiting_shipment"}`))
	})

	created, err := client.CreateOrder(context.Background(), Order{
		OrderNumber: "DW-1001",
		OrderKey:    "ord_1",
		Items: []OrderItem{{
			SKU: "ADW-MINI", Name: "AC Drain Wiz Mini", Quantity: 2,
			UnitPrice: Cents(3999), Weight: Ounces(8),
		}},
		AmountPaid: Cents(8593),
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if created.OrderID != 991 {
		t.Fatalf("order id = %d, want 991", created.OrderID)
	}
	if got["orderStatus"] != "awaiting_shipment" {
		t.Fatalf("orderStatus = %v", got["orderStatus"])
	}
	opts := got["advancedOptions"].(map[string]any)
	if opts["storeId"] != float64(42) {
		t.Fatalf("storeId = %v, want 42", opts["storeId"])
	}
	items := got["items"].([]any)
	item := items[0].(map[string]any)
	if item["unitPrice"] != 39.99 {
		t.Fatalf("unitPrice = %v, want 39.99", item["unitPrice"])
	}
}

func TestCreateOrderRequiresKey(t *testing.T) {
	t.Parallel()

	client := New(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := client.CreateOrder(context.Background(), Order{}); err == nil {
		t.Fatal("expected missing key error")
	}
}

func TestGetRates(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req RateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.CarrierCode != "stamps_com" || req.Weight.Units != "ounces" {
			t.Errorf("rate request = %+v", req)
		}
		_, _ = w.Write([]byte(`[{"serviceName":"USPS Ground Advantage","serviceCode":"usps_ground_advantage","shipmentCost":6.1,"otherCost":0.25}]`))
	})

	rates, err := client.GetRates(context.Background(), RateRequest{
		CarrierCode: "stamps_com", FromPostalCode: "33602", ToCountry: "US", ToPostalCode: "10001", Weight: Ounces(21),
	})
	if err != nil {
		t.Fatalf("get rates: %v", err)
	}
	if len(rates) != 1 || rates[0].ServiceCode != "usps_ground_advantage" {
		t.Fatalf("rates = %+v", rates)
	}
	if _, err := client.GetRates(context.Background(), RateRequest{}); err == nil {
		t.Fatal("expected carrier code error")
	}
}

func TestAmountJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(struct {
		A Amount `json:"a"`
	}{A: Cents(1500)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"a":15.00}` {
		t.Fatalf("json = %s", data)
	}
	var back struct {
		A Amount `json:"a"`
	}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.A.Equal(Cents(1500).Decimal) {
		t.Fatalf("round trip = %s", back.A)
	}
}

func TestConfigEnabled(t *testing.T) {
	t.Parallel()

	if (Config{}).Enabled() {
		t.Fatal("empty config should be disabled")
	}
	if !(Config{APIKey: "k", APISecret: "s"}).Enabled() {
		t.Fatal("expected enabled")
	}
}
