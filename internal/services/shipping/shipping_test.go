package shipping

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/logging"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/acdrainwiz/drainwiz/internal/services/fulfillment/shipstation"
	"github.com/google/go-cmp/cmp"
)

func TestZoneFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		country string
		state   string
		want    Zone
		code    apperrors.Code
	}{
		{name: "florida", country: "US", state: "FL", want: Zone1},
		{name: "blank country is US", state: "tn", want: Zone2},
		{name: "texas", country: "us", state: "TX", want: Zone3},
		{name: "california", country: "US", state: "CA", want: Zone4},
		{name: "alaska", country: "US", state: "AK", want: Zone5},
		{name: "puerto rico as country", country: "PR", want: Zone5},
		{name: "ontario", country: "CA", state: "ON", want: ZoneCA},
		{name: "unknown state", country: "US", state: "ZZ", code: apperrors.CodeShippingUnsupported},
		{name: "unknown province", country: "CA", state: "TX", code: apperrors.CodeShippingUnsupported},
		{name: "unserved country", country: "GB", code: apperrors.CodeShippingUnsupported},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ZoneFor(tc.country, tc.state)
			if tc.code != "" {
				if !apperrors.HasCode(err, tc.code) {
					t.Fatalf("err = %v, want code %s", err, tc.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("ZoneFor: %v", err)
			}
			if got != tc.want {
				t.Fatalf("zone = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizePostal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		country, postal, want string
		wantErr               bool
	}{
		{country: "US", postal: "33602", want: "33602"},
		{country: "US", postal: " 33602-1234 ", want: "33602"},
		{country: "US", postal: "3360", wantErr: true},
		{country: "CA", postal: "k1a0b1", want: "K1A 0B1"},
		{country: "CA", postal: "K1A 0B1", want: "K1A 0B1"},
		{country: "CA", postal: "12345", wantErr: true},
	}
	for _, tc := range tests {
		got, err := NormalizePostal(tc.country, tc.postal)
		if tc.wantErr {
			if !apperrors.HasCode(err, apperrors.CodeInvalidArgument) {
				t.Fatalf("NormalizePostal(%q, %q) err = %v, want invalid argument", tc.country, tc.postal, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("NormalizePostal(%q, %q) = %q, %v; want %q", tc.country, tc.postal, got, err, tc.want)
		}
	}
}

func TestTableRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		zone   Zone
		level  ServiceLevel
		weight int
		want   int64
		ok     bool
	}{
		{name: "lightest tier", zone: Zone1, level: ServiceGround, weight: 8, want: 595, ok: true},
		{name: "tier boundary is inclusive", zone: Zone1, level: ServiceGround, weight: 16, want: 595, ok: true},
		{name: "second tier", zone: Zone3, level: ServiceGround, weight: 17, want: 1095, ok: true},
		{name: "over heaviest tier adds per pound", zone: Zone1, level: ServiceGround, weight: 321, want: 2055, ok: true},
		{name: "expedited markup", zone: Zone1, level: ServiceExpedited, weight: 8, want: 1542, ok: true},
		{name: "canada has no expedited", zone: ZoneCA, level: ServiceExpedited, weight: 8},
		{name: "zero weight", zone: Zone1, level: ServiceGround},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, _, ok := TableRate(tc.zone, tc.level, tc.weight)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("TableRate = %d, %v; want %d, %v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

type fakeSource struct {
	calls atomic.Int32
	rates []LiveRate
	err   error
}

func (f *fakeSource) Rates(context.Context, RateQuery) ([]LiveRate, error) {
	f.calls.Add(1)
	return f.rates, f.err
}

func newCalculator(source RateSource) *Calculator {
	return NewCalculator(catalog.Default(), Options{Source: source, Logger: logging.Discard()})
}

func floridaRequest(items ...Item) QuoteRequest {
	return QuoteRequest{
		Destination:  Destination{Country: "US", State: "FL", PostalCode: "33602"},
		Items:        items,
		ServiceLevel: ServiceGround,
	}
}

func TestQuoteUsesTableWithoutSource(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(catalog.Default(), Options{Logger: logging.Discard()})
	got, err := calc.Quote(context.Background(), floridaRequest(Item{SKU: "ADW-MINI", Quantity: 2}))
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	want := Quote{Zone: Zone1, ServiceLevel: ServiceGround, WeightOz: 16, AmountCents: 595, Source: SourceTable, EstimatedDays: DayRange{1, 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("quote mismatch (-want +got):\n%s", diff)
	}
}

func TestQuoteFreeGroundOverThreshold(t *testing.T) {
	t.Parallel()

	source := &fakeSource{}
	calc := newCalculator(source)
	req := floridaRequest(Item{SKU: "ADW-COMBO", Quantity: 2})
	req.SubtotalCents = FreeShippingThresholdCents
	got, err := calc.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !got.FreeShipping || got.AmountCents != 0 {
		t.Fatalf("quote = %+v, want free shipping", got)
	}
	if source.calls.Load() != 0 {
		t.Fatal("free shipping should not call the live source")
	}
}

func TestQuoteNoFreeShippingOutsideContiguous(t *testing.T) {
	t.Parallel()

	calc := newCalculator(nil)
	req := QuoteRequest{
		Destination:   Destination{Country: "US", State: "HI", PostalCode: "96813"},
		Items:         []Item{{SKU: "ADW-COMBO", Quantity: 2}},
		SubtotalCents: 50000,
	}
	got, err := calc.Quote(context.Background(), req)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if got.FreeShipping || got.AmountCents != 2195 {
		t.Fatalf("quote = %+v, want zone 5 second tier", got)
	}
}

func TestQuotePrefersCheapestLiveRate(t *testing.T) {
	t.Parallel()

	source := &fakeSource{rates: []LiveRate{
		{Carrier: "ups_walleted", ServiceCode: "ups_ground", Level: ServiceGround, AmountCents: 912},
		{Carrier: "stamps_com", ServiceCode: "usps_ground_advantage", ServiceName: "USPS Ground Advantage", Level: ServiceGround, AmountCents: 488},
		{Carrier: "stamps_com", ServiceCode: "usps_priority_mail", Level: ServiceExpedited, AmountCents: 301},
	}}
	calc := newCalculator(source)
	got, err := calc.Quote(context.Background(), floridaRequest(Item{SKU: "ADW-SENSOR", Quantity: 1}))
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if got.Source != SourceAPI || got.AmountCents != 488 || got.Carrier != "stamps_com" {
		t.Fatalf("quote = %+v, want cheapest ground live rate", got)
	}
}

func TestQuoteFallsBackToTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source *fakeSource
	}{
		{name: "source error", source: &fakeSource{err: errors.New("connection refused")}},
		{name: "no rates", source: &fakeSource{}},
		{name: "no matching level", source: &fakeSource{rates: []LiveRate{{ServiceCode: "ups_2nd_day_air", Level: ServiceExpedited, AmountCents: 100}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := newCalculator(tc.source).Quote(context.Background(), floridaRequest(Item{SKU: "ADW-MINI", Quantity: 1}))
			if err != nil {
				t.Fatalf("Quote: %v", err)
			}
			if got.Source != SourceTable || got.AmountCents != 595 {
				t.Fatalf("quote = %+v, want table fallback", got)
			}
		})
	}
}

func TestQuoteCachesByDestinationAndWeight(t *testing.T) {
	t.Parallel()

	source := &fakeSource{rates: []LiveRate{{Carrier: "ups_walleted", ServiceCode: "ups_ground", Level: ServiceGround, AmountCents: 700}}}
	calc := newCalculator(source)
	ctx := context.Background()

	if _, err := calc.Quote(ctx, floridaRequest(Item{SKU: "ADW-MINI", Quantity: 1})); err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if _, err := calc.Quote(ctx, floridaRequest(Item{SKU: "ADW-MINI", Quantity: 1})); err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if got := source.calls.Load(); got != 1 {
		t.Fatalf("source calls = %d, want 1", got)
	}
	if _, err := calc.Quote(ctx, floridaRequest(Item{SKU: "ADW-MINI", Quantity: 3})); err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if got := source.calls.Load(); got != 2 {
		t.Fatalf("source calls = %d, want 2 after weight change", got)
	}
}

func TestQuoteDoesNotCacheTableFallback(t *testing.T) {
	t.Parallel()

	source := &fakeSource{err: errors.New("connection refused")}
	calc := newCalculator(source)
	ctx := context.Background()

	first, err := calc.Quote(ctx, floridaRequest(Item{SKU: "ADW-MINI", Quantity: 1}))
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if first.Source != SourceTable {
		t.Fatalf("first quote = %+v, want table fallback", first)
	}

	source.err = nil
	source.rates = []LiveRate{{Carrier: "ups_walleted", ServiceCode: "ups_ground", Level: ServiceGround, AmountCents: 700}}
	second, err := calc.Quote(ctx, floridaRequest(Item{SKU: "ADW-MINI", Quantity: 1}))
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if second.Source != SourceAPI || second.AmountCents != 700 {
		t.Fatalf("second quote = %+v, want live rate", second)
	}
	if got := source.calls.Load(); got != 2 {
		t.Fatalf("source calls = %d, want 2", got)
	}
}

func TestMergeItems(t *testing.T) {
	t.Parallel()

	got, err := MergeItems([]Item{
		{SKU: "adw-mini", Quantity: 2},
		{SKU: "ADW-SENSOR", Quantity: 1},
		{SKU: " ADW-MINI", Quantity: 98},
	})
	if err != nil {
		t.Fatalf("MergeItems: %v", err)
	}
	want := []Item{{SKU: "ADW-MINI", Quantity: 100}, {SKU: "ADW-SENSOR", Quantity: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merged mismatch (-want +got):\n%s", diff)
	}

	_, err = MergeItems([]Item{{SKU: "ADW-MINI", Quantity: 100}, {SKU: "adw-mini", Quantity: 1}})
	if !apperrors.HasCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
}

func TestQuoteRejectsBadInput(t *testing.T) {
	t.Parallel()

	calc := newCalculator(nil)
	tests := []struct {
		name string
		req  QuoteRequest
		code apperrors.Code
	}{
		{name: "empty cart", req: floridaRequest(), code: apperrors.CodeInvalidArgument},
		{name: "zero quantity", req: floridaRequest(Item{SKU: "ADW-MINI"}), code: apperrors.CodeInvalidArgument},
		{name: "quantity over limit", req: floridaRequest(Item{SKU: "ADW-MINI", Quantity: 101}), code: apperrors.CodeInvalidArgument},
		{name: "split lines over limit", req: floridaRequest(Item{SKU: "ADW-MINI", Quantity: 60}, Item{SKU: " adw-mini ", Quantity: 60}), code: apperrors.CodeInvalidArgument},
		{name: "unknown sku", req: floridaRequest(Item{SKU: "NOPE", Quantity: 1}), code: apperrors.CodeNotFound},
		{name: "bad zip", req: QuoteRequest{Destination: Destination{Country: "US", State: "FL", PostalCode: "abc"}, Items: []Item{{SKU: "ADW-MINI", Quantity: 1}}}, code: apperrors.CodeInvalidArgument},
		{name: "expedited to canada", req: QuoteRequest{Destination: Destination{Country: "CA", State: "ON", PostalCode: "K1A 0B1"}, Items: []Item{{SKU: "ADW-MINI", Quantity: 1}}, ServiceLevel: ServiceExpedited}, code: apperrors.CodeServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := calc.Quote(context.Background(), tc.req); !apperrors.HasCode(err, tc.code) {
				t.Fatalf("err = %v, want code %s", err, tc.code)
			}
		})
	}
}

func TestParseServiceLevel(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]ServiceLevel{"": ServiceGround, "Ground": ServiceGround, " expedited ": ServiceExpedited} {
		got, err := ParseServiceLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseServiceLevel(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseServiceLevel("overnight"); !apperrors.HasCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
}

type fakeLister struct {
	mu       sync.Mutex
	requests []shipstation.RateRequest
	byCode   map[string][]shipstation.Rate
	fail     map[string]bool
}

func (f *fakeLister) GetRates(_ context.Context, req shipstation.RateRequest) ([]shipstation.Rate, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.fail[req.CarrierCode] {
		return nil, errors.New("carrier down")
	}
	return f.byCode[req.CarrierCode], nil
}

func TestShipStationSourceKeepsPartialResults(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{
		byCode: map[string][]shipstation.Rate{
			"stamps_com": {
				{ServiceName: "USPS Ground Advantage", ServiceCode: "usps_ground_advantage", ShipmentCost: 5.00, OtherCost: 0.25},
				{ServiceName: "USPS Media Mail", ServiceCode: "usps_media_mail", ShipmentCost: 3.00},
			},
		},
		fail: map[string]bool{"ups_walleted": true},
	}
	source := ShipStationSource{Client: lister, Carriers: []string{"stamps_com", "ups_walleted"}, FromPostal: "33602"}
	rates, err := source.Rates(context.Background(), RateQuery{
		Destination: Destination{Country: "US", State: "GA", PostalCode: "30301"},
		WeightOz:    8,
	})
	if err != nil {
		t.Fatalf("Rates: %v", err)
	}
	want := []LiveRate{{Carrier: "stamps_com", ServiceCode: "usps_ground_advantage", ServiceName: "USPS Ground Advantage", Level: ServiceGround, AmountCents: 525}}
	if diff := cmp.Diff(want, rates); diff != "" {
		t.Fatalf("rates mismatch (-want +got):\n%s", diff)
	}
	if len(lister.requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(lister.requests))
	}
	for _, req := range lister.requests {
		if req.FromPostalCode != "33602" || req.ToPostalCode != "30301" || req.Weight.Value != 8 {
			t.Fatalf("request = %+v", req)
		}
	}
}

func TestShipStationSourceFailsWhenEveryCarrierFails(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{fail: map[string]bool{"stamps_com": true, "ups_walleted": true}}
	source := ShipStationSource{Client: lister, Carriers: []string{"stamps_com", "ups_walleted"}}
	if _, err := source.Rates(context.Background(), RateQuery{WeightOz: 8}); err == nil {
		t.Fatal("expected error when every carrier fails")
	}
	if _, err := (ShipStationSource{Client: lister}).Rates(context.Background(), RateQuery{}); err == nil {
		t.Fatal("expected error without carriers")
	}
}
