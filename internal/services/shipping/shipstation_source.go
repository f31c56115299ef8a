package shipping

import (
	"context"
	"errors"
	"sync"

	"github.com/acdrainwiz/drainwiz/internal/platform/money"
	"github.com/acdrainwiz/drainwiz/internal/services/fulfillment/shipstation"
	"golang.org/x/sync/errgroup"
)

// serviceLevels maps ShipStation service codes to our service levels.
// Codes not listed are ignored.
var serviceLevels = map[string]ServiceLevel{
	"usps_ground_advantage":      ServiceGround,
	"usps_parcel_select":         ServiceGround,
	"ups_ground":                 ServiceGround,
	"ups_standard":               ServiceGround,
	"fedex_ground":               ServiceGround,
	"fedex_home_delivery":        ServiceGround,
	"usps_priority_mail":         ServiceExpedited,
	"usps_priority_mail_express": ServiceExpedited,
	"ups_2nd_day_air":            ServiceExpedited,
	"ups_3_day_select":           ServiceExpedited,
	"fedex_2day":                 ServiceExpedited,
	"fedex_express_saver":        ServiceExpedited,
	"usps_first_class_mail_intl": ServiceGround,
	"usps_priority_mail_intl":    ServiceExpedited,
}

// RateLister is the ShipStation call the source depends on.
type RateLister interface {
	GetRates(ctx context.Context, req shipstation.RateRequest) ([]shipstation.Rate, error)
}

// ShipStationSource queries every configured carrier concurrently.
type ShipStationSource struct {
	Client     RateLister
	Carriers   []string
	FromPostal string
}

// Rates returns the rates of every carrier that answered. It fails only
// when no carrier answered.
func (s ShipStationSource) Rates(ctx context.Context, q RateQuery) ([]LiveRate, error) {
	if len(s.Carriers) == 0 {
		return nil, errors.New("no carriers configured")
	}

	var (
		mu   sync.Mutex
		out  []LiveRate
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, carrier := range s.Carriers {
		g.Go(func() error {
			rates, err := s.Client.GetRates(gctx, shipstation.RateRequest{
				CarrierCode:    carrier,
				FromPostalCode: s.FromPostal,
				ToState:        q.Destination.State,
				ToCountry:      q.Destination.Country,
				ToPostalCode:   q.Destination.PostalCode,
				Weight:         shipstation.Ounces(q.WeightOz),
				Dimensions: &shipstation.Dimensions{
					Units:  "inches",
					Length: q.Dimensions.Length,
					Width:  q.Dimensions.Width,
					Height: q.Dimensions.Height,
				},
				Confirmation: "none",
				Residential:  true,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			for _, rate := range rates {
				level, ok := serviceLevels[rate.ServiceCode]
				if !ok {
					continue
				}
				out = append(out, LiveRate{
					Carrier:     carrier,
					ServiceCode: rate.ServiceCode,
					ServiceName: rate.ServiceName,
					Level:       level,
					AmountCents: money.FromFloat(rate.ShipmentCost + rate.OtherCost),
				})
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
