// Package shipping estimates shipping costs from a Florida origin using a
// zone table and weight tiers, optionally preferring live carrier rates.
package shipping

import (
	"regexp"
	"strings"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
)

// Zone is a coarse distance bucket from the warehouse.
type Zone string

const (
	Zone1  Zone = "1"
	Zone2  Zone = "2"
	Zone3  Zone = "3"
	Zone4  Zone = "4"
	Zone5  Zone = "5"
	ZoneCA Zone = "intl-ca"
)

// Contiguous reports whether the zone is in the lower 48 states.
func (z Zone) Contiguous() bool {
	switch z {
	case Zone1, Zone2, Zone3, Zone4:
		return true
	default:
		return false
	}
}

var stateZones = func() map[string]Zone {
	groups := map[Zone][]string{
		Zone1: {"FL", "GA", "AL", "SC"},
		Zone2: {"NC", "TN", "MS", "LA", "KY", "VA", "WV", "AR"},
		Zone3: {"TX", "OK", "MO", "KS", "NE", "IA", "IL", "IN", "OH", "MI", "WI", "MN",
			"PA", "MD", "DE", "NJ", "NY", "CT", "RI", "MA", "VT", "NH", "ME", "DC", "SD", "ND"},
		Zone4: {"CO", "NM", "AZ", "UT", "NV", "WY", "MT", "ID", "WA", "OR", "CA"},
		Zone5: {"AK", "HI", "PR", "GU", "VI", "AS", "MP", "AA", "AE", "AP"},
	}
	out := make(map[string]Zone, 61)
	for zone, states := range groups {
		for _, state := range states {
			out[state] = zone
		}
	}
	return out
}()

// territories ship as their own ISO country code.
var territories = map[string]bool{"PR": true, "GU": true, "VI": true, "AS": true, "MP": true}

var canadianProvinces = map[string]bool{
	"AB": true, "BC": true, "MB": true, "NB": true, "NL": true, "NS": true, "NT": true,
	"NU": true, "ON": true, "PE": true, "QC": true, "SK": true, "YT": true,
}

// ZoneFor maps a destination to its shipping zone.
func ZoneFor(country, state string) (Zone, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	state = strings.ToUpper(strings.TrimSpace(state))

	switch {
	case country == "" || country == "US":
		zone, ok := stateZones[state]
		if !ok {
			return "", apperrors.WithMetadata(apperrors.CodeShippingUnsupported, "unknown US state", map[string]string{"state": state})
		}
		return zone, nil
	case territories[country]:
		return Zone5, nil
	case country == "CA":
		if state != "" && !canadianProvinces[state] {
			return "", apperrors.WithMetadata(apperrors.CodeShippingUnsupported, "unknown province", map[string]string{"state": state})
		}
		return ZoneCA, nil
	default:
		return "", apperrors.WithMetadata(apperrors.CodeShippingUnsupported, "country not served", map[string]string{"country": country})
	}
}

var (
	usPostal = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	caPostal = regexp.MustCompile(`^[A-Z]\d[A-Z] ?\d[A-Z]\d$`)
)

// NormalizePostal validates and canonicalizes a postal code for country.
// US codes are reduced to five digits; Canadian codes get a single space.
func NormalizePostal(country, postal string) (string, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	postal = strings.ToUpper(strings.TrimSpace(postal))
	switch {
	case country == "" || country == "US" || territories[country]:
		if !usPostal.MatchString(postal) {
			return "", apperrors.WithMetadata(apperrors.CodeInvalidArgument, "invalid ZIP code", map[string]string{"postal_code": "Enter a 5-digit ZIP code."})
		}
		return postal[:5], nil
	case country == "CA":
		if !caPostal.MatchString(postal) {
			return "", apperrors.WithMetadata(apperrors.CodeInvalidArgument, "invalid postal code", map[string]string{"postal_code": "Enter a postal code like K1A 0B1."})
		}
		compact := strings.ReplaceAll(postal, " ", "")
		return compact[:3] + " " + compact[3:], nil
	default:
		return postal, nil
	}
}
