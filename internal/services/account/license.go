package account

import (
	"regexp"
	"sort"
	"strings"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
)

// defaultLicensePattern applies to states without a specific format.
var defaultLicensePattern = regexp.MustCompile(`^[A-Z0-9-]{4,20}$`)

// licensePatterns holds known HVAC/mechanical contractor license formats.
var licensePatterns = map[string]*regexp.Regexp{
	"AL": regexp.MustCompile(`^\d{5,6}$`),
	"AZ": regexp.MustCompile(`^ROC\d{6}$`),
	"CA": regexp.MustCompile(`^\d{6,8}$`),
	"FL": regexp.MustCompile(`^(CAC|CMC|CFC|EC|ER)\d{6,7}$`),
	"GA": regexp.MustCompile(`^CN\d{6}$`),
	"LA": regexp.MustCompile(`^\d{5,6}$`),
	"NC": regexp.MustCompile(`^\d{5}$`),
	"NV": regexp.MustCompile(`^\d{5,7}$`),
	"SC": regexp.MustCompile(`^(M|CLM)\d{4,6}$`),
	"TN": regexp.MustCompile(`^\d{5,8}$`),
	"TX": regexp.MustCompile(`^TACL[AB]\d{5,6}[CE]?$`),
	"UT": regexp.MustCompile(`^\d{6,8}-\d{4}$`),
}

// NormalizeLicense upper-cases and trims a license number and drops inner
// spaces.
func NormalizeLicense(value string) string {
	return strings.ToUpper(strings.Join(strings.Fields(value), ""))
}

// ValidateLicense checks number against the state's format and returns the
// normalized number.
func ValidateLicense(state, number string) (string, error) {
	state = strings.ToUpper(strings.TrimSpace(state))
	normalized := NormalizeLicense(number)
	pattern, ok := licensePatterns[state]
	if !ok {
		pattern = defaultLicensePattern
	}
	if normalized == "" || !pattern.MatchString(normalized) {
		return "", apperrors.WithMetadata(apperrors.CodeLicenseInvalid, "license number does not match state format", map[string]string{
			"license_number": "That license number does not match the format for " + state + ".",
		})
	}
	return normalized, nil
}

// LicenseFormat describes the expected format for a state.
func LicenseFormat(state string) (pattern string, specific bool) {
	p, ok := licensePatterns[strings.ToUpper(strings.TrimSpace(state))]
	if !ok {
		return defaultLicensePattern.String(), false
	}
	return p.String(), true
}

// LicenseStates lists states with a specific format, sorted.
func LicenseStates() []string {
	states := make([]string, 0, len(licensePatterns))
	for state := range licensePatterns {
		states = append(states, state)
	}
	sort.Strings(states)
	return states
}
