package botdefense

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Config tunes the checks.
type Config struct {
	HoneypotFields    []string      `env:"DRAINWIZ_BOT_HONEYPOT_FIELDS" envSeparator:"," envDefault:"website,company_url,fax_number"`
	TokenTTL          time.Duration `env:"DRAINWIZ_BOT_TOKEN_TTL" envDefault:"1h"`
	MinFillTime       time.Duration `env:"DRAINWIZ_BOT_MIN_FILL_TIME" envDefault:"3s"`
	RateLimit         int           `env:"DRAINWIZ_BOT_RATE_LIMIT" envDefault:"5"`
	RateWindow        time.Duration `env:"DRAINWIZ_BOT_RATE_WINDOW" envDefault:"10m"`
	StrikeLimit       int           `env:"DRAINWIZ_BOT_STRIKE_LIMIT" envDefault:"3"`
	StrikeWindow      time.Duration `env:"DRAINWIZ_BOT_STRIKE_WINDOW" envDefault:"24h"`
	Blocklist         []string      `env:"DRAINWIZ_BOT_BLOCKLIST" envSeparator:","`
	RecaptchaSecret   string        `env:"DRAINWIZ_RECAPTCHA_SECRET"`
	RecaptchaMinScore float64       `env:"DRAINWIZ_RECAPTCHA_MIN_SCORE" envDefault:"0.5"`
	RecaptchaURL      string        `env:"DRAINWIZ_RECAPTCHA_URL" envDefault:"https://www.google.com/recaptcha/api"`
	RejectThreshold   float64       `env:"DRAINWIZ_BOT_REJECT_THRESHOLD" envDefault:"1.0"`
	CacheSize         int           `env:"DRAINWIZ_BOT_CACHE_SIZE" envDefault:"10000"`
}

// Normalized fills defaults for zero values.
func (c Config) Normalized() Config {
	if len(c.HoneypotFields) == 0 {
		c.HoneypotFields = []string{"website", "company_url", "fax_number"}
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = defaultTokenTTL
	}
	if c.MinFillTime <= 0 {
		c.MinFillTime = defaultMinFillTime
	}
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.RateWindow <= 0 {
		c.RateWindow = defaultRateWindow
	}
	if c.StrikeLimit <= 0 {
		c.StrikeLimit = defaultStrikeLimit
	}
	if c.StrikeWindow <= 0 {
		c.StrikeWindow = defaultStrikeWindow
	}
	if c.RecaptchaMinScore <= 0 {
		c.RecaptchaMinScore = defaultMinScore
	}
	if c.RecaptchaURL == "" {
		c.RecaptchaURL = "https://www.google.com/recaptcha/api"
	}
	if c.RejectThreshold <= 0 {
		c.RejectThreshold = defaultThreshold
	}
	if c.CacheSize <= 0 {
		c.CacheSize = defaultCacheSize
	}
	return c
}

func parseBlocklist(values []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("blocklist entry %q: %w", raw, err)
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("blocklist entry %q: %w", raw, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}
