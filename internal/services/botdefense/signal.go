package botdefense

import (
	"net/netip"
	"time"
)

// Outcome is the result class of a single check.
type Outcome string

const (
	OutcomePass       Outcome = "pass"
	OutcomeSuspicious Outcome = "suspicious"
	OutcomeBlock      Outcome = "block"
)

// Check names, used in verdicts, logs and metrics.
const (
	CheckHoneypot   = "honeypot"
	CheckCSRF       = "csrf"
	CheckTiming     = "timing"
	CheckRateLimit  = "rate_limit"
	CheckReputation = "ip_reputation"
	CheckRecaptcha  = "recaptcha"
	CheckHeuristics = "heuristics"
	checkThreshold  = "threshold"
)

// Signal is what one check concluded.
type Signal struct {
	Check   string
	Outcome Outcome
	Weight  float64
	Reason  string
}

// Pass is a clean signal.
func Pass(check string) Signal {
	return Signal{Check: check, Outcome: OutcomePass}
}

// Suspicious adds weight toward rejection.
func Suspicious(check string, weight float64, reason string) Signal {
	return Signal{Check: check, Outcome: OutcomeSuspicious, Weight: weight, Reason: reason}
}

// Block rejects the submission outright.
func Block(check, reason string) Signal {
	return Signal{Check: check, Outcome: OutcomeBlock, Reason: reason}
}

// Submission is what the pipeline inspects.
type Submission struct {
	Form string
	IP   netip.Addr
	// Token is the CSRF token issued when the form loaded.
	Token          string
	RecaptchaToken string
	// Fields holds every submitted value, honeypots included.
	Fields map[string]string
	// Email is the submitter's address, if the form has one.
	Email string
	// Text is the concatenated free-text content.
	Text string
	// Interactions counts client-side input events reported by the page.
	Interactions int
}

// Verdict is the pipeline's decision.
type Verdict struct {
	Allowed   bool
	Score     float64
	Reasons   []string
	BlockedBy string
}

// Defaults applied by Config.Normalized.
const (
	defaultTokenTTL     = time.Hour
	defaultMinFillTime  = 3 * time.Second
	defaultRateLimit    = 5
	defaultRateWindow   = 10 * time.Minute
	defaultStrikeLimit  = 3
	defaultStrikeWindow = 24 * time.Hour
	defaultMinScore     = 0.5
	defaultThreshold    = 1.0
	defaultCacheSize    = 10000
)
