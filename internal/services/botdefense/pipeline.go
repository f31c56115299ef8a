package botdefense

import (
	"context"
	"fmt"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/platform/metrics"
	"github.com/sirupsen/logrus"
)

// Pipeline runs every check against a submission.
type Pipeline struct {
	cfg        Config
	tokens     *Tokens
	limiter    *RateLimiter
	reputation *Reputation
	verifier   Verifier
	log        *logrus.Entry
	clock      func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithVerifier replaces the reCAPTCHA verifier.
func WithVerifier(v Verifier) Option {
	return func(p *Pipeline) { p.verifier = v }
}

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		p.clock = clock
		p.tokens.clock = clock
	}
}

// New builds a pipeline. reCAPTCHA is only checked when a secret is
// configured or a verifier is supplied.
func New(cfg Config, log *logrus.Entry, opts ...Option) (*Pipeline, error) {
	cfg = cfg.Normalized()
	blocklist, err := parseBlocklist(cfg.Blocklist)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &Pipeline{
		cfg:        cfg,
		tokens:     NewTokens(cfg.CacheSize, cfg.TokenTTL),
		limiter:    NewRateLimiter(cfg.CacheSize, cfg.RateLimit, cfg.RateWindow),
		reputation: NewReputation(blocklist, cfg.CacheSize, cfg.StrikeLimit, cfg.StrikeWindow),
		log:        log,
		clock:      time.Now,
	}
	if cfg.RecaptchaSecret != "" {
		p.verifier = NewSiteVerifier(cfg.RecaptchaSecret, cfg.RecaptchaURL, nil)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// IssueToken returns a CSRF token for a form load.
func (p *Pipeline) IssueToken(form string) (string, error) {
	return p.tokens.Issue(form)
}

// TokenTTL is how long issued tokens stay valid.
func (p *Pipeline) TokenTTL() time.Duration {
	return p.tokens.TTL()
}

// Evaluate screens sub. The first block wins; otherwise suspicion weights
// are summed and compared with the reject threshold.
func (p *Pipeline) Evaluate(ctx context.Context, sub Submission) Verdict {
	now := p.clock()
	var signals []Signal

	run := func(s Signal) bool {
		signals = append(signals, s)
		return s.Outcome == OutcomeBlock
	}

	verdict := func() Verdict {
		var v Verdict
		for _, s := range signals {
			switch s.Outcome {
			case OutcomeBlock:
				v.BlockedBy = s.Check
				v.Reasons = append(v.Reasons, s.Reason)
			case OutcomeSuspicious:
				v.Score += s.Weight
				v.Reasons = append(v.Reasons, s.Reason)
			}
		}
		if v.BlockedBy == "" && v.Score >= p.cfg.RejectThreshold {
			v.BlockedBy = checkThreshold
		}
		v.Allowed = v.BlockedBy == ""
		return v
	}

	blocked := run(checkHoneypot(sub.Fields, p.cfg.HoneypotFields))
	if !blocked {
		issuedAt, s := p.tokens.consume(sub.Token, sub.Form)
		blocked = run(s)
		if !blocked {
			blocked = run(checkTiming(issuedAt, now, p.cfg.MinFillTime))
		}
	}
	if !blocked {
		blocked = run(p.limiter.check(sub, now))
	}
	if !blocked {
		blocked = run(p.reputation.check(sub, now))
	}
	if !blocked {
		blocked = run(checkRecaptcha(ctx, p.verifier, p.cfg.RecaptchaMinScore, sub))
	}
	if !blocked {
		signals = append(signals, checkHeuristics(sub)...)
	}

	v := verdict()
	p.record(sub, v, now)
	return v
}

func (p *Pipeline) record(sub Submission, v Verdict, now time.Time) {
	outcome := "allowed"
	check := "none"
	if !v.Allowed {
		outcome = "rejected"
		check = v.BlockedBy
		p.reputation.Strike(sub.IP, now)
	}
	metrics.BotVerdicts.WithLabelValues(sub.Form, outcome, check).Inc()

	entry := p.log.WithFields(logrus.Fields{
		"form":    sub.Form,
		"ip":      sub.IP.String(),
		"score":   fmt.Sprintf("%.2f", v.Score),
		"reasons": v.Reasons,
	})
	if v.Allowed {
		entry.Debug("form submission allowed")
		return
	}
	entry.WithField("blocked_by", v.BlockedBy).Info("form submission rejected")
}
