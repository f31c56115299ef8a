package botdefense

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type issuedToken struct {
	form     string
	issuedAt time.Time
}

// Tokens issues one-time CSRF tokens bound to a form.
type Tokens struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, issuedToken]
	ttl   time.Duration
	clock func() time.Time
}

// NewTokens builds a token store holding up to size live tokens.
func NewTokens(size int, ttl time.Duration) *Tokens {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Tokens{
		cache: expirable.NewLRU[string, issuedToken](size, nil, ttl),
		ttl:   ttl,
		clock: time.Now,
	}
}

// Issue returns a fresh token for form.
func (t *Tokens) Issue(form string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	t.mu.Lock()
	t.cache.Add(token, issuedToken{form: form, issuedAt: t.clock()})
	t.mu.Unlock()
	return token, nil
}

// TTL is how long an unused token stays valid.
func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

// consume removes token and reports when it was issued. Any token that is
// unknown, used, expired or bound to another form yields a block signal.
func (t *Tokens) consume(token, form string) (time.Time, Signal) {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}, Block(CheckCSRF, "missing csrf token")
	}
	t.mu.Lock()
	entry, ok := t.cache.Peek(token)
	if ok {
		t.cache.Remove(token)
	}
	t.mu.Unlock()
	if !ok {
		return time.Time{}, Block(CheckCSRF, "unknown or used csrf token")
	}
	if t.clock().Sub(entry.issuedAt) > t.ttl {
		return time.Time{}, Block(CheckCSRF, "expired csrf token")
	}
	if entry.form != form {
		return time.Time{}, Block(CheckCSRF, "csrf token issued for another form")
	}
	return entry.issuedAt, Pass(CheckCSRF)
}

func checkTiming(issuedAt, now time.Time, min time.Duration) Signal {
	if elapsed := now.Sub(issuedAt); elapsed < min {
		return Block(CheckTiming, fmt.Sprintf("submitted %s after load", elapsed.Round(time.Millisecond)))
	}
	return Pass(CheckTiming)
}
