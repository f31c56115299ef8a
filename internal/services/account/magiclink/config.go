// Package magiclink holds magic-link sign-in settings and token helpers.
package magiclink

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config controls magic link timing and the landing URL.
type Config struct {
	BaseURL string        `env:"DRAINWIZ_MAGIC_LINK_BASE_URL" envDefault:"http://localhost:8080/auth/magic"`
	TTL     time.Duration `env:"DRAINWIZ_MAGIC_LINK_TTL"      envDefault:"15m"`
}

// Normalized fills defaults.
func (c Config) Normalized() Config {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = "http://localhost:8080/auth/magic"
	}
	if c.TTL <= 0 {
		c.TTL = 15 * time.Minute
	}
	return c
}

// NewToken returns a random URL-safe token and the hash to store for it.
func NewToken() (token, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate magic link token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, Hash(token), nil
}

// Hash is the stored form of a token.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// URL builds the landing link for token.
func (c Config) URL(token string) (string, error) {
	base, err := url.Parse(c.Normalized().BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse magic link base url: %w", err)
	}
	query := base.Query()
	query.Set("token", token)
	base.RawQuery = query.Encode()
	return base.String(), nil
}
