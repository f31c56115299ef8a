// Package passkey configures WebAuthn passkey support.
package passkey

import (
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// SessionKind describes the WebAuthn session purpose.
type SessionKind string

const (
	SessionKindRegistration SessionKind = "registration"
	SessionKindLogin        SessionKind = "login"
)

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName string        `env:"DRAINWIZ_WEBAUTHN_RP_DISPLAY_NAME" envDefault:"AC Drain Wiz"`
	RPID          string        `env:"DRAINWIZ_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPOrigins     []string      `env:"DRAINWIZ_WEBAUTHN_RP_ORIGINS"      envSeparator:"," envDefault:"http://localhost:8080"`
	SessionTTL    time.Duration `env:"DRAINWIZ_WEBAUTHN_SESSION_TTL"     envDefault:"5m"`
}

// Normalized fills defaults for zero values.
func (c Config) Normalized() Config {
	if c.RPDisplayName == "" {
		c.RPDisplayName = "AC Drain Wiz"
	}
	if c.RPID == "" {
		c.RPID = "localhost"
	}
	if len(c.RPOrigins) == 0 {
		c.RPOrigins = []string{"http://localhost:8080"}
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 5 * time.Minute
	}
	return c
}

// New builds the relying party.
func New(cfg Config) (*webauthn.WebAuthn, error) {
	cfg = cfg.Normalized()
	return webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
}
