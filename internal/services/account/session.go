package account

import (
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionIssuer     = "drainwiz"
	defaultSessionTTL = 7 * 24 * time.Hour
)

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewSessions builds a session issuer. The secret must be at least 32
// bytes.
func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, clock: time.Now}, nil
}

// TTL is the session lifetime.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for contractorID.
func (s *Sessions) Issue(contractorID string) (string, time.Time, error) {
	contractorID = strings.TrimSpace(contractorID)
	if contractorID == "" {
		return "", time.Time{}, fmt.Errorf("contractor id is required")
	}
	now := s.clock().UTC()
	expires := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   contractorID,
		Issuer:    sessionIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, expires, nil
}

// Verify returns the contractor id carried by a valid token.
func (s *Sessions) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperrors.Wrap(apperrors.CodeSessionInvalid, "session expired", err)
		}
		return "", apperrors.Wrap(apperrors.CodeSessionInvalid, "invalid session", err)
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", apperrors.New(apperrors.CodeSessionInvalid, "invalid session")
	}
	return claims.Subject, nil
}
