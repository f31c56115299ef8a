// Package storage defines persistence contracts for contractor accounts,
// magic links, and passkeys.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/services/account"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a unique constraint conflict.
var ErrAlreadyExists = errors.New("record already exists")

// ContractorStore persists contractor accounts.
type ContractorStore interface {
	CreateContractor(ctx context.Context, c account.Contractor) error
	GetContractor(ctx context.Context, id string) (account.Contractor, error)
	GetContractorByEmail(ctx context.Context, email string) (account.Contractor, error)
	// ListContractors returns newest first. An empty status lists all.
	ListContractors(ctx context.Context, status account.Status, limit int) ([]account.Contractor, error)
	UpdateContractorStatus(ctx context.Context, id string, status account.Status, at time.Time) error
}

// MagicLink is a single-use sign-in token, stored by hash.
type MagicLink struct {
	TokenHash    string
	ContractorID string
	Email        string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	UsedAt       *time.Time
}

// MagicLinkStore persists magic link tokens.
type MagicLinkStore interface {
	PutMagicLink(ctx context.Context, link MagicLink) error
	GetMagicLink(ctx context.Context, tokenHash string) (MagicLink, error)
	// MarkMagicLinkUsed returns ErrNotFound when the link is missing or
	// already used.
	MarkMagicLinkUsed(ctx context.Context, tokenHash string, usedAt time.Time) error
}

// PasskeyCredential stores a WebAuthn credential for a contractor.
type PasskeyCredential struct {
	CredentialID   string
	ContractorID   string
	CredentialJSON string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastUsedAt     *time.Time
}

// PasskeySession stores a WebAuthn registration or login ceremony.
type PasskeySession struct {
	ID           string
	Kind         string
	ContractorID string
	SessionJSON  string
	ExpiresAt    time.Time
}

// PasskeyStore persists WebAuthn credential and session data.
type PasskeyStore interface {
	PutPasskeyCredential(ctx context.Context, credential PasskeyCredential) error
	GetPasskeyCredential(ctx context.Context, credentialID string) (PasskeyCredential, error)
	ListPasskeyCredentials(ctx context.Context, contractorID string) ([]PasskeyCredential, error)
	PutPasskeySession(ctx context.Context, session PasskeySession) error
	GetPasskeySession(ctx context.Context, id string) (PasskeySession, error)
	DeletePasskeySession(ctx context.Context, id string) error
	DeleteExpiredPasskeySessions(ctx context.Context, now time.Time) error
}

// Store is everything the account service needs.
type Store interface {
	ContractorStore
	MagicLinkStore
	PasskeyStore
}
