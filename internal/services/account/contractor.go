package account

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"golang.org/x/net/idna"
)

// SignupForm is the bot-defense form id of the contractor signup form.
const SignupForm = "contractor-signup"

// Status is a contractor account's review state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusSuspended Status = "suspended"
)

// ParseStatus validates a status value. Empty is rejected.
func ParseStatus(value string) (Status, error) {
	switch status := Status(strings.ToLower(strings.TrimSpace(value))); status {
	case StatusPending, StatusApproved, StatusSuspended:
		return status, nil
	default:
		return "", apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("unknown contractor status %q", value))
	}
}

// CanTransition reports whether an operator may move a contractor between
// statuses. Any change is allowed except going back to pending.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	return to == StatusApproved || to == StatusSuspended
}

// Contractor is a trade account eligible for contractor pricing once
// approved.
type Contractor struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Company       string    `json:"company"`
	Phone         string    `json:"phone,omitempty"`
	State         string    `json:"state"`
	LicenseNumber string    `json:"license_number"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Approved reports whether contractor pricing applies.
func (c Contractor) Approved() bool {
	return c.Status == StatusApproved
}

// SignupRequest is the public signup form.
type SignupRequest struct {
	Email         string `json:"email" validate:"required,email,max=254"`
	Name          string `json:"name" validate:"required,max=120"`
	Company       string `json:"company" validate:"required,max=160"`
	Phone         string `json:"phone" validate:"omitempty,max=40"`
	State         string `json:"state" validate:"required,len=2,alpha"`
	LicenseNumber string `json:"license_number" validate:"required,max=40"`
}

// NormalizeEmail lower-cases the address and converts an internationalized
// domain to its ASCII form so lookups match regardless of how it was typed.
func NormalizeEmail(value string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(value))
	if err != nil {
		return "", apperrors.WithMetadata(apperrors.CodeValidation, "invalid email", map[string]string{"email": "Enter a valid email address."})
	}
	local, domain, ok := strings.Cut(addr.Address, "@")
	if !ok || local == "" || domain == "" {
		return "", apperrors.WithMetadata(apperrors.CodeValidation, "invalid email", map[string]string{"email": "Enter a valid email address."})
	}
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", apperrors.WithMetadata(apperrors.CodeValidation, "invalid email domain", map[string]string{"email": "Enter a valid email address."})
	}
	return strings.ToLower(local) + "@" + strings.ToLower(ascii), nil
}
