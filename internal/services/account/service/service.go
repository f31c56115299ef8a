// Package service implements contractor signup and sign-in.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/id"
	"github.com/acdrainwiz/drainwiz/internal/platform/timeouts"
	"github.com/acdrainwiz/drainwiz/internal/services/account"
	"github.com/acdrainwiz/drainwiz/internal/services/account/magiclink"
	"github.com/acdrainwiz/drainwiz/internal/services/account/passkey"
	"github.com/acdrainwiz/drainwiz/internal/services/account/storage"
	"github.com/acdrainwiz/drainwiz/internal/services/email"
	"github.com/sirupsen/logrus"
)

// Config tunes sign-in behavior.
type Config struct {
	MagicLink magiclink.Config
	Passkey   passkey.Config
	SalesTo   string
}

// SignIn is the result of a completed sign-in.
type SignIn struct {
	Contractor account.Contractor
	Token      string
	ExpiresAt  time.Time
}

// Service is the contractor account entrypoint used by HTTP handlers and
// the admin CLI.
type Service struct {
	store      storage.Store
	sender     email.Sender
	sessions   *account.Sessions
	magic      magiclink.Config
	passkeyTTL time.Duration
	webAuthn   passkeyProvider
	initErr    error
	parser     passkeyParser
	salesTo    string
	log        *logrus.Entry
	clock      func() time.Time
	newID      func(prefix string) string
	background sync.WaitGroup
}

// New builds the service. A WebAuthn configuration error disables passkeys
// without failing magic-link sign-in.
func New(store storage.Store, sender email.Sender, sessions *account.Sessions, cfg Config, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	passkeyCfg := cfg.Passkey.Normalized()
	rp, err := passkey.New(passkeyCfg)
	var provider passkeyProvider
	if err == nil {
		provider = rp
	}
	return &Service{
		store:      store,
		sender:     sender,
		sessions:   sessions,
		magic:      cfg.MagicLink.Normalized(),
		passkeyTTL: passkeyCfg.SessionTTL,
		webAuthn:   provider,
		initErr:    err,
		parser:     defaultPasskeyParser{},
		salesTo:    strings.TrimSpace(cfg.SalesTo),
		log:        log,
		clock:      time.Now,
		newID:      id.New,
	}
}

// Signup stores a pending contractor and sends the acknowledgement emails.
// Email failures are logged; the application is already recorded.
func (s *Service) Signup(ctx context.Context, req account.SignupRequest) (account.Contractor, error) {
	emailAddr, err := account.NormalizeEmail(req.Email)
	if err != nil {
		return account.Contractor{}, err
	}
	state := strings.ToUpper(strings.TrimSpace(req.State))
	license, err := account.ValidateLicense(state, req.LicenseNumber)
	if err != nil {
		return account.Contractor{}, err
	}
	now := s.clock().UTC()
	contractor := account.Contractor{
		ID:            s.newID("ctr"),
		Email:         emailAddr,
		Name:          strings.TrimSpace(req.Name),
		Company:       strings.TrimSpace(req.Company),
		Phone:         strings.TrimSpace(req.Phone),
		State:         state,
		LicenseNumber: license,
		Status:        account.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateContractor(ctx, contractor); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return account.Contractor{}, apperrors.New(apperrors.CodeAlreadyExists, "a contractor account already exists for this email")
		}
		return account.Contractor{}, fmt.Errorf("create contractor: %w", err)
	}

	s.send(ctx, []string{contractor.Email}, email.ApplicationReceived{Name: contractor.Name, Company: contractor.Company})
	if s.salesTo != "" {
		s.send(ctx, []string{s.salesTo}, email.FormNotification{
			Form:         account.SignupForm,
			Title:        "Contractor signup",
			SubmissionID: contractor.ID,
			Fields: []email.Field{
				{Label: "Name", Value: contractor.Name},
				{Label: "Company", Value: contractor.Company},
				{Label: "Email", Value: contractor.Email},
				{Label: "Phone", Value: contractor.Phone},
				{Label: "State", Value: contractor.State},
				{Label: "License", Value: contractor.LicenseNumber},
			},
		})
	}
	s.log.WithFields(logrus.Fields{"contractor_id": contractor.ID, "state": contractor.State}).Info("contractor signup received")
	return contractor, nil
}

// RequestMagicLink emails a sign-in link when an eligible account exists.
// The result never reveals whether one did.
func (s *Service) RequestMagicLink(ctx context.Context, emailAddr string) error {
	normalized, err := account.NormalizeEmail(emailAddr)
	if err != nil {
		return err
	}
	contractor, err := s.store.GetContractorByEmail(ctx, normalized)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug("magic link requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup contractor: %w", err)
	}
	if contractor.Status == account.StatusSuspended {
		s.log.WithField("contractor_id", contractor.ID).Info("magic link requested for suspended contractor")
		return nil
	}

	// Issuing and mailing run in the background so known and unknown
	// addresses answer in the same time.
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.BackgroundEmail)
		defer cancel()
		if err := s.issueMagicLink(ctx, contractor); err != nil {
			s.log.WithError(err).WithField("contractor_id", contractor.ID).Error("issue magic link")
		}
	}()
	return nil
}

func (s *Service) issueMagicLink(ctx context.Context, contractor account.Contractor) error {
	token, hash, err := magiclink.NewToken()
	if err != nil {
		return err
	}
	now := s.clock().UTC()
	if err := s.store.PutMagicLink(ctx, storage.MagicLink{
		TokenHash:    hash,
		ContractorID: contractor.ID,
		Email:        contractor.Email,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.magic.TTL),
	}); err != nil {
		return fmt.Errorf("store magic link: %w", err)
	}
	link, err := s.magic.URL(token)
	if err != nil {
		return err
	}
	s.send(ctx, []string{contractor.Email}, email.MagicLink{Name: contractor.Name, URL: link, TTL: s.magic.TTL})
	return nil
}

// Wait blocks until background magic-link deliveries finish.
func (s *Service) Wait() {
	s.background.Wait()
}

// ConsumeMagicLink redeems a token once and starts a session.
func (s *Service) ConsumeMagicLink(ctx context.Context, token string) (SignIn, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SignIn{}, apperrors.New(apperrors.CodeMagicLinkInvalid, "magic link token is required")
	}
	hash := magiclink.Hash(token)
	link, err := s.store.GetMagicLink(ctx, hash)
	if errors.Is(err, storage.ErrNotFound) {
		return SignIn{}, apperrors.New(apperrors.CodeMagicLinkInvalid, "unknown magic link")
	}
	if err != nil {
		return SignIn{}, fmt.Errorf("load magic link: %w", err)
	}
	if link.UsedAt != nil {
		return SignIn{}, apperrors.New(apperrors.CodeMagicLinkInvalid, "magic link already used")
	}
	now := s.clock().UTC()
	if !now.Before(link.ExpiresAt) {
		return SignIn{}, apperrors.New(apperrors.CodeMagicLinkExpired, "magic link expired")
	}
	if err := s.store.MarkMagicLinkUsed(ctx, hash, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return SignIn{}, apperrors.New(apperrors.CodeMagicLinkInvalid, "magic link already used")
		}
		return SignIn{}, fmt.Errorf("consume magic link: %w", err)
	}
	contractor, err := s.store.GetContractor(ctx, link.ContractorID)
	if err != nil {
		return SignIn{}, fmt.Errorf("load contractor: %w", err)
	}
	return s.startSession(contractor)
}

// Authenticate resolves a session token to its contractor.
func (s *Service) Authenticate(ctx context.Context, token string) (account.Contractor, error) {
	contractorID, err := s.sessions.Verify(token)
	if err != nil {
		return account.Contractor{}, err
	}
	contractor, err := s.store.GetContractor(ctx, contractorID)
	if errors.Is(err, storage.ErrNotFound) {
		return account.Contractor{}, apperrors.New(apperrors.CodeSessionInvalid, "session contractor no longer exists")
	}
	if err != nil {
		return account.Contractor{}, fmt.Errorf("load contractor: %w", err)
	}
	if contractor.Status == account.StatusSuspended {
		return account.Contractor{}, apperrors.New(apperrors.CodeAccountSuspended, "contractor is suspended")
	}
	return contractor, nil
}

// SessionTTL is the lifetime of issued sessions.
func (s *Service) SessionTTL() time.Duration {
	return s.sessions.TTL()
}

// ListContractors lists accounts for operators.
func (s *Service) ListContractors(ctx context.Context, status account.Status, limit int) ([]account.Contractor, error) {
	return s.store.ListContractors(ctx, status, limit)
}

// SetStatus approves or suspends a contractor.
func (s *Service) SetStatus(ctx context.Context, contractorID string, to account.Status) (account.Contractor, error) {
	contractor, err := s.store.GetContractor(ctx, contractorID)
	if errors.Is(err, storage.ErrNotFound) {
		return account.Contractor{}, apperrors.New(apperrors.CodeNotFound, "contractor not found")
	}
	if err != nil {
		return account.Contractor{}, err
	}
	if !account.CanTransition(contractor.Status, to) {
		return account.Contractor{}, apperrors.WithMetadata(apperrors.CodeStatusTransition, "contractor status change not allowed", map[string]string{
			"from": string(contractor.Status),
			"to":   string(to),
		})
	}
	now := s.clock().UTC()
	if err := s.store.UpdateContractorStatus(ctx, contractor.ID, to, now); err != nil {
		return account.Contractor{}, err
	}
	contractor.Status = to
	contractor.UpdatedAt = now
	s.log.WithFields(logrus.Fields{"contractor_id": contractor.ID, "status": string(to)}).Info("contractor status changed")
	return contractor, nil
}

func (s *Service) startSession(contractor account.Contractor) (SignIn, error) {
	if contractor.Status == account.StatusSuspended {
		return SignIn{}, apperrors.New(apperrors.CodeAccountSuspended, "contractor is suspended")
	}
	token, expires, err := s.sessions.Issue(contractor.ID)
	if err != nil {
		return SignIn{}, err
	}
	return SignIn{Contractor: contractor, Token: token, ExpiresAt: expires}, nil
}

func (s *Service) send(ctx context.Context, to []string, t email.Template) {
	if s.sender == nil {
		return
	}
	msg, err := email.Compose(ctx, to, t)
	if err != nil {
		s.log.WithError(err).WithField("template", t.TemplateName()).Error("compose email")
		return
	}
	if _, err := s.sender.Send(ctx, msg); err != nil {
		s.log.WithError(err).WithField("template", t.TemplateName()).Warn("send email")
	}
}
