package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/services/account"
	"github.com/acdrainwiz/drainwiz/internal/services/account/passkey"
	"github.com/acdrainwiz/drainwiz/internal/services/account/storage"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Ceremony is the first half of a WebAuthn exchange: a session id the
// browser echoes back and the options JSON it passes to the
// navigator.credentials API.
type Ceremony struct {
	SessionID string          `json:"session_id"`
	Options   json.RawMessage `json:"options"`
}

type passkeyProvider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error)
}

type passkeyParser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultPasskeyParser struct{}

func (defaultPasskeyParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultPasskeyParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

func (s *Service) passkeysReady() error {
	if s.initErr != nil || s.webAuthn == nil {
		return apperrors.Wrap(apperrors.CodePasskeyCeremony, "passkeys are not configured", s.initErr)
	}
	return nil
}

// BeginPasskeyRegistration starts enrolling a passkey for a signed-in
// contractor.
func (s *Service) BeginPasskeyRegistration(ctx context.Context, contractorID string) (Ceremony, error) {
	if err := s.passkeysReady(); err != nil {
		return Ceremony{}, err
	}
	contractor, err := s.store.GetContractor(ctx, strings.TrimSpace(contractorID))
	if err != nil {
		return Ceremony{}, s.lookupError(err)
	}
	user, err := s.loadPasskeyUser(ctx, contractor)
	if err != nil {
		return Ceremony{}, fmt.Errorf("load passkey user: %w", err)
	}

	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	}
	if len(user.credentials) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(user.credentials).CredentialDescriptors()))
	}
	creation, session, err := s.webAuthn.BeginRegistration(user, options...)
	if err != nil {
		return Ceremony{}, apperrors.Wrap(apperrors.CodePasskeyCeremony, "begin passkey registration", err)
	}
	return s.storeCeremony(ctx, passkey.SessionKindRegistration, contractor.ID, session, creation)
}

// FinishPasskeyRegistration verifies the authenticator response and stores
// the credential. contractorID must match the ceremony's owner.
func (s *Service) FinishPasskeyRegistration(ctx context.Context, contractorID, sessionID string, response []byte) (string, error) {
	if err := s.passkeysReady(); err != nil {
		return "", err
	}
	if len(response) == 0 {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "credential response is required")
	}
	session, err := s.loadCeremony(ctx, sessionID, passkey.SessionKindRegistration)
	if err != nil {
		return "", err
	}
	if session.contractorID != strings.TrimSpace(contractorID) {
		return "", apperrors.New(apperrors.CodeForbidden, "passkey session belongs to another account")
	}
	contractor, err := s.store.GetContractor(ctx, session.contractorID)
	if err != nil {
		return "", s.lookupError(err)
	}
	user, err := s.loadPasskeyUser(ctx, contractor)
	if err != nil {
		return "", fmt.Errorf("load passkey user: %w", err)
	}
	parsed, err := s.parser.ParseCredentialCreationResponseBytes(response)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodePasskeyCeremony, "parse credential response", err)
	}
	credential, err := s.webAuthn.CreateCredential(user, session.data, parsed)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodePasskeyCeremony, "validate credential response", err)
	}
	if err := s.storeCredential(ctx, contractor.ID, *credential, false); err != nil {
		return "", fmt.Errorf("store passkey credential: %w", err)
	}
	_ = s.store.DeletePasskeySession(ctx, session.id)
	return encodeCredentialID(credential.ID), nil
}

// BeginPasskeyLogin starts a discoverable-credential login.
func (s *Service) BeginPasskeyLogin(ctx context.Context) (Ceremony, error) {
	if err := s.passkeysReady(); err != nil {
		return Ceremony{}, err
	}
	assertion, session, err := s.webAuthn.BeginDiscoverableLogin()
	if err != nil {
		return Ceremony{}, apperrors.Wrap(apperrors.CodePasskeyCeremony, "begin passkey login", err)
	}
	return s.storeCeremony(ctx, passkey.SessionKindLogin, "", session, assertion)
}

// FinishPasskeyLogin verifies the assertion and starts a session.
func (s *Service) FinishPasskeyLogin(ctx context.Context, sessionID string, response []byte) (SignIn, error) {
	if err := s.passkeysReady(); err != nil {
		return SignIn{}, err
	}
	if len(response) == 0 {
		return SignIn{}, apperrors.New(apperrors.CodeInvalidArgument, "credential response is required")
	}
	session, err := s.loadCeremony(ctx, sessionID, passkey.SessionKindLogin)
	if err != nil {
		return SignIn{}, err
	}
	parsed, err := s.parser.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return SignIn{}, apperrors.Wrap(apperrors.CodePasskeyCeremony, "parse credential response", err)
	}
	validated, credential, err := s.webAuthn.ValidatePasskeyLogin(s.passkeyUserHandler(ctx), session.data, parsed)
	if err != nil {
		return SignIn{}, apperrors.Wrap(apperrors.CodePasskeyCeremony, "validate passkey login", err)
	}
	user, ok := validated.(*passkeyUser)
	if !ok {
		return SignIn{}, fmt.Errorf("passkey user type mismatch")
	}
	if err := s.storeCredential(ctx, user.contractor.ID, *credential, true); err != nil {
		return SignIn{}, fmt.Errorf("store passkey credential: %w", err)
	}
	_ = s.store.DeletePasskeySession(ctx, session.id)
	return s.startSession(user.contractor)
}

type passkeyUser struct {
	contractor  account.Contractor
	credentials []webauthn.Credential
}

func (u *passkeyUser) WebAuthnID() []byte {
	return []byte(u.contractor.ID)
}

func (u *passkeyUser) WebAuthnName() string {
	return u.contractor.Email
}

func (u *passkeyUser) WebAuthnDisplayName() string {
	if u.contractor.Name != "" {
		return u.contractor.Name
	}
	return u.contractor.Email
}

func (u *passkeyUser) WebAuthnIcon() string {
	return ""
}

func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

func (s *Service) loadPasskeyUser(ctx context.Context, contractor account.Contractor) (*passkeyUser, error) {
	records, err := s.store.ListPasskeyCredentials(ctx, contractor.ID)
	if err != nil {
		return nil, err
	}
	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		var credential webauthn.Credential
		if err := json.Unmarshal([]byte(record.CredentialJSON), &credential); err != nil {
			return nil, fmt.Errorf("decode credential %s: %w", record.CredentialID, err)
		}
		credentials = append(credentials, credential)
	}
	return &passkeyUser{contractor: contractor, credentials: credentials}, nil
}

func (s *Service) passkeyUserHandler(ctx context.Context) webauthn.DiscoverableUserHandler {
	return func(_, userHandle []byte) (webauthn.User, error) {
		contractorID := strings.TrimSpace(string(userHandle))
		if contractorID == "" {
			return nil, fmt.Errorf("user handle is required")
		}
		contractor, err := s.store.GetContractor(ctx, contractorID)
		if err != nil {
			return nil, err
		}
		return s.loadPasskeyUser(ctx, contractor)
	}
}

func (s *Service) storeCredential(ctx context.Context, contractorID string, credential webauthn.Credential, used bool) error {
	credentialID := encodeCredentialID(credential.ID)
	now := s.clock().UTC()
	stored, err := s.store.GetPasskeyCredential(ctx, credentialID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if errors.Is(err, storage.ErrNotFound) && used {
		return fmt.Errorf("passkey credential not found")
	}
	createdAt := now
	if err == nil {
		createdAt = stored.CreatedAt
	}
	credentialJSON, err := json.Marshal(credential)
	if err != nil {
		return err
	}
	record := storage.PasskeyCredential{
		CredentialID:   credentialID,
		ContractorID:   contractorID,
		CredentialJSON: string(credentialJSON),
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	}
	if used {
		record.LastUsedAt = &now
	}
	return s.store.PutPasskeyCredential(ctx, record)
}

func (s *Service) storeCeremony(ctx context.Context, kind passkey.SessionKind, contractorID string, session *webauthn.SessionData, options any) (Ceremony, error) {
	if session == nil {
		return Ceremony{}, fmt.Errorf("session data is required")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return Ceremony{}, err
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return Ceremony{}, fmt.Errorf("encode passkey options: %w", err)
	}
	now := s.clock().UTC()
	_ = s.store.DeleteExpiredPasskeySessions(ctx, now)
	sessionID := s.newID("pks")
	if err := s.store.PutPasskeySession(ctx, storage.PasskeySession{
		ID:           sessionID,
		Kind:         string(kind),
		ContractorID: contractorID,
		SessionJSON:  string(payload),
		ExpiresAt:    now.Add(s.passkeyTTL),
	}); err != nil {
		return Ceremony{}, fmt.Errorf("store passkey session: %w", err)
	}
	return Ceremony{SessionID: sessionID, Options: optionsJSON}, nil
}

type loadedCeremony struct {
	id           string
	data         webauthn.SessionData
	contractorID string
}

func (s *Service) loadCeremony(ctx context.Context, sessionID string, kind passkey.SessionKind) (loadedCeremony, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return loadedCeremony{}, apperrors.New(apperrors.CodeInvalidArgument, "session id is required")
	}
	stored, err := s.store.GetPasskeySession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return loadedCeremony{}, apperrors.New(apperrors.CodePasskeyCeremony, "passkey session not found")
	}
	if err != nil {
		return loadedCeremony{}, fmt.Errorf("load passkey session: %w", err)
	}
	if stored.Kind != string(kind) {
		return loadedCeremony{}, apperrors.New(apperrors.CodePasskeyCeremony, "passkey session kind mismatch")
	}
	if !s.clock().UTC().Before(stored.ExpiresAt) {
		_ = s.store.DeletePasskeySession(ctx, sessionID)
		return loadedCeremony{}, apperrors.New(apperrors.CodePasskeyCeremony, "passkey session expired")
	}
	var data webauthn.SessionData
	if err := json.Unmarshal([]byte(stored.SessionJSON), &data); err != nil {
		return loadedCeremony{}, fmt.Errorf("decode passkey session: %w", err)
	}
	return loadedCeremony{id: stored.ID, data: data, contractorID: stored.ContractorID}, nil
}

func (s *Service) lookupError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.New(apperrors.CodeNotFound, "contractor not found")
	}
	return err
}

func encodeCredentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}
