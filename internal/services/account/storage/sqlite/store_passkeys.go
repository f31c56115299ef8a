package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/services/account/storage"
)

// PutPasskeyCredential inserts or replaces a WebAuthn credential.
func (s *Store) PutPasskeyCredential(ctx context.Context, credential storage.PasskeyCredential) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(credential.CredentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if strings.TrimSpace(credential.ContractorID) == "" {
		return fmt.Errorf("contractor id is required")
	}
	if strings.TrimSpace(credential.CredentialJSON) == "" {
		return fmt.Errorf("credential json is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO passkeys (credential_id, contractor_id, credential_json, created_at, updated_at, last_used_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(credential_id) DO UPDATE SET
	credential_json = excluded.credential_json,
	updated_at = excluded.updated_at,
	last_used_at = excluded.last_used_at
`,
		credential.CredentialID, credential.ContractorID, credential.CredentialJSON,
		toMillis(credential.CreatedAt), toMillis(credential.UpdatedAt), nullMillis(credential.LastUsedAt),
	)
	if err != nil {
		return fmt.Errorf("put passkey: %w", err)
	}
	return nil
}

// GetPasskeyCredential fetches a stored WebAuthn credential.
func (s *Store) GetPasskeyCredential(ctx context.Context, credentialID string) (storage.PasskeyCredential, error) {
	if err := s.ready(ctx); err != nil {
		return storage.PasskeyCredential{}, err
	}
	if strings.TrimSpace(credentialID) == "" {
		return storage.PasskeyCredential{}, fmt.Errorf("credential id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT credential_id, contractor_id, credential_json, created_at, updated_at, last_used_at
FROM passkeys WHERE credential_id = ?
`, credentialID)
	credential, err := scanPasskey(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PasskeyCredential{}, storage.ErrNotFound
		}
		return storage.PasskeyCredential{}, fmt.Errorf("get passkey: %w", err)
	}
	return credential, nil
}

// ListPasskeyCredentials returns passkeys for a contractor.
func (s *Store) ListPasskeyCredentials(ctx context.Context, contractorID string) ([]storage.PasskeyCredential, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(contractorID) == "" {
		return nil, fmt.Errorf("contractor id is required")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT credential_id, contractor_id, credential_json, created_at, updated_at, last_used_at
FROM passkeys WHERE contractor_id = ?
ORDER BY created_at ASC
`, contractorID)
	if err != nil {
		return nil, fmt.Errorf("list passkeys: %w", err)
	}
	defer rows.Close()

	var credentials []storage.PasskeyCredential
	for rows.Next() {
		credential, err := scanPasskey(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan passkey: %w", err)
		}
		credentials = append(credentials, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passkeys: %w", err)
	}
	return credentials, nil
}

// PutPasskeySession stores a WebAuthn session.
func (s *Store) PutPasskeySession(ctx context.Context, session storage.PasskeySession) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(session.Kind) == "" {
		return fmt.Errorf("session kind is required")
	}
	if strings.TrimSpace(session.SessionJSON) == "" {
		return fmt.Errorf("session json is required")
	}
	contractorID := sql.NullString{}
	if strings.TrimSpace(session.ContractorID) != "" {
		contractorID = sql.NullString{String: session.ContractorID, Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO passkey_sessions (id, kind, contractor_id, session_json, expires_at)
VALUES (?, ?, ?, ?, ?)
`, session.ID, session.Kind, contractorID, session.SessionJSON, toMillis(session.ExpiresAt))
	if err != nil {
		return fmt.Errorf("put passkey session: %w", err)
	}
	return nil
}

// GetPasskeySession fetches a stored WebAuthn session.
func (s *Store) GetPasskeySession(ctx context.Context, id string) (storage.PasskeySession, error) {
	if err := s.ready(ctx); err != nil {
		return storage.PasskeySession{}, err
	}
	if strings.TrimSpace(id) == "" {
		return storage.PasskeySession{}, fmt.Errorf("session id is required")
	}
	var (
		session      storage.PasskeySession
		contractorID sql.NullString
		expiresAt    int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, kind, contractor_id, session_json, expires_at FROM passkey_sessions WHERE id = ?
`, id).Scan(&session.ID, &session.Kind, &contractorID, &session.SessionJSON, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PasskeySession{}, storage.ErrNotFound
		}
		return storage.PasskeySession{}, fmt.Errorf("get passkey session: %w", err)
	}
	session.ContractorID = contractorID.String
	session.ExpiresAt = fromMillis(expiresAt)
	return session, nil
}

// DeletePasskeySession removes a WebAuthn session.
func (s *Store) DeletePasskeySession(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM passkey_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete passkey session: %w", err)
	}
	return nil
}

// DeleteExpiredPasskeySessions removes expired WebAuthn sessions.
func (s *Store) DeleteExpiredPasskeySessions(ctx context.Context, now time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM passkey_sessions WHERE expires_at <= ?`, toMillis(now)); err != nil {
		return fmt.Errorf("delete expired passkey sessions: %w", err)
	}
	return nil
}

func scanPasskey(scan func(dest ...any) error) (storage.PasskeyCredential, error) {
	var (
		credential storage.PasskeyCredential
		createdAt  int64
		updatedAt  int64
		lastUsedAt sql.NullInt64
	)
	if err := scan(&credential.CredentialID, &credential.ContractorID, &credential.CredentialJSON, &createdAt, &updatedAt, &lastUsedAt); err != nil {
		return storage.PasskeyCredential{}, err
	}
	credential.CreatedAt = fromMillis(createdAt)
	credential.UpdatedAt = fromMillis(updatedAt)
	credential.LastUsedAt = fromNullMillis(lastUsedAt)
	return credential, nil
}
