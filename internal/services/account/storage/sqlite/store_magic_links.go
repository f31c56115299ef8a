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

// PutMagicLink stores a new magic link.
func (s *Store) PutMagicLink(ctx context.Context, link storage.MagicLink) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(link.TokenHash) == "" {
		return fmt.Errorf("token hash is required")
	}
	if strings.TrimSpace(link.ContractorID) == "" {
		return fmt.Errorf("contractor id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO magic_links (token_hash, contractor_id, email, created_at, expires_at, used_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		link.TokenHash, link.ContractorID, link.Email,
		toMillis(link.CreatedAt), toMillis(link.ExpiresAt), nullMillis(link.UsedAt),
	)
	if err != nil {
		return fmt.Errorf("put magic link: %w", err)
	}
	return nil
}

// GetMagicLink fetches a magic link by token hash.
func (s *Store) GetMagicLink(ctx context.Context, tokenHash string) (storage.MagicLink, error) {
	if err := s.ready(ctx); err != nil {
		return storage.MagicLink{}, err
	}
	var (
		link      storage.MagicLink
		createdAt int64
		expiresAt int64
		usedAt    sql.NullInt64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT token_hash, contractor_id, email, created_at, expires_at, used_at
FROM magic_links WHERE token_hash = ?
`, strings.TrimSpace(tokenHash)).Scan(&link.TokenHash, &link.ContractorID, &link.Email, &createdAt, &expiresAt, &usedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.MagicLink{}, storage.ErrNotFound
		}
		return storage.MagicLink{}, fmt.Errorf("get magic link: %w", err)
	}
	link.CreatedAt = fromMillis(createdAt)
	link.ExpiresAt = fromMillis(expiresAt)
	link.UsedAt = fromNullMillis(usedAt)
	return link, nil
}

// MarkMagicLinkUsed consumes a link exactly once.
func (s *Store) MarkMagicLinkUsed(ctx context.Context, tokenHash string, usedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE magic_links SET used_at = ? WHERE token_hash = ? AND used_at IS NULL
`, toMillis(usedAt), strings.TrimSpace(tokenHash))
	if err != nil {
		return fmt.Errorf("mark magic link used: %w", err)
	}
	return requireOneRow(result, "mark magic link used")
}
