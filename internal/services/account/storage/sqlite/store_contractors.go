package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acdrainwiz/drainwiz/internal/services/account"
	"github.com/acdrainwiz/drainwiz/internal/services/account/storage"
)

const contractorColumns = `id, email, name, company, phone, state, license_number, status, created_at, updated_at`

// CreateContractor inserts a new contractor. A duplicate email returns
// storage.ErrAlreadyExists.
func (s *Store) CreateContractor(ctx context.Context, c account.Contractor) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("contractor id is required")
	}
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("contractor email is required")
	}
	if c.Status == "" {
		c.Status = account.StatusPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO contractors (`+contractorColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		c.ID, c.Email, c.Name, c.Company, c.Phone, c.State, c.LicenseNumber, string(c.Status),
		toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create contractor: %w", err)
	}
	return nil
}

// GetContractor fetches a contractor by id.
func (s *Store) GetContractor(ctx context.Context, id string) (account.Contractor, error) {
	if err := s.ready(ctx); err != nil {
		return account.Contractor{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+contractorColumns+` FROM contractors WHERE id = ?`, strings.TrimSpace(id))
	return scanContractor(row.Scan)
}

// GetContractorByEmail fetches a contractor by normalized email.
func (s *Store) GetContractorByEmail(ctx context.Context, email string) (account.Contractor, error) {
	if err := s.ready(ctx); err != nil {
		return account.Contractor{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+contractorColumns+` FROM contractors WHERE email = ?`, strings.TrimSpace(email))
	return scanContractor(row.Scan)
}

// ListContractors lists contractors newest first.
func (s *Store) ListContractors(ctx context.Context, status account.Status, limit int) ([]account.Contractor, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+contractorColumns+`
FROM contractors
WHERE (? = '' OR status = ?)
ORDER BY created_at DESC, id DESC
LIMIT ?
`, string(status), string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list contractors: %w", err)
	}
	defer rows.Close()

	contractors := make([]account.Contractor, 0, limit)
	for rows.Next() {
		c, err := scanContractor(rows.Scan)
		if err != nil {
			return nil, err
		}
		contractors = append(contractors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contractors: %w", err)
	}
	return contractors, nil
}

// UpdateContractorStatus sets a contractor's status.
func (s *Store) UpdateContractorStatus(ctx context.Context, id string, status account.Status, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE contractors SET status = ?, updated_at = ? WHERE id = ?
`, string(status), toMillis(at), strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("update contractor status: %w", err)
	}
	return requireOneRow(result, "update contractor status")
}

func scanContractor(scan func(dest ...any) error) (account.Contractor, error) {
	var (
		c         account.Contractor
		status    string
		createdAt int64
		updatedAt int64
	)
	if err := scan(&c.ID, &c.Email, &c.Name, &c.Company, &c.Phone, &c.State, &c.LicenseNumber, &status, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Contractor{}, storage.ErrNotFound
		}
		return account.Contractor{}, fmt.Errorf("scan contractor: %w", err)
	}
	c.Status = account.Status(status)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}
