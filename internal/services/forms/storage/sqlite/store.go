// Package sqlite stores form submissions in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlitemigrate "github.com/acdrainwiz/drainwiz/internal/platform/storage/sqlitemigrate"
	"github.com/acdrainwiz/drainwiz/internal/services/forms/storage"
	"github.com/acdrainwiz/drainwiz/internal/services/forms/storage/sqlite/migrations"
)

// Store provides SQLite-backed submission persistence.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.SubmissionStore = (*Store)(nil)

// Open opens a forms SQLite store and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	sqlDB, err := sqlitemigrate.Open(ctx, path, migrations.FS, "")
	if err != nil {
		return nil, err
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// PutSubmission inserts a submission.
func (s *Store) PutSubmission(ctx context.Context, sub storage.Submission) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	sub.ID = strings.TrimSpace(sub.ID)
	sub.Form = strings.TrimSpace(sub.Form)
	switch {
	case sub.ID == "":
		return fmt.Errorf("submission id is required")
	case sub.Form == "":
		return fmt.Errorf("form is required")
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	fields, err := json.Marshal(sub.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO form_submissions (
	id, form, fields_json, ip, user_agent, archive_key, created_at, archived_at, notified_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		sub.ID,
		sub.Form,
		string(fields),
		sub.IP,
		sub.UserAgent,
		sub.ArchiveKey,
		sqlitemigrate.ToMillis(sub.CreatedAt),
		sqlitemigrate.NullMillis(sub.ArchivedAt),
		sqlitemigrate.NullMillis(sub.NotifiedAt),
	)
	if err != nil {
		return fmt.Errorf("put submission: %w", err)
	}
	return nil
}

const submissionColumns = `id, form, fields_json, ip, user_agent, archive_key, created_at, archived_at, notified_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (storage.Submission, error) {
	var (
		sub        storage.Submission
		fields     string
		createdAt  int64
		archivedAt sql.NullInt64
		notifiedAt sql.NullInt64
	)
	if err := row.Scan(&sub.ID, &sub.Form, &fields, &sub.IP, &sub.UserAgent, &sub.ArchiveKey, &createdAt, &archivedAt, &notifiedAt); err != nil {
		return storage.Submission{}, err
	}
	if err := json.Unmarshal([]byte(fields), &sub.Fields); err != nil {
		return storage.Submission{}, fmt.Errorf("decode fields: %w", err)
	}
	sub.CreatedAt = sqlitemigrate.FromMillis(createdAt)
	sub.ArchivedAt = sqlitemigrate.FromNullMillis(archivedAt)
	sub.NotifiedAt = sqlitemigrate.FromNullMillis(notifiedAt)
	return sub, nil
}

// GetSubmission loads one submission.
func (s *Store) GetSubmission(ctx context.Context, id string) (storage.Submission, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Submission{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM form_submissions WHERE id = ?`, strings.TrimSpace(id))
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Submission{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Submission{}, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// ListSubmissions lists newest-first submissions.
func (s *Store) ListSubmissions(ctx context.Context, form string, limit int) ([]storage.Submission, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	form = strings.TrimSpace(form)
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+submissionColumns+`
FROM form_submissions
WHERE (? = '' OR form = ?)
ORDER BY created_at DESC, id DESC
LIMIT ?
`, form, form, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	out := make([]storage.Submission, 0, limit)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

// MarkArchived records when the blob copy was written.
func (s *Store) MarkArchived(ctx context.Context, id string, at time.Time) error {
	return s.mark(ctx, "archived_at", id, at)
}

// MarkNotified records when sales was emailed.
func (s *Store) MarkNotified(ctx context.Context, id string, at time.Time) error {
	return s.mark(ctx, "notified_at", id, at)
}

func (s *Store) mark(ctx context.Context, column, id string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE form_submissions SET `+column+` = ? WHERE id = ?`, sqlitemigrate.ToMillis(at), strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("mark %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
