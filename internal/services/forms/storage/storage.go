// Package storage defines persistence for form submissions.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested submission is missing.
var ErrNotFound = errors.New("submission not found")

// Submission is one accepted form post.
type Submission struct {
	ID         string
	Form       string
	Fields     map[string]string
	IP         string
	UserAgent  string
	ArchiveKey string
	CreatedAt  time.Time
	ArchivedAt *time.Time
	NotifiedAt *time.Time
}

// SubmissionStore persists submissions.
type SubmissionStore interface {
	PutSubmission(ctx context.Context, s Submission) error
	GetSubmission(ctx context.Context, id string) (Submission, error)
	// ListSubmissions returns newest first. An empty form lists all.
	ListSubmissions(ctx context.Context, form string, limit int) ([]Submission, error)
	MarkArchived(ctx context.Context, id string, at time.Time) error
	MarkNotified(ctx context.Context, id string, at time.Time) error
}
