package forms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/acdrainwiz/drainwiz/internal/platform/blob"
	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/id"
	"github.com/acdrainwiz/drainwiz/internal/services/botdefense"
	"github.com/acdrainwiz/drainwiz/internal/services/email"
	"github.com/acdrainwiz/drainwiz/internal/services/forms/storage"
	"github.com/sirupsen/logrus"
)

// Input is a raw submission as received over HTTP.
type Input struct {
	Form           string
	Values         map[string]string
	IP             netip.Addr
	UserAgent      string
	Token          string
	RecaptchaToken string
	Interactions   int
}

// Service runs submissions through bot screening, validation, storage,
// archiving and notification.
type Service struct {
	bots    *botdefense.Pipeline
	store   storage.SubmissionStore
	blobs   blob.Store
	sender  email.Sender
	salesTo string
	log     *logrus.Entry
	clock   func() time.Time
	newID   func(prefix string) string
}

// NewService builds the forms service. blobs and sender may be nil.
func NewService(bots *botdefense.Pipeline, store storage.SubmissionStore, blobs blob.Store, sender email.Sender, salesTo string, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		bots:    bots,
		store:   store,
		blobs:   blobs,
		sender:  sender,
		salesTo: strings.TrimSpace(salesTo),
		log:     log,
		clock:   time.Now,
		newID:   id.New,
	}
}

// IssueToken returns a CSRF token for a form load.
func (s *Service) IssueToken(form string) (string, time.Duration, error) {
	schema, ok := Lookup(form)
	if !ok {
		return "", 0, unknownForm(form)
	}
	token, err := s.bots.IssueToken(schema.ID)
	if err != nil {
		return "", 0, err
	}
	return token, s.bots.TokenTTL(), nil
}

// Submit accepts a submission and returns its id. Bot rejections carry
// only a generic message; the reasons are logged by the pipeline.
func (s *Service) Submit(ctx context.Context, in Input) (string, error) {
	schema, ok := Lookup(in.Form)
	if !ok {
		return "", unknownForm(in.Form)
	}

	verdict := s.bots.Evaluate(ctx, botdefense.Submission{
		Form:           schema.ID,
		IP:             in.IP,
		Token:          in.Token,
		RecaptchaToken: in.RecaptchaToken,
		Fields:         in.Values,
		Email:          schema.EmailOf(in.Values),
		Text:           schema.TextOf(in.Values),
		Interactions:   in.Interactions,
	})
	if !verdict.Allowed {
		return "", apperrors.New(apperrors.CodeSubmissionRejected, "submission could not be accepted")
	}

	fields, err := schema.Clean(in.Values)
	if err != nil {
		return "", err
	}

	now := s.clock().UTC()
	sub := storage.Submission{
		ID:        s.newID("sub"),
		Form:      schema.ID,
		Fields:    fields,
		UserAgent: truncate(in.UserAgent, 512),
		CreatedAt: now,
	}
	if in.IP.IsValid() {
		sub.IP = in.IP.String()
	}
	sub.ArchiveKey = ArchiveKey(sub)
	if err := s.store.PutSubmission(ctx, sub); err != nil {
		return "", fmt.Errorf("store submission: %w", err)
	}
	log := s.log.WithFields(logrus.Fields{"form": sub.Form, "submission_id": sub.ID})

	if err := s.archive(ctx, sub); err != nil {
		log.WithError(err).Warn("archive submission")
	}
	if err := s.notify(ctx, schema, sub); err != nil {
		log.WithError(err).Warn("notify sales")
	}
	log.Info("form submission accepted")
	return sub.ID, nil
}

// ArchiveKey is the blob key of a submission's JSON copy.
func ArchiveKey(sub storage.Submission) string {
	return fmt.Sprintf("forms/%s/%s/%s.json", sub.Form, sub.CreatedAt.UTC().Format("2006/01/02"), sub.ID)
}

type archived struct {
	ID        string            `json:"id"`
	Form      string            `json:"form"`
	Fields    map[string]string `json:"fields"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func (s *Service) archive(ctx context.Context, sub storage.Submission) error {
	if s.blobs == nil {
		return nil
	}
	data, err := json.MarshalIndent(archived{
		ID:        sub.ID,
		Form:      sub.Form,
		Fields:    sub.Fields,
		IP:        sub.IP,
		UserAgent: sub.UserAgent,
		CreatedAt: sub.CreatedAt,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, sub.ArchiveKey, data, "application/json"); err != nil {
		return err
	}
	return s.store.MarkArchived(ctx, sub.ID, s.clock().UTC())
}

func (s *Service) notify(ctx context.Context, schema Schema, sub storage.Submission) error {
	if s.sender == nil || s.salesTo == "" {
		return nil
	}
	fields := make([]email.Field, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		if v, ok := sub.Fields[f.Name]; ok {
			fields = append(fields, email.Field{Label: f.Label, Value: v})
		}
	}
	msg, err := email.Compose(ctx, []string{s.salesTo}, email.FormNotification{
		Form:         sub.Form,
		Title:        schema.Title,
		SubmissionID: sub.ID,
		Fields:       fields,
	})
	if err != nil {
		return err
	}
	if replyTo := schema.EmailOf(sub.Fields); replyTo != "" {
		msg.ReplyTo = replyTo
	}
	if _, err := s.sender.Send(ctx, msg); err != nil {
		return err
	}
	return s.store.MarkNotified(ctx, sub.ID, s.clock().UTC())
}

// List returns recent submissions for operators.
func (s *Service) List(ctx context.Context, form string, limit int) ([]storage.Submission, error) {
	return s.store.ListSubmissions(ctx, form, limit)
}

func unknownForm(form string) error {
	known := IDs()
	sort.Strings(known)
	return apperrors.WithMetadata(apperrors.CodeUnknownForm, fmt.Sprintf("unknown form %q", form), map[string]string{
		"form": "Known forms: " + strings.Join(known, ", "),
	})
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
