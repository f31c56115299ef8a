// Package email renders and delivers transactional email.
package email

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/acdrainwiz/drainwiz/internal/platform/id"
	"github.com/acdrainwiz/drainwiz/internal/platform/metrics"
	"github.com/acdrainwiz/drainwiz/internal/platform/otel"
	"github.com/acdrainwiz/drainwiz/internal/platform/upstream"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Config configures outbound email.
type Config struct {
	APIKey  string `env:"DRAINWIZ_RESEND_API_KEY"`
	BaseURL string `env:"DRAINWIZ_RESEND_BASE_URL" envDefault:"https://api.resend.com"`
	From    string `env:"DRAINWIZ_EMAIL_FROM" envDefault:"AC Drain Wiz <orders@acdrainwiz.com>"`
	SalesTo string `env:"DRAINWIZ_EMAIL_SALES_TO" envDefault:"sales@acdrainwiz.com"`
	ReplyTo string `env:"DRAINWIZ_EMAIL_REPLY_TO" envDefault:"support@acdrainwiz.com"`
}

// Message is one outbound email.
type Message struct {
	To       []string
	ReplyTo  string
	Subject  string
	HTML     string
	Text     string
	Template string
}

// Sender delivers messages and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// NewSender returns a Resend sender, or a logging sender when no API key is
// configured.
func NewSender(cfg Config, log *logrus.Entry, opts ...upstream.Option) Sender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return &LogSender{Log: log}
	}
	return NewResend(cfg, opts...)
}

// Resend sends through the Resend HTTP API.
type Resend struct {
	client  *upstream.Client
	from    string
	replyTo string
}

// NewResend builds a Resend client.
func NewResend(cfg Config, opts ...upstream.Option) *Resend {
	opts = append([]upstream.Option{upstream.WithBearer(cfg.APIKey)}, opts...)
	return &Resend{
		client:  upstream.New("resend", cfg.BaseURL, opts...),
		from:    cfg.From,
		replyTo: cfg.ReplyTo,
	}
}

type resendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type resendRequest struct {
	From    string      `json:"from"`
	To      []string    `json:"to"`
	Subject string      `json:"subject"`
	HTML    string      `json:"html,omitempty"`
	Text    string      `json:"text,omitempty"`
	ReplyTo string      `json:"reply_to,omitempty"`
	Tags    []resendTag `json:"tags,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

// Send delivers msg, retrying rate limits and server errors.
func (r *Resend) Send(ctx context.Context, msg Message) (string, error) {
	ctx, span := otel.Tracer("email").Start(ctx, "resend.Send")
	defer span.End()
	span.SetAttributes(attribute.String("email.template", msg.Template))

	if err := validate(msg); err != nil {
		return "", err
	}
	req := resendRequest{
		From:    r.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
	}
	if req.ReplyTo == "" {
		req.ReplyTo = r.replyTo
	}
	if msg.Template != "" {
		req.Tags = []resendTag{{Name: "template", Value: msg.Template}}
	}
	var resp resendResponse
	if err := r.client.DoJSON(ctx, http.MethodPost, "/emails", req, &resp); err != nil {
		metrics.EmailsSent.WithLabelValues(msg.Template, "error").Inc()
		return "", fmt.Errorf("send %s email: %w", msg.Template, err)
	}
	metrics.EmailsSent.WithLabelValues(msg.Template, "sent").Inc()
	return resp.ID, nil
}

// LogSender logs messages instead of sending them.
type LogSender struct {
	Log *logrus.Entry
}

// Send logs msg.
func (s *LogSender) Send(_ context.Context, msg Message) (string, error) {
	if err := validate(msg); err != nil {
		return "", err
	}
	messageID := id.New("log")
	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"to":         strings.Join(msg.To, ","),
			"subject":    msg.Subject,
			"template":   msg.Template,
			"message_id": messageID,
		}).Info("email not sent, no provider configured")
	}
	metrics.EmailsSent.WithLabelValues(msg.Template, "logged").Inc()
	return messageID, nil
}

func validate(msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("email has no recipients")
	}
	for _, to := range msg.To {
		if !strings.Contains(to, "@") {
			return fmt.Errorf("invalid recipient %q", to)
		}
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return fmt.Errorf("email subject is required")
	}
	if msg.HTML == "" && msg.Text == "" {
		return fmt.Errorf("email body is required")
	}
	return nil
}
