package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/a-h/templ"
)

// Template names, also used as metric labels.
const (
	TemplateOrderConfirmation   = "order_confirmation"
	TemplateMagicLink           = "magic_link"
	TemplateFormNotification    = "form_notification"
	TemplateApplicationReceived = "application_received"
)

// Template is a renderable email.
type Template interface {
	TemplateName() string
	Subject() string
	Body() templ.Component
	Text() string
}

// Compose renders t inside the shared layout.
func Compose(ctx context.Context, to []string, t Template) (Message, error) {
	var b strings.Builder
	if err := layout(t.Subject(), t.Body()).Render(ctx, &b); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", t.TemplateName(), err)
	}
	return Message{
		To:       to,
		Subject:  t.Subject(),
		HTML:     b.String(),
		Text:     t.Text(),
		Template: t.TemplateName(),
	}, nil
}

// OrderLine is one line of a confirmation email.
type OrderLine struct {
	Name     string
	Quantity int
	Total    string
}

// OrderConfirmation is sent once an order is paid.
type OrderConfirmation struct {
	OrderID      string
	CustomerName string
	Lines        []OrderLine
	Subtotal     string
	Shipping     string
	Total        string
	ServiceLevel string
	ShipTo       []string
}

func (OrderConfirmation) TemplateName() string { return TemplateOrderConfirmation }

func (o OrderConfirmation) Subject() string {
	return "Your AC Drain Wiz order " + o.OrderID
}

func (o OrderConfirmation) Body() templ.Component { return orderConfirmationBody(o) }

func (o OrderConfirmation) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nThanks for your order. We will email tracking details as soon as it ships.\n\n", firstName(o.CustomerName))
	for _, line := range o.Lines {
		fmt.Fprintf(&b, "%s x %d  %s\n", line.Name, line.Quantity, line.Total)
	}
	fmt.Fprintf(&b, "\nSubtotal: %s\nShipping (%s): %s\nTotal: %s\n\nShipping to:\n%s\n\nOrder reference: %s\n",
		o.Subtotal, o.ServiceLevel, o.Shipping, o.Total, strings.Join(o.ShipTo, "\n"), o.OrderID)
	return b.String()
}

// MagicLink carries a one-time sign-in link.
type MagicLink struct {
	Name string
	URL  string
	TTL  time.Duration
}

func (MagicLink) TemplateName() string { return TemplateMagicLink }

func (MagicLink) Subject() string { return "Your AC Drain Wiz sign-in link" }

func (m MagicLink) Body() templ.Component { return magicLinkBody(m) }

func (m MagicLink) Text() string {
	return fmt.Sprintf("Hi %s,\n\nUse this link to sign in to your contractor account. It works once and expires in %s.\n\n%s\n\nIf you did not ask for this link you can ignore this email.\n",
		firstName(m.Name), minutes(m.TTL), m.URL)
}

// Field is one labeled value of a form submission.
type Field struct {
	Label string
	Value string
}

// FormNotification tells sales about a new form submission.
type FormNotification struct {
	Form         string
	Title        string
	SubmissionID string
	Fields       []Field
}

func (FormNotification) TemplateName() string { return TemplateFormNotification }

func (f FormNotification) Subject() string {
	return "New " + f.Title + " submission"
}

func (f FormNotification) Body() templ.Component { return formNotificationBody(f) }

func (f FormNotification) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "A new %s form was submitted.\n\n", f.Title)
	for _, field := range f.Fields {
		fmt.Fprintf(&b, "%s: %s\n", field.Label, field.Value)
	}
	fmt.Fprintf(&b, "\nSubmission %s\n", f.SubmissionID)
	return b.String()
}

// ApplicationReceived acknowledges a contractor signup.
type ApplicationReceived struct {
	Name    string
	Company string
}

func (ApplicationReceived) TemplateName() string { return TemplateApplicationReceived }

func (ApplicationReceived) Subject() string {
	return "We received your AC Drain Wiz contractor application"
}

func (a ApplicationReceived) Body() templ.Component { return applicationReceivedBody(a) }

func (a ApplicationReceived) Text() string {
	return fmt.Sprintf("Hi %s,\n\nThanks for applying for a contractor account%s. We verify license numbers by hand and will email you once your account is approved, usually within one business day.\n",
		firstName(a.Name), companySuffix(a.Company))
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func companySuffix(company string) string {
	if company = strings.TrimSpace(company); company == "" {
		return ""
	}
	return " for " + company
}

func minutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
