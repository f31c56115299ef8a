// Package forms accepts public form submissions: contact, contractor
// inquiries and warranty claims.
package forms

import (
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/go-playground/validator/v10"
)

// Form ids.
const (
	FormContact           = "contact"
	FormContractorInquiry = "contractor-inquiry"
	FormWarranty          = "warranty"
)

// Field describes one input of a form.
type Field struct {
	Name     string
	Label    string
	Required bool
	MaxLen   int
	// Email fields must hold a valid address.
	Email bool
	// Text fields are free text and feed the spam heuristics.
	Text bool
}

// Schema is a form's field list.
type Schema struct {
	ID     string
	Title  string
	Fields []Field
}

var schemas = map[string]Schema{
	FormContact: {
		ID:    FormContact,
		Title: "Contact form",
		Fields: []Field{
			{Name: "name", Label: "Name", Required: true, MaxLen: 120},
			{Name: "email", Label: "Email", Required: true, MaxLen: 254, Email: true},
			{Name: "phone", Label: "Phone", MaxLen: 40},
			{Name: "subject", Label: "Subject", MaxLen: 160},
			{Name: "message", Label: "Message", Required: true, MaxLen: 5000, Text: true},
		},
	},
	FormContractorInquiry: {
		ID:    FormContractorInquiry,
		Title: "Contractor inquiry",
		Fields: []Field{
			{Name: "name", Label: "Name", Required: true, MaxLen: 120},
			{Name: "company", Label: "Company", Required: true, MaxLen: 160},
			{Name: "email", Label: "Email", Required: true, MaxLen: 254, Email: true},
			{Name: "phone", Label: "Phone", Required: true, MaxLen: 40},
			{Name: "state", Label: "State", MaxLen: 2},
			{Name: "annual_installs", Label: "Annual installs", MaxLen: 20},
			{Name: "message", Label: "Message", MaxLen: 5000, Text: true},
		},
	},
	FormWarranty: {
		ID:    FormWarranty,
		Title: "Warranty claim",
		Fields: []Field{
			{Name: "name", Label: "Name", Required: true, MaxLen: 120},
			{Name: "email", Label: "Email", Required: true, MaxLen: 254, Email: true},
			{Name: "phone", Label: "Phone", MaxLen: 40},
			{Name: "order_number", Label: "Order number", MaxLen: 64},
			{Name: "product", Label: "Product", Required: true, MaxLen: 120},
			{Name: "purchase_date", Label: "Purchase date", MaxLen: 32},
			{Name: "issue", Label: "Issue", Required: true, MaxLen: 5000, Text: true},
		},
	},
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Lookup returns the schema for id.
func Lookup(id string) (Schema, bool) {
	s, ok := schemas[strings.TrimSpace(id)]
	return s, ok
}

// IDs lists the known forms.
func IDs() []string {
	return []string{FormContact, FormContractorInquiry, FormWarranty}
}

// Clean trims values, drops fields the schema does not declare, and
// validates the rest. Field errors are returned as metadata keyed by field
// name.
func (s Schema) Clean(values map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(s.Fields))
	problems := map[string]string{}
	for _, f := range s.Fields {
		v := strings.TrimSpace(values[f.Name])
		switch {
		case v == "" && f.Required:
			problems[f.Name] = f.Label + " is required."
			continue
		case v == "":
			continue
		case f.MaxLen > 0 && utf8.RuneCountInString(v) > f.MaxLen:
			problems[f.Name] = fmt.Sprintf("%s must be at most %d characters.", f.Label, f.MaxLen)
			continue
		case f.Email && validate.Var(v, "email") != nil:
			problems[f.Name] = "Enter a valid email address."
			continue
		}
		out[f.Name] = v
	}
	if len(problems) > 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeValidation, "form has invalid fields", problems)
	}
	return out, nil
}

// EmailOf returns the first email field's value.
func (s Schema) EmailOf(values map[string]string) string {
	for _, f := range s.Fields {
		if f.Email {
			return values[f.Name]
		}
	}
	return ""
}

// TextOf joins the free-text fields.
func (s Schema) TextOf(values map[string]string) string {
	var parts []string
	for _, f := range s.Fields {
		if f.Text && values[f.Name] != "" {
			parts = append(parts, values[f.Name])
		}
	}
	return strings.Join(parts, "\n")
}
