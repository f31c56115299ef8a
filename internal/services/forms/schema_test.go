package forms

import (
	"strings"
	"testing"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/google/go-cmp/cmp"
)

func TestLookup(t *testing.T) {
	for _, id := range IDs() {
		s, ok := Lookup(id)
		if !ok || s.ID != id {
			t.Fatalf("Lookup(%q) = %+v, %v", id, s, ok)
		}
	}
	if _, ok := Lookup("newsletter"); ok {
		t.Fatal("expected unknown form")
	}
}

func TestClean(t *testing.T) {
	schema, _ := Lookup(FormContact)
	got, err := schema.Clean(map[string]string{
		"name":    "  Pat  ",
		"email":   "pat@coolair.com",
		"message": "Hello",
		"website": "",
		"extra":   "dropped",
	})
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	want := map[string]string{"name": "Pat", "email": "pat@coolair.com", "message": "Hello"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("cleaned mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanReportsFieldErrors(t *testing.T) {
	schema, _ := Lookup(FormWarranty)
	_, err := schema.Clean(map[string]string{
		"name":  strings.Repeat("x", 121),
		"email": "nope",
		"issue": "Leaking",
	})
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("err = %v", err)
	}
	fields := apperrors.Fields(err)
	for _, name := range []string{"name", "email", "product"} {
		if fields[name] == "" {
			t.Errorf("missing problem for %s: %v", name, fields)
		}
	}
	if _, ok := fields["issue"]; ok {
		t.Errorf("unexpected problem for issue")
	}
}

func TestEmailAndText(t *testing.T) {
	schema, _ := Lookup(FormContractorInquiry)
	values := map[string]string{"email": "a@b.com", "message": "hi", "company": "Co"}
	if got := schema.EmailOf(values); got != "a@b.com" {
		t.Fatalf("email = %q", got)
	}
	if got := schema.TextOf(values); got != "hi" {
		t.Fatalf("text = %q", got)
	}
}
