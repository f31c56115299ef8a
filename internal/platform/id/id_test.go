package id

import (
	"strings"
	"testing"
)

func TestNewFormat(t *testing.T) {
	value := New("ord")
	if !strings.HasPrefix(value, "ord_") {
		t.Fatalf("expected ord_ prefix, got %q", value)
	}
	if len(value) != len("ord_")+32 {
		t.Fatalf("expected 32-character suffix, got %q", value)
	}
	if strings.Contains(value[4:], "-") {
		t.Fatalf("expected no dashes, got %q", value)
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		value := New("sub")
		if _, ok := seen[value]; ok {
			t.Fatalf("duplicate id %q", value)
		}
		seen[value] = struct{}{}
	}
}

func TestParseRoundTrip(t *testing.T) {
	value := New("ctr")
	parsed, err := Parse("ctr", value)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Version() != 4 {
		t.Fatalf("expected version 4, got %d", parsed.Version())
	}
	if _, err := Parse("ord", value); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
	if _, err := Parse("ctr", "ctr_nothex"); err == nil {
		t.Fatal("expected parse error")
	}
}
