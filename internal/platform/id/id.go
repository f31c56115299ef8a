// Package id generates identifiers for orders, submissions and contractors.
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed random identifier such as "ord_3f2c...". The
// suffix is a version 4 UUID without dashes.
func New(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw
}

// Parse validates an identifier produced by New with the given prefix.
func Parse(prefix, value string) (uuid.UUID, error) {
	raw := value
	if prefix != "" {
		var ok bool
		raw, ok = strings.CutPrefix(value, prefix+"_")
		if !ok {
			return uuid.Nil, fmt.Errorf("id %q: missing %s_ prefix", value, prefix)
		}
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("id %q: %w", value, err)
	}
	return parsed, nil
}
