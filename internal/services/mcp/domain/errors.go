package domain

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
)

// toolError renders a domain error as the text an assistant sees. Field
// hints are appended in key order.
func toolError(err error) error {
	if err == nil {
		return nil
	}
	code := apperrors.GetCode(err)
	msg := fmt.Sprintf("%s: %s", code, err.Error())
	fields := apperrors.Fields(err)
	if len(fields) == 0 {
		return fmt.Errorf("%s", msg)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	hints := make([]string, 0, len(keys))
	for _, k := range keys {
		hints = append(hints, k+": "+fields[k])
	}
	return fmt.Errorf("%s (%s)", msg, strings.Join(hints, "; "))
}
