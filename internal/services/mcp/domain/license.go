package domain

import (
	"context"
	"strings"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/services/account"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CheckLicenseInput represents the MCP tool input for a license format check.
type CheckLicenseInput struct {
	State         string `json:"state" jsonschema:"two letter state code the license was issued in"`
	LicenseNumber string `json:"license_number" jsonschema:"contractor license number as written"`
}

// CheckLicenseResult is the MCP tool output for a license format check.
type CheckLicenseResult struct {
	State           string `json:"state" jsonschema:"normalized state code"`
	Valid           bool   `json:"valid" jsonschema:"true when the number matches the state format"`
	Normalized      string `json:"normalized,omitempty" jsonschema:"license number as it would be stored"`
	Pattern         string `json:"pattern" jsonschema:"regular expression the number must match"`
	StateSpecific   bool   `json:"state_specific" jsonschema:"false when the generic format applies"`
	Reason          string `json:"reason,omitempty" jsonschema:"why the number was rejected"`
	KnownFormatList string `json:"known_formats" jsonschema:"states with a specific format"`
}

// CheckLicenseTool defines the MCP tool schema for license format checks.
func CheckLicenseTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "check_license_format",
		Description: "Checks a contractor license number against the issuing state's format",
	}
}

// CheckLicenseHandler validates a license number. A mismatch is a normal
// result, not a tool error.
func CheckLicenseHandler() mcp.ToolHandlerFor[CheckLicenseInput, CheckLicenseResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input CheckLicenseInput) (*mcp.CallToolResult, CheckLicenseResult, error) {
		state := strings.ToUpper(strings.TrimSpace(input.State))
		if len(state) != 2 {
			return nil, CheckLicenseResult{}, toolError(apperrors.New(apperrors.CodeInvalidArgument, "state must be a two letter code"))
		}
		pattern, specific := account.LicenseFormat(state)
		result := CheckLicenseResult{
			State:           state,
			Pattern:         pattern,
			StateSpecific:   specific,
			KnownFormatList: strings.Join(account.LicenseStates(), ","),
		}
		normalized, err := account.ValidateLicense(state, input.LicenseNumber)
		if err != nil {
			result.Reason = apperrors.Fields(err)["license_number"]
			return nil, result, nil
		}
		result.Valid = true
		result.Normalized = normalized
		return nil, result, nil
	}
}
