package domain

import (
	"context"

	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/samber/lo"
)

// NextSetupStepsInput represents the MCP tool input for guided setup.
type NextSetupStepsInput struct {
	SKU       string   `json:"sku" jsonschema:"product SKU"`
	Completed []string `json:"completed,omitempty" jsonschema:"ids of steps already done"`
}

// SetupStep is one step an installer can do next.
type SetupStep struct {
	ID       string   `json:"id" jsonschema:"step id"`
	Title    string   `json:"title" jsonschema:"short step title"`
	Body     string   `json:"body" jsonschema:"instructions"`
	Requires []string `json:"requires,omitempty" jsonschema:"steps that must be done first"`
}

// NextSetupStepsResult is the MCP tool output for guided setup.
type NextSetupStepsResult struct {
	SKU       string      `json:"sku" jsonschema:"product SKU"`
	Completed []string    `json:"completed" jsonschema:"recognized completed step ids"`
	Available []SetupStep `json:"available" jsonschema:"steps whose prerequisites are done"`
	Remaining int         `json:"remaining" jsonschema:"steps not yet done"`
	Done      bool        `json:"done" jsonschema:"true when every step is done"`
}

// NextSetupStepsTool defines the MCP tool schema for guided setup.
func NextSetupStepsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "next_setup_steps",
		Description: "Returns the installation steps that can be done next for a product",
	}
}

// NextSetupStepsHandler walks a product's setup guide.
func NextSetupStepsHandler(cat Catalog) mcp.ToolHandlerFor[NextSetupStepsInput, NextSetupStepsResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input NextSetupStepsInput) (*mcp.CallToolResult, NextSetupStepsResult, error) {
		progress, err := cat.NextSetupSteps(input.SKU, input.Completed)
		if err != nil {
			return nil, NextSetupStepsResult{}, toolError(err)
		}
		return nil, NextSetupStepsResult{
			SKU:       progress.SKU,
			Completed: lo.Ternary(progress.Completed == nil, []string{}, progress.Completed),
			Available: lo.Map(progress.Available, func(s catalog.SetupStep, _ int) SetupStep {
				return SetupStep{ID: s.ID, Title: s.Title, Body: s.Body, Requires: s.Requires}
			}),
			Remaining: progress.Remaining,
			Done:      progress.Done,
		}, nil
	}
}
