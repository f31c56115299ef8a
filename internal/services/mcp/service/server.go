package service

import (
	"fmt"

	"github.com/acdrainwiz/drainwiz/internal/platform/assets/imagecdn"
	"github.com/acdrainwiz/drainwiz/internal/services/mcp/domain"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

const (
	// serverName identifies the MCP server to clients.
	serverName = "drainwiz"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

type mcpRegistrationKind int

const (
	mcpRegistrationKindTools mcpRegistrationKind = iota
	mcpRegistrationKindResources
)

type mcpRegistrationModule struct {
	name     string
	kind     mcpRegistrationKind
	register func(mcpRegistrationTarget) error
}

const (
	mcpCatalogToolsModuleName    = "catalog-tools"
	mcpShippingToolsModuleName   = "shipping-tools"
	mcpAccountToolsModuleName    = "account-tools"
	mcpSetupToolsModuleName      = "setup-tools"
	mcpCatalogResourceModuleName = "catalog-resources"
)

type mcpRegistrationTarget interface {
	AddTool(*mcp.Tool, any) error
	AddResourceTemplate(*mcp.ResourceTemplate, mcp.ResourceHandler)
	AddResource(*mcp.Resource, mcp.ResourceHandler)
}

type mcpServerRegistrationAdapter struct {
	server *mcp.Server
}

func (r mcpServerRegistrationAdapter) AddTool(tool *mcp.Tool, handler any) error {
	return addMCPTool(r.server, tool, handler)
}

func (r mcpServerRegistrationAdapter) AddResourceTemplate(resourceTemplate *mcp.ResourceTemplate, handler mcp.ResourceHandler) {
	r.server.AddResourceTemplate(resourceTemplate, handler)
}

func (r mcpServerRegistrationAdapter) AddResource(resource *mcp.Resource, handler mcp.ResourceHandler) {
	r.server.AddResource(resource, handler)
}

type mcpToolRegistrar struct {
	matches func(any) bool
	add     func(*mcp.Server, *mcp.Tool, any)
}

func newMCPToolRegistrar[I any, O any]() mcpToolRegistrar {
	return mcpToolRegistrar{
		matches: func(handler any) bool {
			_, ok := handler.(mcp.ToolHandlerFor[I, O])
			return ok
		},
		add: func(server *mcp.Server, tool *mcp.Tool, handler any) {
			mcp.AddTool(server, tool, handler.(mcp.ToolHandlerFor[I, O]))
		},
	}
}

var mcpToolRegistrars = []mcpToolRegistrar{
	newMCPToolRegistrar[domain.ListProductsInput, domain.ProductsResult](),
	newMCPToolRegistrar[domain.SearchProductsInput, domain.ProductsResult](),
	newMCPToolRegistrar[domain.GetProductInput, domain.ProductDetail](),
	newMCPToolRegistrar[domain.EstimateShippingInput, domain.EstimateShippingResult](),
	newMCPToolRegistrar[domain.CheckLicenseInput, domain.CheckLicenseResult](),
	newMCPToolRegistrar[domain.NextSetupStepsInput, domain.NextSetupStepsResult](),
}

func addMCPTool(server *mcp.Server, tool *mcp.Tool, handler any) error {
	for _, registrar := range mcpToolRegistrars {
		if registrar.matches(handler) {
			registrar.add(server, tool, handler)
			return nil
		}
	}
	toolName := "<nil>"
	if tool != nil {
		toolName = tool.Name
	}
	return fmt.Errorf("mcp registration adapter does not support handler type %T for tool %q", handler, toolName)
}

func registerTool(registrar mcpRegistrationTarget, tool *mcp.Tool, handler any) error {
	if err := registrar.AddTool(tool, handler); err != nil {
		return fmt.Errorf("register tool %q: %w", tool.Name, err)
	}
	return nil
}

// Dependencies are the read-only backends the tools answer from.
type Dependencies struct {
	Catalog  domain.Catalog
	Shipping domain.ShippingQuoter
	CDN      imagecdn.CDN
	Log      *logrus.Entry
}

func newMCPRegistrationModules(deps Dependencies) []mcpRegistrationModule {
	return []mcpRegistrationModule{
		{
			name: mcpCatalogToolsModuleName,
			kind: mcpRegistrationKindTools,
			register: func(registrar mcpRegistrationTarget) error {
				registrations := []struct {
					tool    *mcp.Tool
					handler any
				}{
					{tool: domain.ListProductsTool(), handler: domain.ListProductsHandler(deps.Catalog, deps.CDN)},
					{tool: domain.GetProductTool(), handler: domain.GetProductHandler(deps.Catalog, deps.CDN)},
					{tool: domain.SearchProductsTool(), handler: domain.SearchProductsHandler(deps.Catalog, deps.CDN)},
				}
				for _, registration := range registrations {
					if err := registerTool(registrar, registration.tool, registration.handler); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			name: mcpShippingToolsModuleName,
			kind: mcpRegistrationKindTools,
			register: func(registrar mcpRegistrationTarget) error {
				return registerTool(registrar, domain.EstimateShippingTool(), domain.EstimateShippingHandler(deps.Catalog, deps.Shipping))
			},
		},
		{
			name: mcpAccountToolsModuleName,
			kind: mcpRegistrationKindTools,
			register: func(registrar mcpRegistrationTarget) error {
				return registerTool(registrar, domain.CheckLicenseTool(), domain.CheckLicenseHandler())
			},
		},
		{
			name: mcpSetupToolsModuleName,
			kind: mcpRegistrationKindTools,
			register: func(registrar mcpRegistrationTarget) error {
				return registerTool(registrar, domain.NextSetupStepsTool(), domain.NextSetupStepsHandler(deps.Catalog))
			},
		},
		{
			name: mcpCatalogResourceModuleName,
			kind: mcpRegistrationKindResources,
			register: func(registrar mcpRegistrationTarget) error {
				registrar.AddResource(domain.ProductsResource(), domain.ProductsResourceHandler(deps.Catalog, deps.CDN))
				registrar.AddResourceTemplate(domain.ProductResourceTemplate(), domain.ProductResourceHandler(deps.Catalog, deps.CDN))
				return nil
			},
		},
	}
}

// NewServer builds the MCP server with every tool and resource registered.
func NewServer(deps Dependencies) (*mcp.Server, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if deps.Shipping == nil {
		return nil, fmt.Errorf("shipping calculator is required")
	}
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	registrar := mcpServerRegistrationAdapter{server: server}
	for _, module := range newMCPRegistrationModules(deps) {
		if err := module.register(registrar); err != nil {
			return nil, fmt.Errorf("register %s module: %w", module.name, err)
		}
		deps.Log.WithField("module", module.name).WithField("kind", module.kind.String()).Debug("registered mcp module")
	}
	return server, nil
}

func (k mcpRegistrationKind) String() string {
	switch k {
	case mcpRegistrationKindTools:
		return "tools"
	case mcpRegistrationKindResources:
		return "resources"
	default:
		return "unknown"
	}
}
