package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/acdrainwiz/drainwiz/internal/platform/assets/imagecdn"
	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// ProductsResourceURI lists every retail-visible product.
	ProductsResourceURI   = "catalog://products"
	productResourcePrefix = ProductsResourceURI + "/"
)

// ProductsResource defines the MCP resource for the product list.
func ProductsResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "products",
		Title:       "Products",
		Description: "Retail product list as JSON",
		MIMEType:    "application/json",
		URI:         ProductsResourceURI,
	}
}

// ProductResourceTemplate defines the MCP resource template for one product.
func ProductResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "product",
		Title:       "Product",
		Description: "One product as JSON. URI format: catalog://products/{sku}",
		MIMEType:    "application/json",
		URITemplate: "catalog://products/{sku}",
	}
}

// ProductsResourceHandler serves the retail product list.
func ProductsResourceHandler(cat Catalog, cdn imagecdn.CDN) mcp.ResourceHandler {
	return func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := ProductsResourceURI
		if req != nil && req.Params != nil && req.Params.URI != "" {
			uri = req.Params.URI
		}
		return jsonResource(uri, productsResult(catalog.TierRetail, cat.Products(catalog.TierRetail), cdn))
	}
}

// ProductResourceHandler serves one product addressed by SKU.
func ProductResourceHandler(cat Catalog, cdn imagecdn.CDN) mcp.ResourceHandler {
	return func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if req == nil || req.Params == nil || req.Params.URI == "" {
			return nil, fmt.Errorf("sku is required; use URI format catalog://products/{sku}")
		}
		uri := req.Params.URI
		sku, err := parseSKUFromURI(uri)
		if err != nil {
			return nil, fmt.Errorf("parse sku from URI: %w", err)
		}
		product, err := cat.Product(sku)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeNotFound) {
				return nil, mcp.ResourceNotFoundError(uri)
			}
			return nil, err
		}
		return jsonResource(uri, productDetail(product, cdn))
	}
}

func parseSKUFromURI(uri string) (string, error) {
	sku, ok := strings.CutPrefix(uri, productResourcePrefix)
	if !ok {
		return "", fmt.Errorf("URI must start with %q", productResourcePrefix)
	}
	sku = strings.TrimSpace(sku)
	if sku == "" || strings.Contains(sku, "/") {
		return "", fmt.Errorf("URI must be catalog://products/{sku}")
	}
	return sku, nil
}

func jsonResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
