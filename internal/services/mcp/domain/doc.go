// Package domain defines the MCP tools and resources exposed to assistants:
// their input and output shapes and the handlers that answer them from the
// catalog, the shipping calculator and the license rules.
package domain
