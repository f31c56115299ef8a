// Package service wires the MCP domain tools and resources into a go-sdk
// server and runs it over stdio or streamable HTTP.
package service
