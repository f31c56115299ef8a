package mcp

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "localhost:8081" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.Transport != "stdio" {
		t.Fatalf("expected default transport stdio, got %q", cfg.Transport)
	}
	if cfg.ShipStation.Enabled() {
		t.Fatal("expected shipstation to be disabled without credentials")
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("DRAINWIZ_MCP_HTTP_ADDR", "env-http")
	t.Setenv("DRAINWIZ_MCP_TRANSPORT", "http")
	t.Setenv("DRAINWIZ_IMAGE_CDN_BASE", "https://res.cloudinary.com/drainwiz/image/upload")

	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-http-addr", "flag-http"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "flag-http" {
		t.Fatalf("expected flag http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.Transport != "http" {
		t.Fatalf("expected transport http from env, got %q", cfg.Transport)
	}
	if cfg.CDNBase == "" {
		t.Fatal("expected cdn base from env")
	}
}
