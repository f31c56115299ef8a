package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type envTestConfig struct {
	Port int `env:"DRAINWIZ_TEST_PORT" envDefault:"123"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("DRAINWIZ_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
	if ExitCode(err) != ExitUsage {
		t.Fatalf("exit code = %d, want usage", ExitCode(err))
	}
}

func TestLoadDotEnvFillsUnsetValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	data := "DRAINWIZ_TEST_DOTENV_A=from-file\nDRAINWIZ_TEST_DOTENV_B=from-file\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("DRAINWIZ_TEST_DOTENV_A", "from-env")
	t.Setenv("DRAINWIZ_TEST_DOTENV_B", "")
	os.Unsetenv("DRAINWIZ_TEST_DOTENV_B")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("DRAINWIZ_TEST_DOTENV_A"); got != "from-env" {
		t.Fatalf("A = %q, want %q", got, "from-env")
	}
	if got := os.Getenv("DRAINWIZ_TEST_DOTENV_B"); got != "from-file" {
		t.Fatalf("B = %q, want %q", got, "from-file")
	}
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}
