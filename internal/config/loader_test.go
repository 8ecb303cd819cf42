package config_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/groovi/groovi/internal/config"
)

// Tests in this file touch the process environment and must not run in
// parallel.

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("GROOVI_TEST_GROQ_KEY", "gsk_secret")

	yaml := `
providers:
  llm:
    name: groq
    api_key: ${GROOVI_TEST_GROQ_KEY}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "gsk_secret" {
		t.Errorf("api_key = %q, want expanded value", cfg.Providers.LLM.APIKey)
	}
	if cfg.Providers.AgentLLM.APIKey != "gsk_secret" {
		t.Errorf("agent_llm api_key = %q", cfg.Providers.AgentLLM.APIKey)
	}
}

func TestLoad_ReadsDotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "GROOVI_TEST_DOTENV_KEY=from-dotenv\n")
	writeFile(t, filepath.Join(dir, "config.yaml"), `
providers:
  llm:
    name: groq
    api_key: ${GROOVI_TEST_DOTENV_KEY}
`)
	t.Cleanup(func() { os.Unsetenv("GROOVI_TEST_DOTENV_KEY") })

	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "from-dotenv" {
		t.Errorf("api_key = %q", cfg.Providers.LLM.APIKey)
	}
}

func TestLoadEnv_DoesNotOverride(t *testing.T) {
	t.Setenv("GROOVI_TEST_PRESET", "process")
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.env")
	writeFile(t, path, "GROOVI_TEST_PRESET=file\n")

	if err := config.LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("GROOVI_TEST_PRESET"); got != "process" {
		t.Errorf("GROOVI_TEST_PRESET = %q, want process value kept", got)
	}
	if err := config.LoadEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_example")
	t.Setenv("GROOVI_POSTGRES_DSN", "")
	t.Setenv("SPOTIFY_CLIENT_ID", "")

	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Providers.AgentLLM.Model == cfg.Providers.LLM.Model {
		t.Error("example should use a larger agent model")
	}
	if got := cfg.Providers.Wake.Options["phrases"]; got == nil {
		t.Error("wake phrases missing")
	}
	if len(cfg.MCP.Servers) != 1 || cfg.MCP.Servers[0].Env["SPOTIFY_CLIENT_ID"] != "" {
		t.Errorf("mcp servers = %+v", cfg.MCP.Servers)
	}
	if cfg.Memory.PostgresDSN != "" {
		t.Errorf("journal enabled without GROOVI_POSTGRES_DSN: %q", cfg.Memory.PostgresDSN)
	}
}
