// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers YAML parsing, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validConfig = `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/ai-bot.db"
auth:
  jwt_secret: "test-secret"
openai:
  api_key: "sk-test"
`

func TestLoad(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "localhost:8080" {
		t.Errorf("HTTPAddr mismatch: got %q", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Path != "/tmp/ai-bot.db" {
		t.Errorf("Database.Path mismatch: got %q", cfg.Database.Path)
	}
	if cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("JWTSecret mismatch: got %q", cfg.Auth.JWTSecret)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.OpenAI.Model != DefaultModel {
		t.Errorf("Model default: got %q, want %q", cfg.OpenAI.Model, DefaultModel)
	}
	if cfg.Assistant.Name != DefaultAssistantName {
		t.Errorf("Assistant.Name default: got %q, want %q", cfg.Assistant.Name, DefaultAssistantName)
	}
	if cfg.Assistant.Instructions != DefaultInstructions {
		t.Errorf("Assistant.Instructions default: got %q", cfg.Assistant.Instructions)
	}
	if cfg.Auth.TokenTTL != DefaultTokenTTL {
		t.Errorf("TokenTTL default: got %v, want %v", cfg.Auth.TokenTTL, DefaultTokenTTL)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_AIBOT_SECRET", "expanded-secret")
	t.Setenv("TEST_AIBOT_KEY", "sk-expanded")

	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/ai-bot.db"
auth:
  jwt_secret: "${TEST_AIBOT_SECRET}"
openai:
  api_key: "${TEST_AIBOT_KEY}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.JWTSecret != "expanded-secret" {
		t.Errorf("JWTSecret not expanded: got %q", cfg.Auth.JWTSecret)
	}
	if cfg.OpenAI.APIKey != "sk-expanded" {
		t.Errorf("APIKey not expanded: got %q", cfg.OpenAI.APIKey)
	}
}

func TestLoad_ParsesTokenTTL(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/ai-bot.db"
auth:
  jwt_secret: "test-secret"
  token_ttl: "2h"
openai:
  api_key: "sk-test"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("TokenTTL mismatch: got %v", cfg.Auth.TokenTTL)
	}
}

func TestLoad_InvalidTokenTTL(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: "/tmp/ai-bot.db"
auth:
  jwt_secret: "test-secret"
  token_ttl: "not-a-duration"
openai:
  api_key: "sk-test"
`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid token_ttl")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/server.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "not: [valid: yaml")

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		omit string
	}{
		{"missing http_addr", "http_addr"},
		{"missing database path", "path"},
		{"missing jwt_secret", "jwt_secret"},
		{"missing api_key", "api_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := validConfig
			var stripped []string
			for _, line := range strings.Split(content, "\n") {
				if strings.Contains(line, tt.omit) {
					continue
				}
				stripped = append(stripped, line)
			}
			path := writeConfig(t, strings.Join(stripped, "\n"))

			if _, err := Load(path); err == nil {
				t.Errorf("expected validation error when %s is missing", tt.omit)
			}
		})
	}
}
