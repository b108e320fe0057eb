// ABOUTME: Tests for the gateway binary helpers
// ABOUTME: Covers config path resolution, address rewriting, and log level parsing

package main

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("HELIX_CONFIG", "/etc/helix/custom.toml")
	assert.Equal(t, "/etc/helix/custom.toml", getConfigPath())

	t.Setenv("HELIX_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "helix", "gateway.yaml"), getConfigPath())
}

func TestClientAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8000", clientAddr("0.0.0.0:8000"))
	assert.Equal(t, "127.0.0.1:8000", clientAddr(":8000"))
	assert.Equal(t, "10.0.0.5:8000", clientAddr("10.0.0.5:8000"))
}

func TestAuditPath(t *testing.T) {
	assert.Equal(t, "/api/sessions/s-42/audit", auditPath("s-42"))
	assert.Equal(t, "/api/sessions/a%2Fb%3Fx=1/audit", auditPath("a/b?x=1"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestRunToken_ArgumentErrors(t *testing.T) {
	assert.ErrorContains(t, runToken([]string{"--ttl"}), "--ttl requires a value")
	assert.ErrorContains(t, runToken([]string{"--ttl=soon"}), "invalid --ttl")
	assert.ErrorContains(t, runToken([]string{"--bogus"}), "unknown argument")
	assert.ErrorContains(t, runToken([]string{"--subject", " "}), "subject cannot be empty")
}
