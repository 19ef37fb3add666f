package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pension-calculation-engine/internal/engine"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "SCHEME_REGISTRY_URL", "SCHEME_REGISTRY_TIMEOUT", "SCHEME_REGISTRY_RPS", "PATCH_MODE", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, engine.PatchNone, cfg.Patches())
	assert.Empty(t, cfg.SchemeRegistryURL)
}

func TestMissingFileIsNotAnError(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}

func TestFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
scheme_registry_url: http://registry.local
scheme_registry_timeout: 500ms
scheme_registry_rps: 50
patch_mode: both
log_level: debug
`), 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "http://registry.local", cfg.SchemeRegistryURL)
	assert.Equal(t, 500*time.Millisecond, cfg.SchemeRegistryTimeout)
	assert.Equal(t, 50.0, cfg.SchemeRegistryRPS)
	assert.Equal(t, engine.PatchBoth, cfg.Patches())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestPatchModeBoolean(t *testing.T) {
	clearEnv(t)
	t.Setenv("PATCH_MODE", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, engine.PatchForward, cfg.Patches())
}

func TestInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"port not a number": {"PORT": "http"},
		"port out of range": {"PORT": "70000"},
		"bad timeout":       {"SCHEME_REGISTRY_TIMEOUT": "soon"},
		"bad rps":           {"SCHEME_REGISTRY_RPS": "lots"},
		"negative rps":      {"SCHEME_REGISTRY_RPS": "-1"},
		"bad patch mode":    {"PATCH_MODE": "sideways"},
		"bad log level":     {"LOG_LEVEL": "chatty"},
		"bad log format":    {"LOG_FORMAT": "xml"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestMalformedFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [not, a, port]\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
