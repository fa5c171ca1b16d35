package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"VASE_HOST", "VASE_PORT", "VASE_KEEP_ALIVE_SECONDS", "VASE_MAX_HEADER_BYTES", "VASE_JWT_SECRET"} {
		t.Cleanup(func(k string) func() { return func() { os.Unsetenv(k) } }(k))
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 20*time.Second, cfg.KeepAlive)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Empty(t, cfg.JWTSecret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("VASE_HOST", "127.0.0.1")
	os.Setenv("VASE_PORT", "8081")
	os.Setenv("VASE_KEEP_ALIVE_SECONDS", "0")
	os.Setenv("VASE_JWT_SECRET", "topsecret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, time.Duration(0), cfg.KeepAlive)
	assert.Equal(t, "topsecret", cfg.JWTSecret)
}

func TestLoad_NegativePortFailsValidation(t *testing.T) {
	clearEnv(t)
	os.Setenv("VASE_PORT", "-5")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_NonIntegerEnvUsesDefault(t *testing.T) {
	clearEnv(t)
	os.Setenv("VASE_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
}
