package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DEBUG", "")
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_PATH", "")
	t.Setenv("API_KEYS", "")
	t.Setenv("FRONTEND_ORIGIN", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Debug)
	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.DatabasePath)
	assert.Empty(t, cfg.FrontendOrigin)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DEBUG", "true")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_PATH", "/tmp/gamesync.db")
	t.Setenv("API_KEYS", "alpha,beta")
	t.Setenv("FRONTEND_ORIGIN", "https://example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/tmp/gamesync.db", cfg.DatabasePath)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.APIKeys)
	assert.Equal(t, "https://example.com", cfg.FrontendOrigin)
}
