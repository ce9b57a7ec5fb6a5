package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8600", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 15*time.Second, cfg.Vault.PromptTimeout)
	assert.Equal(t, 3, cfg.Vault.ObfuscateChars)
	assert.True(t, cfg.Adblock.EnabledDefault)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("ADBLOCK_ENABLED", "false")
	t.Setenv("VAULT_PROMPT_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.False(t, cfg.Adblock.EnabledDefault)
	assert.Equal(t, 5*time.Second, cfg.Vault.PromptTimeout)
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	t.Setenv("VAULT_PROMPT_TIMEOUT", "not-a-duration")

	cfg := LoadOrDefault()
	assert.Equal(t, 15*time.Second, cfg.Vault.PromptTimeout)
}
