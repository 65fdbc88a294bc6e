package config_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustcare/core/internal/platform/config"
)

func setBaseEnv(t *testing.T) {
	t.Helper()

	key := make([]byte, 32)
	t.Setenv("DATABASE_URL", "postgres://localhost/rustcare")
	t.Setenv("MASTER_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(key))
}

func TestLoadFailsWithoutDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MASTER_ENCRYPTION_KEY", "")
	t.Setenv("KMS_PROVIDER", "none")

	_, err := config.Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 1048576, cfg.EnvelopeThresholdBytes)
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Equal(t, config.RateLimitByUser, cfg.RateLimitBy)
	assert.True(t, cfg.StrictSameSite)
}

func TestLoadRejectsBadEnvelopeThreshold(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ENVELOPE_THRESHOLD_BYTES", "not-a-number")

	_, err := config.Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ENVELOPE_THRESHOLD_BYTES")
}

func TestLoadRejectsBadMasterKeyLength(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/rustcare")
	t.Setenv("MASTER_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString([]byte("short")))

	_, err := config.Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestLoadParsesAllowedOrigins(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}

func TestLoadParsesMTLSSettings(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TLS_CERT_FILE", "/etc/rustcare/server.crt")
	t.Setenv("TLS_KEY_FILE", "/etc/rustcare/server.key")
	t.Setenv("MTLS_CLIENT_CA_FILE", "/etc/rustcare/client-ca.pem")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "/etc/rustcare/server.crt", cfg.TLSCertFile)
	assert.Equal(t, "/etc/rustcare/server.key", cfg.TLSKeyFile)
	assert.Equal(t, "/etc/rustcare/client-ca.pem", cfg.MTLSClientCAFile)
}

func TestLoadLeavesMTLSSettingsEmptyByDefault(t *testing.T) {
	setBaseEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.TLSCertFile)
	assert.Empty(t, cfg.MTLSClientCAFile)
}
