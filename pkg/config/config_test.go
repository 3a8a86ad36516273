package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("FIELDWORK_POSTGRES_URL", "postgres://localhost/fieldwork")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, time.Minute, cfg.Redis.RateLimitWindow)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Track.Enabled)
	assert.False(t, cfg.SSO.Enabled)
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("FIELDWORK_POSTGRES_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIELDWORK_POSTGRES_URL")
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("FIELDWORK_POSTGRES_URL", "postgres://localhost/fieldwork")
	t.Setenv("FIELDWORK_POSTGRES_REPLICA_URLS", "postgres://r1/fieldwork, postgres://r2/fieldwork")
	t.Setenv("FIELDWORK_PORT", "9000")
	t.Setenv("FIELDWORK_RATE_LIMIT_REQUESTS", "50")
	t.Setenv("FIELDWORK_READ_TIMEOUT", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"postgres://r1/fieldwork", "postgres://r2/fieldwork"}, cfg.Database.ReplicaURLs)
	assert.Equal(t, 50, cfg.Redis.RateLimitRequests)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
}

func TestValidateTrackConfig(t *testing.T) {
	t.Setenv("FIELDWORK_POSTGRES_URL", "postgres://localhost/fieldwork")
	t.Setenv("FIELDWORK_TRACK_ENABLED", "true")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIELDWORK_TRACK_URL")

	t.Setenv("FIELDWORK_TRACK_URL", "https://track.example.org")
	t.Setenv("FIELDWORK_TRACK_TOKEN", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Track.Enabled)
}

func TestValidateSSOConfig(t *testing.T) {
	t.Setenv("FIELDWORK_POSTGRES_URL", "postgres://localhost/fieldwork")
	t.Setenv("FIELDWORK_SSO_ENABLED", "true")
	t.Setenv("FIELDWORK_SSO_ISSUER_URL", "https://login.example.org")
	t.Setenv("FIELDWORK_SSO_CLIENT_ID", "fieldwork")
	t.Setenv("FIELDWORK_SSO_CLIENT_SECRET", "secret")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIELDWORK_SSO_DEFAULT_ORG_ID")

	t.Setenv("FIELDWORK_SSO_DEFAULT_ORG_ID", "1")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.SSO.DefaultOrgID)
}
