package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("surgemap-test")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "surgemap-test", cfg.Telemetry.ServiceName)
	assert.Equal(t, 24*time.Hour, cfg.Valkey.GeocodeTTL)
	assert.Equal(t, 8*time.Second, cfg.Router.Timeout)
	assert.Equal(t, "Mumbai, India", cfg.Geocoder.CityHint)

	b := cfg.Region.Bounds()
	assert.True(t, b.Valid())
	assert.True(t, b.Contains(cfg.Region.Center()))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SURGEMAP_ROUTER_API_KEY", "secret")
	t.Setenv("SURGEMAP_ROUTER_MAX_CONCURRENT", "2")
	t.Setenv("SURGEMAP_GEOCODER_TIMEOUT", "1500ms")

	cfg, err := Load("surgemap-test")
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Router.APIKey)
	assert.Equal(t, 2, cfg.Router.MaxConcurrent)
	assert.Equal(t, 1500*time.Millisecond, cfg.Geocoder.Timeout)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("surgemap-test")
	require.NoError(t, err)

	bad := *cfg
	bad.Region.MinLat, bad.Region.MaxLat = 19.3, 18.85
	bad.Router.MaxConcurrent = 0
	bad.Geocoder.UserAgent = ""

	err = bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region bounds")
	assert.Contains(t, err.Error(), "router.max_concurrent")
	assert.Contains(t, err.Error(), "geocoder.user_agent")
}

func TestValidate_CenterOutsideRegion(t *testing.T) {
	cfg, err := Load("surgemap-test")
	require.NoError(t, err)

	cfg.Region.CenterLat = 28.61 // Delhi
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region center")
}
