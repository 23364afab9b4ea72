package app_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gstbilling/internal/app"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "IN", cfg.PhoneRegion)
	require.Equal(t, "0 3 * * *", cfg.RecomputeCron)
	require.Equal(t, 5*time.Minute, cfg.MergeLockTTL)
	require.Equal(t, "notifications", cfg.NotifyQueue)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("RECOMPUTE_CONCURRENCY", "9")
	t.Setenv("PHONE_REGION", "GB")
	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 9, cfg.RecomputeConcurrency)
	require.Equal(t, "GB", cfg.PhoneRegion)

	t.Setenv("PHONE_REGION", "INDIA")
	_, err = app.LoadConfig()
	require.Error(t, err)
}
