package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":      "postgres://localhost/kasir_test",
		"REDIS_URL":         "redis://localhost:6379/0",
		"TAX_RATE":          "",
		"POINTS_PER_AMOUNT": "",
		"POINT_VALUE":       "",
		"MAX_DISCOUNT_PCT":  "",
		"MIN_MARGIN_PCT":    "",
		"TAX_INCLUSIVE":     "",
	})
	require.NoError(t, err)

	require.Equal(t, "11", cfg.TaxRate.String())
	require.False(t, cfg.TaxInclusive)
	require.Equal(t, "10000", cfg.PointsPerAmount.String())
	require.Equal(t, "100", cfg.PointValue.String())
	require.Equal(t, "30", cfg.MaxDiscountPct.String())
	require.Equal(t, "5", cfg.MinMarginPct.String())
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":  "postgres://localhost/kasir_test",
		"REDIS_URL":     "redis://localhost:6379/0",
		"TAX_RATE":      "12",
		"TAX_INCLUSIVE": "true",
		"PORT":          "9090",
	})
	require.NoError(t, err)

	require.Equal(t, "12", cfg.TaxRate.String())
	require.True(t, cfg.TaxInclusive)
	require.Equal(t, ":9090", cfg.HTTPAddr())
}

func TestLoadRejectsInvalidParams(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"DATABASE_URL":      "postgres://localhost/kasir_test",
		"REDIS_URL":         "redis://localhost:6379/0",
		"POINTS_PER_AMOUNT": "0",
	})
	require.Error(t, err)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"DATABASE_URL": "",
		"REDIS_URL":    "redis://localhost:6379/0",
	})
	require.Error(t, err)
}
