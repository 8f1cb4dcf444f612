package config

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/tradedesk")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("INTERNAL_API_TOKEN", "internal")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.True(t, cfg.CommissionRate.Equal(decimal.RequireFromString("0.001")))
	assert.Equal(t, 3, cfg.StepMaxAttempts)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 1, cfg.DefaultLeverage)
	assert.Contains(t, cfg.Symbols, "AAPL")
	assert.False(t, cfg.Production())
}

func TestFromEnvMissingRequired(t *testing.T) {
	t.Setenv("DB_DSN", "")
	require.NoError(t, os.Unsetenv("DB_DSN"))
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("INTERNAL_API_TOKEN", "internal")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
}

func TestFromEnvNormalizesSymbols(t *testing.T) {
	setRequired(t)
	t.Setenv("SYMBOLS", " aapl, msft ")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Symbols)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "bad mode", env: map[string]string{"APP_MODE": "staging"}, wantErr: "APP_MODE"},
		{name: "zero leverage", env: map[string]string{"DEFAULT_LEVERAGE": "0"}, wantErr: "DEFAULT_LEVERAGE"},
		{name: "commission too high", env: map[string]string{"COMMISSION_RATE": "1.5"}, wantErr: "COMMISSION_RATE"},
		{name: "no attempts", env: map[string]string{"STEP_MAX_ATTEMPTS": "0"}, wantErr: "STEP_MAX_ATTEMPTS"},
		{name: "zero interval", env: map[string]string{"MARGIN_SWEEP_INTERVAL": "0s"}, wantErr: "MARGIN_SWEEP_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
