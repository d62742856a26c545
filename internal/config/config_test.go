package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GATEWAY_SDK_AUTHORIZATION__VALUE", "sandbox_abc_def")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sandbox", cfg.Environment)
	assert.Equal(t, "sandbox_abc_def", cfg.Authorization.Value)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Secrets.CacheTTL)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GATEWAY_SDK_ENVIRONMENT", "production")
	t.Setenv("GATEWAY_SDK_AUTHORIZATION__SECRET_NAME", "gateway-sdk/authorization")
	t.Setenv("GATEWAY_SDK_SECRETS__BACKEND", "aws")
	t.Setenv("GATEWAY_SDK_HTTP__READ_TIMEOUT", "10s")
	t.Setenv("GATEWAY_SDK_HTTP__REQUESTS_PER_SECOND", "2.5")
	t.Setenv("GATEWAY_SDK_THREEDS__RETURN_URL_SCHEME", "com.merchant.app")
	t.Setenv("GATEWAY_SDK_STORE__BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "gateway-sdk/authorization", cfg.Authorization.SecretName)
	assert.Equal(t, "aws", cfg.Secrets.Backend)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 2.5, cfg.HTTP.RequestsPerSecond)
	assert.Equal(t, "com.merchant.app", cfg.ThreeDS.ReturnURLScheme)
	assert.Equal(t, "memory", cfg.Store.Backend)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		expectError string
	}{
		{
			name:        "missing authorization",
			env:         map[string]string{},
			expectError: "authorization.value or authorization.secret_name is required",
		},
		{
			name: "unknown store backend",
			env: map[string]string{
				"GATEWAY_SDK_AUTHORIZATION__VALUE": "sandbox_abc_def",
				"GATEWAY_SDK_STORE__BACKEND":       "redis",
			},
			expectError: "config validation failed",
		},
		{
			name: "postgres without database url",
			env: map[string]string{
				"GATEWAY_SDK_AUTHORIZATION__VALUE": "sandbox_abc_def",
				"GATEWAY_SDK_STORE__BACKEND":       "postgres",
			},
			expectError: "store.database_url is required",
		},
		{
			name: "unknown environment",
			env: map[string]string{
				"GATEWAY_SDK_AUTHORIZATION__VALUE": "sandbox_abc_def",
				"GATEWAY_SDK_ENVIRONMENT":          "staging",
			},
			expectError: "config validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}
