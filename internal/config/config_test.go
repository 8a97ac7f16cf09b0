package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"GITHUB_TOKEN", "FETCH_LIMIT", "RETRY_MAX_ATTEMPTS", "BACKOFF_BASE_MS",
		"RATE_PAUSE_THRESHOLD", "ALLOW_PARTIAL", "STORAGE_TYPE", "SQLITE_PATH",
		"POSTGRES_URL", "API_PORT", "API_HOST",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, LimitUnbounded, cfg.FetchLimit)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 10, cfg.RatePauseThreshold)
	assert.False(t, cfg.AllowPartial)
	assert.Equal(t, "sqlite", cfg.StorageType)
	assert.Equal(t, "./repometrics.db", cfg.SQLitePath)
	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, "localhost", cfg.APIHost)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("FETCH_LIMIT", "150")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("BACKOFF_BASE_MS", "250")
	t.Setenv("ALLOW_PARTIAL", "true")
	t.Setenv("STORAGE_TYPE", "postgres")
	t.Setenv("POSTGRES_URL", "postgres://localhost/repometrics")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ghp_test", cfg.GitHubToken)
	assert.Equal(t, 150, cfg.FetchLimit)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.BackoffBase)
	assert.True(t, cfg.AllowPartial)
	assert.Equal(t, "postgres", cfg.StorageType)
}

func TestLoad_MalformedIntFallsBack(t *testing.T) {
	t.Setenv("FETCH_LIMIT", "plenty")
	t.Setenv("ALLOW_PARTIAL", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, LimitUnbounded, cfg.FetchLimit)
	assert.False(t, cfg.AllowPartial)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			GitHubToken:      "ghp_test",
			FetchLimit:       LimitUnbounded,
			RetryMaxAttempts: 3,
			StorageType:      "sqlite",
			SQLitePath:       "./test.db",
		}
	}

	testCases := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "zero fetch limit is valid", mutate: func(c *Config) { c.FetchLimit = 0 }},
		{
			name:      "missing token",
			mutate:    func(c *Config) { c.GitHubToken = "" },
			wantField: "GITHUB_TOKEN",
		},
		{
			name:      "limit below the unbounded sentinel",
			mutate:    func(c *Config) { c.FetchLimit = -2 },
			wantField: "FETCH_LIMIT",
		},
		{
			name:      "negative retries",
			mutate:    func(c *Config) { c.RetryMaxAttempts = -1 },
			wantField: "RETRY_MAX_ATTEMPTS",
		},
		{
			name:      "unknown storage type",
			mutate:    func(c *Config) { c.StorageType = "dynamo" },
			wantField: "STORAGE_TYPE",
		},
		{
			name: "postgres without url",
			mutate: func(c *Config) {
				c.StorageType = "postgres"
				c.PostgresURL = ""
			},
			wantField: "POSTGRES_URL",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.wantField, cfgErr.Field)
		})
	}
}
