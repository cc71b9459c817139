// AngelaMos | 2026
// config_test.go

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithMemoryStorage(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.True(t, cfg.License.GatingEnabled)
	assert.False(t, cfg.License.GraceOnCancel)
	assert.Equal(t, 168*time.Hour, cfg.License.HWIDResetCooldown)
	assert.Equal(t, []string{"lifetime"}, cfg.License.OneTimePackages)
	assert.Contains(t, cfg.License.Packages, "monthly")
	assert.Equal(t, 5*time.Minute, cfg.Stripe.WebhookTolerance)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte(`
storage:
  driver: memory
server:
  port: 9000
license:
  grace_on_cancel: true
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("HWID_RESET_COOLDOWN", "24h")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.True(t, cfg.License.GraceOnCancel)
	assert.Equal(t, "whsec_test", cfg.Stripe.WebhookSecret)
	assert.Equal(t, 24*time.Hour, cfg.License.HWIDResetCooldown)
}

func TestLoad_PostgresRequiresDatabaseURL(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			App:     AppConfig{Environment: "development"},
			Server:  ServerConfig{ReadTimeout: time.Second, WriteTimeout: time.Second},
			Storage: StorageConfig{Driver: StorageMemory},
			JWT:     JWTConfig{PrivateKeyPath: "a", PublicKeyPath: "b"},
			License: LicenseConfig{
				Packages:        []string{"monthly", "lifetime"},
				OneTimePackages: []string{"lifetime"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Storage.Driver = "mongo" },
			wantErr: "unknown storage driver",
		},
		{
			name:    "one-time package outside plan set",
			mutate:  func(c *Config) { c.License.OneTimePackages = []string{"forever"} },
			wantErr: "not a known package",
		},
		{
			name: "memory in production",
			mutate: func(c *Config) {
				c.App.Environment = "production"
				c.Stripe.WebhookSecret = "whsec"
			},
			wantErr: "memory storage",
		},
		{
			name: "wildcard origin with credentials",
			mutate: func(c *Config) {
				c.CORS.AllowCredentials = true
				c.CORS.AllowedOrigins = []string{"*"}
			},
			wantErr: "CORS wildcard",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)

			err := validate(c)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
