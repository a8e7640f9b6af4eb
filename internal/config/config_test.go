package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "0x1000000000000000000000000000000000000001"

func validLiteConfig() Config {
	cfg := Defaults()
	cfg.Mode = "lite"
	cfg.Registry.Owner = testOwner
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "marketd", cfg.Database.Database)
	assert.Equal(t, "marketd-archive", cfg.S3.Bucket)
	assert.Equal(t, "10", cfg.Registry.CreationFee)
	assert.Equal(t, "5", cfg.Registry.InitialLiquidity)
}

func TestValidate_LiteModeSkipsExternalServices(t *testing.T) {
	cfg := validLiteConfig()
	cfg.Database = DatabaseConfig{}
	cfg.Redis = RedisConfig{}
	cfg.S3 = S3Config{}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ServeModeRequiresExternalServices(t *testing.T) {
	cfg := Defaults()
	cfg.Registry.Owner = testOwner
	cfg.Redis.Addr = ""
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := validLiteConfig()
	cfg.Mode = "cluster"
	cfg.LogLevel = "verbose"
	cfg.Server.Port = 0
	cfg.Registry.Owner = "not-an-address"
	cfg.Registry.CreationFee = "ten"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "port must be")
	assert.Contains(t, err.Error(), "not a valid hex address")
	assert.Contains(t, err.Error(), "creation_fee")
}

func TestValidate_RequiresOwner(t *testing.T) {
	cfg := validLiteConfig()
	cfg.Registry.Owner = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner must not be empty")
}

func TestValidate_DSNReplacesDiscreteFields(t *testing.T) {
	cfg := Defaults()
	cfg.Registry.Owner = testOwner
	cfg.Database = DatabaseConfig{
		DSN:          "postgres://u:p@db:5432/marketd",
		PoolMaxConns: 5,
	}
	assert.NoError(t, cfg.Validate())
}

func TestLoad_TOMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "lite"
log_level = "debug"

[server]
port = 9001

[registry]
owner = "` + testOwner + `"
creation_fee = "25"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lite", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "25", cfg.Registry.CreationFee)
	// Untouched fields keep their defaults.
	assert.Equal(t, "5", cfg.Registry.InitialLiquidity)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MARKETD_MODE", "lite")
	t.Setenv("MARKETD_SERVER_PORT", "9100")
	t.Setenv("MARKETD_REGISTRY_OWNER", testOwner)
	t.Setenv("MARKETD_REDIS_TLS_ENABLED", "true")
	t.Setenv("MARKETD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MARKETD_AUTH_ADMIN_TOKEN", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "lite", cfg.Mode)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, testOwner, cfg.Registry.Owner)
	assert.True(t, cfg.Redis.TLSEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "s3cret", cfg.Auth.AdminToken)
}

func TestRedactedConfig_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Database.DSN = "postgres://u:hunter2@db/x"
	cfg.Database.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "hunter2"
	cfg.Auth.AdminToken = "hunter2"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Database.DSN)
	assert.Equal(t, "***", red.Database.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.AccessKey)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Auth.AdminToken)

	// Non-secret fields survive, and the original is untouched.
	assert.Equal(t, cfg.Server.Port, red.Server.Port)
	assert.Equal(t, "hunter2", cfg.Database.Password)
}
