package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigReadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	c := &Config{}
	require.NoError(t, c.Read(path))

	assert.Equal(t, "zh_CN", c.Language)
	assert.Equal(t, "FedGate", c.SiteName)
	assert.Equal(t, "Asia/Shanghai", c.Location)
	assert.EqualValues(t, 8008, c.ListenPort)
	assert.Equal(t, 1, c.JWTTimeout)
	assert.Equal(t, 60, c.ConfigCacheTTL)
	assert.Equal(t, "0 */5 * * * *", c.StateSweepSpec)

	// 缺失的密钥自动生成并回写
	assert.NotEmpty(t, c.JWTSecretKey)
	assert.Len(t, c.SecretEncryptionKey, 64)
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestConfigReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
language: en
site_name: Gatekeeper
listen_port: 9090
jwt_secret_key: test-jwt-key
secret_encryption_key: 6368616e676520746869732070617373776f726420746f206120736563726574
login_log_retention_days: 30
`), 0600))

	c := &Config{}
	require.NoError(t, c.Read(path))

	assert.Equal(t, "en", c.Language)
	assert.Equal(t, "Gatekeeper", c.SiteName)
	assert.EqualValues(t, 9090, c.ListenPort)
	assert.Equal(t, "test-jwt-key", c.JWTSecretKey)
	assert.Equal(t, 30, c.LoginLogRetentionDays)
}

func TestConfigEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jwt_secret_key: test-jwt-key
secret_encryption_key: 6368616e676520746869732070617373776f726420746f206120736563726574
`), 0600))

	t.Setenv("FG_LANGUAGE", "en")
	t.Setenv("FG_DEBUG", "true")

	c := &Config{}
	require.NoError(t, c.Read(path))

	assert.Equal(t, "en", c.Language)
	assert.True(t, c.Debug)
}
