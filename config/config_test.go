package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/esignkit/signcore/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signcore.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfig(t *testing.T) {
	const configContent = `
[ca]
organization = "Acme"
database = "/var/lib/signcore/ca.db"
passphrase_env = "SIGNCORE_TEST_PASSPHRASE"
strict = false

[signer]
placeholder_size = 8192
location = "Hanoi"

[render]
timezone = "Asia/Ho_Chi_Minh"
locale = "vi"
signature_id_mode = "uuid"
require_signing_reason = true

[log]
env = "development"
level = "debug"
`

	c, err := config.Load(writeConfig(t, configContent))
	require.NoError(t, err)

	assert.Equal(t, "Acme", c.CA.Organization)
	assert.Equal(t, "/var/lib/signcore/ca.db", c.CA.Database)
	assert.False(t, c.CA.Strict)
	assert.Equal(t, 2048, c.CA.KeySize, "defaults survive partial files")

	assert.Equal(t, 8192, c.Signer.PlaceholderSize)
	assert.Equal(t, "Hanoi", c.Signer.Location)

	assert.Equal(t, "Asia/Ho_Chi_Minh", c.Render.Timezone)
	assert.Equal(t, "vi", c.Render.Locale)
	assert.Equal(t, "uuid", c.Render.SignatureIDMode)
	assert.True(t, c.Render.RequireSigningReason)
	assert.True(t, c.Render.AddSignatureID)

	assert.Equal(t, "development", c.Log.Env)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestDefault(t *testing.T) {
	c := config.Default()
	assert.NoError(t, c.ValidateFields())
	assert.True(t, c.CA.Strict)
	assert.Equal(t, 16384, c.Signer.PlaceholderSize)
	assert.Equal(t, "hash", c.Render.SignatureIDMode)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty organization", "[ca]\norganization = \"\""},
		{"empty database", "[ca]\ndatabase = \"\""},
		{"small key", "[ca]\nkey_size = 1024"},
		{"small placeholder", "[signer]\nplaceholder_size = 100"},
		{"unknown id mode", "[render]\nsignature_id_mode = \"sha1\""},
		{"unknown log env", "[log]\nenv = \"staging\""},
		{"unknown log level", "[log]\nlevel = \"trace\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.Default()
			_, err := toml.Decode(tt.content, c)
			require.NoError(t, err)
			assert.Error(t, c.ValidateFields())
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "config file is missing")

	_, err = config.Load(writeConfig(t, "[ca\norganization ="))
	assert.ErrorContains(t, err, "failed to decode config")

	_, err = config.Load(writeConfig(t, "[log]\nlevel = \"loud\""))
	assert.ErrorContains(t, err, "config is not valid")
}

func TestResolvePassphrase(t *testing.T) {
	c := config.CA{Passphrase: "from-file", PassphraseEnv: "SIGNCORE_TEST_PASSPHRASE"}
	assert.Equal(t, "from-file", c.ResolvePassphrase())

	t.Setenv("SIGNCORE_TEST_PASSPHRASE", "from-env")
	assert.Equal(t, "from-env", c.ResolvePassphrase())

	c.PassphraseEnv = ""
	assert.Equal(t, "from-file", c.ResolvePassphrase())
}
