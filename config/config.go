// Package config loads the signcore TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/asaskevich/govalidator"
	"github.com/esignkit/signcore/ca"
	"github.com/esignkit/signcore/render"
	"github.com/esignkit/signcore/sign"
)

// DefaultLocation is where the CLI looks for a config file.
const DefaultLocation = "./signcore.toml"

// Config is the root of the config
type Config struct {
	CA     CA              `toml:"ca"`
	Signer Signer          `toml:"signer"`
	Render render.Settings `toml:"render"`
	Log    Log             `toml:"log"`
}

// CA configures the certificate authority and its store.
type CA struct {
	Organization string `toml:"organization" valid:"required"`
	Database     string `toml:"database" valid:"required"`

	// Passphrase seals the CA private keys. PassphraseEnv names an
	// environment variable that overrides it.
	Passphrase    string `toml:"passphrase"`
	PassphraseEnv string `toml:"passphrase_env"`

	// Strict refuses to start without a working CA.
	Strict  bool `toml:"strict"`
	KeySize int  `toml:"key_size"`
}

// Signer configures signature placement and metadata.
type Signer struct {
	PlaceholderSize int    `toml:"placeholder_size"`
	Location        string `toml:"location"`
	ContactInfo     string `toml:"contact_info"`
}

// Log configures the zap logger.
type Log struct {
	Env   string `toml:"env" valid:"in(production|development)"`
	Level string `toml:"level" valid:"in(debug|info|warn|error)"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		CA: CA{
			Organization: ca.DefaultOrganization,
			Database:     "signcore.db",
			Strict:       true,
			KeySize:      2048,
		},
		Signer: Signer{
			PlaceholderSize: sign.DefaultPlaceholderSize,
		},
		Render: render.Settings{
			AddSignatureID:           true,
			AllowTypedTextSignatures: true,
			Timezone:                 "UTC",
			Locale:                   "en",
			SignatureIDMode:          render.IDModeHash,
		},
		Log: Log{
			Env:   "production",
			Level: "info",
		},
	}
}

// Load reads the file at path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file is missing: %w", err)
	}

	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.ValidateFields(); err != nil {
		return nil, fmt.Errorf("config is not valid: %w", err)
	}
	return c, nil
}

// ValidateFields validates all the fields of the config
func (c Config) ValidateFields() error {
	if _, err := govalidator.ValidateStruct(c); err != nil {
		return err
	}

	if c.CA.KeySize < 2048 {
		return errors.New("ca.key_size: must be at least 2048")
	}
	if c.Signer.PlaceholderSize < 1024 {
		return errors.New("signer.placeholder_size: must be at least 1024")
	}
	if !govalidator.IsIn(c.Render.SignatureIDMode, render.IDModeHash, render.IDModeUUID) {
		return fmt.Errorf("render.signature_id_mode: %q is not %s or %s",
			c.Render.SignatureIDMode, render.IDModeHash, render.IDModeUUID)
	}
	return nil
}

// ResolvePassphrase returns the CA passphrase, preferring the environment
// variable named by PassphraseEnv when it is set.
func (c CA) ResolvePassphrase() string {
	if c.PassphraseEnv != "" {
		if v, ok := os.LookupEnv(c.PassphraseEnv); ok {
			return v
		}
	}
	return c.Passphrase
}
