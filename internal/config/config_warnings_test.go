package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func warningCodes(cfg *Config) []string {
	var codes []string
	for _, w := range cfg.Warnings() {
		codes = append(codes, w.Code)
	}
	return codes
}

func TestWarnings_Defaults(t *testing.T) {
	codes := warningCodes(DefaultConfig())

	require.Contains(t, codes, WarningEphemeralKey)
	require.Contains(t, codes, WarningMemoryKV)
	require.Contains(t, codes, WarningAuthNoCredentials)
	require.NotContains(t, codes, WarningAuthDisabled)
}

func TestWarnings_VaultActiveSkipsLocalWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Secrets.Vault.Enabled = true
	cfg.Secrets.Vault.Address = "http://vault:8200"
	cfg.Auth.BootstrapToken = "t"

	require.Empty(t, cfg.Warnings())
}

func TestWarnings_VaultWithoutAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Secrets.Vault.Enabled = true

	require.Contains(t, warningCodes(cfg), WarningVaultNoAddress)
	require.Contains(t, warningCodes(cfg), WarningEphemeralKey)
}

func TestWarnings_AuthDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.Enabled = false

	codes := warningCodes(cfg)
	require.Contains(t, codes, WarningAuthDisabled)
	require.NotContains(t, codes, WarningAuthNoCredentials)
}

func TestWarnings_DurableLocalSetup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Secrets.Local.EncryptionKey = "env://HISHAMOS_ENCRYPTION_KEY"
	cfg.KV.Type = "redis"
	cfg.Auth.JWTSecret = "jwt"

	require.Empty(t, cfg.Warnings())
}
