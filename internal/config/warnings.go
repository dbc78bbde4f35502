package config

// Warning codes reported by Config.Warnings.
const (
	WarningEphemeralKey      = "ephemeral_encryption_key"
	WarningMemoryKV          = "memory_kv_store"
	WarningVaultNoAddress    = "vault_without_address"
	WarningAuthDisabled      = "auth_disabled"
	WarningAuthNoCredentials = "auth_without_credentials"
)

// Warning is a configuration that is valid but probably unintended.
type Warning struct {
	Code    string
	Message string
}

// Warnings returns non-fatal configuration problems.
func (c *Config) Warnings() []Warning {
	var warnings []Warning

	vaultUsable := c.Secrets.Vault.Enabled && c.Secrets.Vault.Address != ""
	if c.Secrets.Vault.Enabled && c.Secrets.Vault.Address == "" {
		warnings = append(warnings, Warning{
			Code:    WarningVaultNoAddress,
			Message: "secrets.vault is enabled without an address; vault will be skipped",
		})
	}

	if !vaultUsable && c.Secrets.Local.Enabled {
		if c.Secrets.Local.EncryptionKey == "" {
			warnings = append(warnings, Warning{
				Code:    WarningEphemeralKey,
				Message: "secrets.local.encryption_key is empty; a new key is generated on every start and stored secrets become unreadable after restart",
			})
		}
		if c.KV.Type == "memory" {
			warnings = append(warnings, Warning{
				Code:    WarningMemoryKV,
				Message: "kv.type is memory; locally encrypted secrets are lost on restart",
			})
		}
	}

	if !c.Auth.Enabled {
		warnings = append(warnings, Warning{
			Code:    WarningAuthDisabled,
			Message: "auth is disabled; the secrets API is reachable without credentials",
		})
	} else if c.Auth.BootstrapToken == "" && c.Auth.JWTSecret == "" {
		warnings = append(warnings, Warning{
			Code:    WarningAuthNoCredentials,
			Message: "auth is enabled without bootstrap_token or jwt_secret; every API request will be rejected",
		})
	}

	return warnings
}
