package observability

import (
	"regexp"
	"strings"
)

// Redactor handles sensitive data masking in logs.
type Redactor struct {
	patterns      []*redactPattern
	sensitiveKeys map[string]bool
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
	name        string
}

// NewRedactor creates a new redactor with default patterns.
func NewRedactor() *Redactor {
	r := &Redactor{
		sensitiveKeys: map[string]bool{
			"token":          true,
			"vault_token":    true,
			"password":       true,
			"encryption_key": true,
			"api_key":        true,
			"apikey":         true,
			"authorization":  true,
			"credential":     true,
			"payload":        true,
		},
	}
	r.addDefaultPatterns()
	return r
}

func (r *Redactor) addDefaultPatterns() {
	// Vault tokens: service, batch, recovery and legacy formats
	r.AddPattern(`\bhv[sbr]\.[A-Za-z0-9_\-]{20,}`, "[REDACTED_VAULT_TOKEN]", "vault_token")
	r.AddPattern(`\bs\.[A-Za-z0-9]{24}\b`, "[REDACTED_VAULT_TOKEN]", "vault_token_legacy")

	// Fernet tokens (version byte 0x80 encodes to "gAAAAA")
	r.AddPattern(`gAAAAA[A-Za-z0-9_\-]{20,}={0,2}`, "[REDACTED_CIPHERTEXT]", "fernet_token")

	// API keys commonly stored as secrets
	r.AddPattern(`sk-ant-[a-zA-Z0-9\-_]{20,}`, "[REDACTED_ANTHROPIC_KEY]", "anthropic_key")
	r.AddPattern(`sk-proj-[a-zA-Z0-9\-_]{20,}`, "[REDACTED_OPENAI_PROJECT_KEY]", "openai_project_key")
	r.AddPattern(`sk-[a-zA-Z0-9]{20,}`, "[REDACTED_OPENAI_KEY]", "openai_key")
	r.AddPattern(`AIza[a-zA-Z0-9\-_]{35}`, "[REDACTED_GOOGLE_KEY]", "google_key")

	// Bearer tokens
	r.AddPattern(`Bearer\s+[a-zA-Z0-9\-_\.]+`, "Bearer [REDACTED]", "bearer_token")

	// Authorization and vault token headers
	r.AddPattern(`Authorization:\s*[^\s]+`, "Authorization: [REDACTED]", "auth_header")
	r.AddPattern(`X-Vault-Token:\s*[^\s]+`, "X-Vault-Token: [REDACTED]", "vault_header")

	// Email addresses
	r.AddPattern(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "[REDACTED_EMAIL]", "email")
}

// AddPattern adds a custom redaction pattern.
func (r *Redactor) AddPattern(pattern, replacement, name string) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return // Skip invalid patterns
	}
	r.patterns = append(r.patterns, &redactPattern{
		regex:       regex,
		replacement: replacement,
		name:        name,
	})
}

// Redact applies all redaction patterns to the input string.
func (r *Redactor) Redact(input string) string {
	if r == nil {
		return input
	}
	result := input
	for _, p := range r.patterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}

// IsSensitiveKey reports whether values logged under key are always masked.
func (r *Redactor) IsSensitiveKey(key string) bool {
	if r == nil {
		return false
	}
	return r.sensitiveKeys[strings.ToLower(key)]
}

// RedactMap redacts sensitive values in a map.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = r.redactValue(k, v)
	}
	return result
}

func (r *Redactor) redactValue(key string, value any) any {
	if r.IsSensitiveKey(key) {
		return "[REDACTED]"
	}

	switch v := value.(type) {
	case string:
		return r.Redact(v)
	case map[string]any:
		return r.RedactMap(v)
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = r.redactValue("", item)
		}
		return result
	default:
		return value
	}
}

// RedactHeaders redacts sensitive HTTP headers.
func (r *Redactor) RedactHeaders(headers map[string][]string) map[string][]string {
	sensitiveHeaders := map[string]bool{
		"authorization":               true,
		"x-vault-token":               true,
		"x-api-key":                   true,
		"x-hishamos-bootstrap-token": true,
		"cookie":                      true,
		"set-cookie":                  true,
	}

	result := make(map[string][]string, len(headers))
	for k, v := range headers {
		if sensitiveHeaders[strings.ToLower(k)] {
			result[k] = []string{"[REDACTED]"}
		} else {
			result[k] = v
		}
	}
	return result
}
