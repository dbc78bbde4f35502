package local

import (
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, previous ...string) (*Codec, string) {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := NewCodec(key, previous...)
	require.NoError(t, err)
	return c, key
}

func TestGenerateKey_IsValidFernetKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	_, err = fernet.DecodeKey(key)
	assert.NoError(t, err)

	other, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestNewCodec_Errors(t *testing.T) {
	_, err := NewCodec("")
	assert.ErrorIs(t, err, ErrNoKey)

	_, err = NewCodec("not-a-key")
	assert.Error(t, err)

	key, err := GenerateKey()
	require.NoError(t, err)
	_, err = NewCodec(key, "also-not-a-key")
	assert.ErrorContains(t, err, "previous key 0")
}

func TestCodec_ValueRoundTrip(t *testing.T) {
	c, _ := newTestCodec(t)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"string", "sk-test", "sk-test"},
		{"bool", true, true},
		{"number", 42, json.Number("42")},
		{"float", 1.5, json.Number("1.5")},
		{"large integer", json.Number("9007199254740993"), json.Number("9007199254740993")},
		{"null", nil, nil},
		{"object", map[string]any{"a": "b"}, map[string]any{"a": "b"}},
		{"array", []any{"x", float64(1)}, []any{"x", json.Number("1")}},
		{"numeric string", "123", "123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := c.EncryptValue(tt.in)
			require.NoError(t, err)
			assert.NotEqual(t, tt.in, tok)
			assert.Equal(t, tt.want, c.DecryptValue(tok))
		})
	}
}

func TestCodec_EncryptsScalarsUniformly(t *testing.T) {
	c, _ := newTestCodec(t)

	blob, err := c.EncodePayload(map[string]any{"enabled": true, "count": 3})
	require.NoError(t, err)

	assert.NotContains(t, string(blob), "true")
	assert.NotContains(t, string(blob), ":3")
}

func TestCodec_TolerantDecrypt(t *testing.T) {
	c, _ := newTestCodec(t)

	// Not a token at all.
	assert.Equal(t, "plain-text", c.DecryptValue("plain-text"))
	// Non-string values pass through.
	assert.Equal(t, float64(7), c.DecryptValue(float64(7)))
	assert.Equal(t, false, c.DecryptValue(false))

	// A token holding raw, non-JSON text.
	k, err := fernet.DecodeKey(mustKey(t, c))
	require.NoError(t, err)
	tok, err := fernet.EncryptAndSign([]byte("raw text"), k)
	require.NoError(t, err)
	assert.Equal(t, "raw text", c.DecryptValue(string(tok)))
}

func TestCodec_ForeignKeyReturnsRaw(t *testing.T) {
	c1, _ := newTestCodec(t)
	c2, _ := newTestCodec(t)

	tok, err := c1.EncryptValue("secret")
	require.NoError(t, err)

	assert.Equal(t, tok, c2.DecryptValue(tok))
}

func TestCodec_PreviousKeysDecrypt(t *testing.T) {
	old, oldKey := newTestCodec(t)
	tok, err := old.EncryptValue("rotated")
	require.NoError(t, err)

	current, _ := newTestCodec(t, oldKey)
	assert.Equal(t, "rotated", current.DecryptValue(tok))

	// New tokens use the primary key only.
	fresh, err := current.EncryptValue("fresh")
	require.NoError(t, err)
	assert.Equal(t, fresh, old.DecryptValue(fresh))
}

func TestCodec_DecodePayload(t *testing.T) {
	c, _ := newTestCodec(t)

	t.Run("object blob", func(t *testing.T) {
		blob, err := c.EncodePayload(map[string]any{"key": "sk-test", "enabled": true})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"key": "sk-test", "enabled": true}, c.DecodePayload(blob))
	})

	t.Run("legacy unencrypted fields", func(t *testing.T) {
		got := c.DecodePayload([]byte(`{"key":"plain","port":5432}`))
		assert.Equal(t, map[string]any{"key": "plain", "port": json.Number("5432")}, got)
	})

	t.Run("non json blob", func(t *testing.T) {
		assert.Equal(t, map[string]any{"value": "just bytes"}, c.DecodePayload([]byte("just bytes")))
	})

	t.Run("json scalar blob", func(t *testing.T) {
		assert.Equal(t, map[string]any{"value": json.Number("12")}, c.DecodePayload([]byte("12")))
	})

	t.Run("trailing data is not json", func(t *testing.T) {
		assert.Equal(t, map[string]any{"value": `{"a":1} x`}, c.DecodePayload([]byte(`{"a":1} x`)))
	})

	t.Run("whole blob token", func(t *testing.T) {
		tok, err := c.EncryptValue(map[string]any{"user": "admin"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"user": "admin"}, c.DecodePayload([]byte(tok)))
	})
}

func mustKey(t *testing.T, c *Codec) string {
	t.Helper()
	return c.primary.Encode()
}
