package local

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fernet/fernet-go"
	"github.com/goccy/go-json"
)

// ErrNoKey is returned by NewCodec when no primary key is given.
var ErrNoKey = errors.New("local: encryption key is empty")

// Codec encrypts payload values with Fernet. The primary key encrypts;
// the primary key and any previous keys are tried in order to decrypt.
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	primary *fernet.Key
	keys    []*fernet.Key
}

// GenerateKey returns a new random key in url-safe base64 form.
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", fmt.Errorf("generate fernet key: %w", err)
	}
	return k.Encode(), nil
}

// NewCodec builds a codec from a url-safe base64 encoded 32-byte key and
// optional previous keys that remain valid for decryption.
func NewCodec(key string, previous ...string) (*Codec, error) {
	if key == "" {
		return nil, ErrNoKey
	}
	primary, err := fernet.DecodeKey(key)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}

	keys := []*fernet.Key{primary}
	for i, p := range previous {
		if p == "" {
			continue
		}
		k, err := fernet.DecodeKey(p)
		if err != nil {
			return nil, fmt.Errorf("decode previous key %d: %w", i, err)
		}
		keys = append(keys, k)
	}
	return &Codec{primary: primary, keys: keys}, nil
}

// EncryptValue JSON-encodes v and returns the Fernet token of the JSON bytes.
// Every value type is encrypted the same way.
func (c *Codec) EncryptValue(v any) (string, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	tok, err := fernet.EncryptAndSign(plain, c.primary)
	if err != nil {
		return "", fmt.Errorf("encrypt value: %w", err)
	}
	return string(tok), nil
}

// DecryptValue reverses EncryptValue. It never fails:
//   - a token that decrypts to JSON yields the decoded value;
//   - a token that decrypts to anything else yields the plaintext string;
//   - anything that does not decrypt is returned unchanged.
func (c *Codec) DecryptValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	plain, ok := c.decrypt(s)
	if !ok {
		return v
	}
	if decoded, err := decodeJSON(plain); err == nil {
		return decoded
	}
	return string(plain)
}

func (c *Codec) decrypt(s string) ([]byte, bool) {
	// A negative ttl disables the token age check.
	plain := fernet.VerifyAndDecrypt([]byte(s), -1, c.keys)
	if plain == nil {
		return nil, false
	}
	return plain, true
}

// EncodePayload encrypts every field of payload and returns the blob that is
// persisted: a JSON object mapping field name to token.
func (c *Codec) EncodePayload(payload map[string]any) ([]byte, error) {
	fields := make(map[string]string, len(payload))
	for k, v := range payload {
		tok, err := c.EncryptValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		fields[k] = tok
	}
	return json.Marshal(fields)
}

// DecodePayload decodes a persisted blob field by field. A blob that is not
// a JSON object is returned as {"value": <decoded blob>}; a blob that is a
// single token wrapping a JSON object yields that object.
func (c *Codec) DecodePayload(raw []byte) map[string]any {
	whole, err := decodeJSON(raw)
	if err != nil {
		whole = string(raw)
	}
	if fields, ok := whole.(map[string]any); ok {
		out := make(map[string]any, len(fields))
		for k, v := range fields {
			out[k] = c.DecryptValue(v)
		}
		return out
	}

	decoded := c.DecryptValue(whole)
	if obj, ok := decoded.(map[string]any); ok {
		return obj
	}
	return map[string]any{"value": decoded}
}

// decodeJSON decodes exactly one JSON value, keeping numbers as json.Number
// so integers beyond 2^53 survive.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}
