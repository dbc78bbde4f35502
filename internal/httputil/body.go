// Package httputil provides helpers for working with HTTP payloads safely.
package httputil

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

const (
	// DefaultMaxBodyBytes caps request bodies to 1MiB.
	DefaultMaxBodyBytes int64 = 1 << 20
)

var (
	// ErrBodyTooLarge is returned when a body exceeds the configured limit.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrInvalidJSON wraps JSON decoding failures.
	ErrInvalidJSON = errors.New("invalid JSON body")
)

// ReadLimitedBody reads up to maxBytes from reader and returns ErrBodyTooLarge when exceeded.
func ReadLimitedBody(reader io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(reader)
	}

	limited := io.LimitReader(reader, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return body, err
	}
	if int64(len(body)) > maxBytes {
		body = body[:int(maxBytes)]
		return body, ErrBodyTooLarge
	}
	return body, nil
}

// DecodeJSON reads at most maxBytes from reader and unmarshals them into v.
// Numbers decode as json.Number so large integers survive the round trip.
func DecodeJSON(reader io.Reader, maxBytes int64, v any) error {
	body, err := ReadLimitedBody(reader, maxBytes)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidJSON)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}
