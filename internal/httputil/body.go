// Package httputil provides helpers for reading HTTP payloads safely.
package httputil

import (
	"errors"
	"io"
)

// DefaultMaxRequestBodyBytes caps request bodies accepted by the API at 4MB.
const DefaultMaxRequestBodyBytes int64 = 4 * 1024 * 1024

var ErrBodyTooLarge = errors.New("request body too large")

// ReadLimitedBody reads up to maxBytes from reader and returns
// ErrBodyTooLarge when more is available. A non-positive maxBytes reads
// everything.
func ReadLimitedBody(reader io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(reader)
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return body, err
	}
	if int64(len(body)) > maxBytes {
		return body[:maxBytes], ErrBodyTooLarge
	}
	return body, nil
}
