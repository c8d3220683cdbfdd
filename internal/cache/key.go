package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// KeyFromParams hashes the canonical JSON form of params: object keys sorted
// at every depth, compact separators. Requests built in different field or
// map orders map to the same key.
func KeyFromParams(params any) (string, error) {
	canonical, err := Canonicalize(params)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize returns the canonical JSON encoding of params.
func Canonicalize(params any) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache params: %w", err)
	}

	// Struct fields marshal in declaration order; decoding into interface
	// values and re-encoding sorts every object's keys.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("failed to canonicalize cache params: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("failed to canonicalize cache params: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
