package blocksum

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// DigestSize is the length in bytes of a block digest.
const DigestSize = sha256.Size

// Digest is the SHA-256 fingerprint of one block.
type Digest [DigestSize]byte

// Sum computes the digest of exactly the given bytes.
func Sum(payload []byte) Digest { return Digest(sha256.Sum256(payload)) }

// String returns the lower-case hex encoding of the digest.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// ParseDigest parses a hex encoded digest. It is the inverse of Digest.String.
func ParseDigest(s string) (Digest, error) {
	return decodeDigest(s, hex.DecodeString)
}

func decodeDigest(s string, decode func(string) ([]byte, error)) (Digest, error) {
	var d Digest
	raw, err := decode(s)
	if err != nil {
		return d, fmt.Errorf("parsing digest: %w", err)
	}
	if len(raw) != DigestSize {
		return d, fmt.Errorf("digest is %d bytes, want %d", len(raw), DigestSize)
	}
	copy(d[:], raw)
	return d, nil
}

// Encoding selects the textual representation of digests in output lines.
type Encoding int

const (
	// Hex renders digests as lower-case hexadecimal (default).
	Hex Encoding = iota
	// Base64 renders digests with standard padded base64.
	Base64
)

// ParseEncoding maps "hex" and "base64" to an Encoding.
func ParseEncoding(name string) (Encoding, error) {
	switch name {
	case "", "hex":
		return Hex, nil
	case "base64":
		return Base64, nil
	default:
		return Hex, fmt.Errorf("unknown digest encoding %q (want hex or base64)", name)
	}
}

func (e Encoding) String() string {
	if e == Base64 {
		return "base64"
	}
	return "hex"
}

// Encode renders d in this encoding.
func (e Encoding) Encode(d Digest) string {
	if e == Base64 {
		return base64.StdEncoding.EncodeToString(d[:])
	}
	return hex.EncodeToString(d[:])
}

// Decode parses text produced by Encode.
func (e Encoding) Decode(s string) (Digest, error) {
	if e == Base64 {
		return decodeDigest(s, base64.StdEncoding.DecodeString)
	}
	return decodeDigest(s, hex.DecodeString)
}
