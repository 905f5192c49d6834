package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// KeySize is the byte length of identities, hook ids, accounts and digests.
const KeySize = 32

// Key identifies a principal, hook program, token account or mint.
type Key [KeySize]byte

// Hash is an opaque digest attached to a proposal. The core never interprets it.
type Hash [KeySize]byte

// ParseKey decodes a hex-encoded key.
func ParseKey(s string) (Key, error) {
	var k Key
	err := decodeFixed(k[:], s)
	return k, err
}

// MustParseKey is ParseKey for constants and tests.
func MustParseKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// ParseHash decodes a hex-encoded digest.
func ParseHash(s string) (Hash, error) {
	var h Hash
	err := decodeFixed(h[:], s)
	return h, err
}

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// IsZero reports whether k is the all-zero key.
func (k Key) IsZero() bool { return k == Key{} }

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error { return decodeFixed(k[:], string(text)) }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error { return decodeFixed(h[:], string(text)) }

func decodeFixed(dst []byte, s string) error {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != hex.EncodedLen(len(dst)) {
		return fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidArgument, hex.EncodedLen(len(dst)), len(s))
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}
