// Package credential seals run-as passwords for transit between the orchestrator
// and its agents. Both sides hold the same Key; a token sealed with one key never
// opens under another.
package credential

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const tokenVersion byte = 1

// additional data bound into every token
var associatedData = []byte("mini-rpa/credential/v1")

var (
	ErrMalformedToken = errors.New("credential token is malformed")
	ErrOpenFailed     = errors.New("credential token failed authentication")
	ErrNilKey         = errors.New("credential key is not configured")
)

// Key is the process-wide shared secret. It is immutable once parsed and safe
// for concurrent use.
type Key struct {
	raw [chacha20poly1305.KeySize]byte
}

// ParseKey decodes a base64 (standard or URL alphabet) 32-byte key.
func ParseKey(encoded string) (*Key, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("shared key is empty")
	}
	var b []byte
	var err error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err = enc.DecodeString(encoded); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decode shared key: %w", err)
	}
	if len(b) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("shared key must be %d bytes, got %d", chacha20poly1305.KeySize, len(b))
	}
	k := &Key{}
	copy(k.raw[:], b)
	return k, nil
}

// GenerateKey returns a fresh random key.
func GenerateKey() (*Key, error) {
	k := &Key{}
	if _, err := rand.Read(k.raw[:]); err != nil {
		return nil, fmt.Errorf("read random key: %w", err)
	}
	return k, nil
}

// Encode renders the key in the form ParseKey accepts.
func (k *Key) Encode() string {
	return base64.URLEncoding.EncodeToString(k.raw[:])
}

// Seal encrypts plaintext and returns an opaque URL-safe token.
func (k *Key) Seal(plaintext []byte) (string, error) {
	if k == nil {
		return "", ErrNilKey
	}
	aead, err := chacha20poly1305.NewX(k.raw[:])
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	buf := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	buf[0] = tokenVersion
	if _, err := rand.Read(buf[1:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := aead.Seal(buf, buf[1:], plaintext, associatedData)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open authenticates and decrypts a token produced by Seal.
func (k *Key) Open(token string) (*Secret, error) {
	if k == nil {
		return nil, ErrNilKey
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	aead, err := chacha20poly1305.NewX(k.raw[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(raw) < 1+aead.NonceSize()+aead.Overhead() || raw[0] != tokenVersion {
		return nil, ErrMalformedToken
	}
	nonce := raw[1 : 1+aead.NonceSize()]
	plain, err := aead.Open(nil, nonce, raw[1+aead.NonceSize():], associatedData)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return &Secret{b: plain}, nil
}

// Secret holds a decrypted credential. Call Wipe as soon as it is no longer needed.
type Secret struct {
	b []byte
}

// NewSecret copies b into a Secret.
func NewSecret(b []byte) *Secret {
	return &Secret{b: append([]byte(nil), b...)}
}

// Bytes exposes the plaintext. The slice is zeroed by Wipe.
func (s *Secret) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.b
}

// Wipe zeroes the plaintext.
func (s *Secret) Wipe() {
	if s == nil {
		return
	}
	for i := range s.b {
		s.b[i] = 0
	}
	s.b = nil
}

// String never reveals the plaintext.
func (s *Secret) String() string { return "[REDACTED]" }

// GoString never reveals the plaintext.
func (s *Secret) GoString() string { return "[REDACTED]" }
