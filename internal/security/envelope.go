package security

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// AlgorithmXChaCha20Poly1305 identifies the only sealing scheme in use.
const AlgorithmXChaCha20Poly1305 = "xchacha20-poly1305"

// Envelope is a sealed payload. KeyID is bound as associated data so an
// envelope cannot be opened under a different key.
type Envelope struct {
	Algorithm  string    `json:"algorithm"`
	KeyID      string    `json:"key_id"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	SealedAt   time.Time `json:"sealed_at"`
}

// Encryptor seals and opens payloads.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext []byte) (*Envelope, error)
	Decrypt(ctx context.Context, env *Envelope) ([]byte, error)
}

// parseKey decodes a resolved key into 32 bytes.
func parseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "base64:"):
		key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, "base64:"))
		if err != nil {
			return nil, fmt.Errorf("decode base64 key: %w", err)
		}
		return checkKeyLen(key)
	case len(raw) == 2*chacha20poly1305.KeySize:
		key, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode hex key: %w", err)
		}
		return key, nil
	default:
		return checkKeyLen([]byte(raw))
	}
}

func checkKeyLen(key []byte) ([]byte, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

func keyID(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}

// sealer holds one AEAD instance bound to a key.
type sealer struct {
	keyID string
	aead  cipher.AEAD
	now   func() time.Time
}

func newSealer(key []byte) (*sealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &sealer{keyID: keyID(key), aead: aead, now: time.Now}, nil
}

func (s *sealer) seal(plaintext []byte) (*Envelope, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return &Envelope{
		Algorithm:  AlgorithmXChaCha20Poly1305,
		KeyID:      s.keyID,
		Nonce:      nonce,
		Ciphertext: s.aead.Seal(nil, nonce, plaintext, []byte(s.keyID)),
		SealedAt:   s.now().UTC(),
	}, nil
}

func (s *sealer) open(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("nil envelope")
	}
	if env.Algorithm != AlgorithmXChaCha20Poly1305 {
		return nil, fmt.Errorf("unsupported envelope algorithm %q", env.Algorithm)
	}
	if env.KeyID != s.keyID {
		return nil, fmt.Errorf("envelope sealed with key %s, have %s", env.KeyID, s.keyID)
	}
	if len(env.Nonce) != s.aead.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length %d", len(env.Nonce))
	}
	plain, err := s.aead.Open(nil, env.Nonce, env.Ciphertext, []byte(env.KeyID))
	if err != nil {
		return nil, fmt.Errorf("open envelope: %w", err)
	}
	return plain, nil
}
