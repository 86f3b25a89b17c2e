package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-sessionvault/core"
)

const envelopePrefix = "sessionvault.blob.v1:"

type envelope struct {
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Sealer performs versioned authenticated encryption of serialized canonical
// sessions against a Keyring.
type Sealer struct {
	keyring *Keyring
}

func NewSealer(keyring *Keyring) (*Sealer, error) {
	if keyring == nil {
		return nil, fmt.Errorf("security: keyring is required")
	}
	return &Sealer{keyring: keyring}, nil
}

// Encrypt seals the plaintext under the current active key with a fresh
// nonce. The key is read once as an atomic snapshot: a rotation landing
// mid-call cannot mix materials from two versions.
func (s *Sealer) Encrypt(_ context.Context, plaintext []byte) (core.EncryptedBlob, error) {
	if s == nil || s.keyring == nil {
		return core.EncryptedBlob{}, fmt.Errorf("security: sealer is not configured")
	}
	if len(plaintext) == 0 {
		return core.EncryptedBlob{}, fmt.Errorf("security: plaintext is required")
	}

	key := s.keyring.Active()
	if key.Version == 0 {
		return core.EncryptedBlob{}, fmt.Errorf("security: no active key")
	}

	gcm, err := newGCM(key.Material)
	if err != nil {
		return core.EncryptedBlob{}, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return core.EncryptedBlob{}, fmt.Errorf("security: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	data, err := json.Marshal(envelope{
		Version:    key.Version,
		Algorithm:  "aes-256-gcm",
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return core.EncryptedBlob{}, fmt.Errorf("security: encode envelope: %w", err)
	}

	return core.EncryptedBlob{
		Payload:    append([]byte(envelopePrefix), data...),
		KeyVersion: key.Version,
	}, nil
}

// Decrypt opens a sealed blob under the key version it names. stale reports
// that a retired grace-window key served the read; the caller should re-seal
// under the active key and replace the stored blob. Tampered ciphertext or
// tag fails, never yielding corrupted plaintext.
func (s *Sealer) Decrypt(_ context.Context, blob core.EncryptedBlob) ([]byte, bool, error) {
	if s == nil || s.keyring == nil {
		return nil, false, fmt.Errorf("security: sealer is not configured")
	}
	if len(blob.Payload) == 0 {
		return nil, false, fmt.Errorf("security: ciphertext is required")
	}

	payload := string(blob.Payload)
	payload = strings.TrimPrefix(payload, envelopePrefix)

	var parsed envelope
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, false, fmt.Errorf("security: decode envelope: %w", err)
	}
	if blob.KeyVersion != 0 && parsed.Version != blob.KeyVersion {
		return nil, false, fmt.Errorf(
			"security: envelope key version mismatch: got %d want %d", parsed.Version, blob.KeyVersion,
		)
	}

	key, stale, err := s.keyring.Lookup(parsed.Version)
	if err != nil {
		return nil, false, err
	}

	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return nil, false, fmt.Errorf("security: decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return nil, false, fmt.Errorf("security: decode ciphertext payload: %w", err)
	}

	gcm, err := newGCM(key.Material)
	if err != nil {
		return nil, false, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, false, fmt.Errorf("security: decrypt payload: invalid nonce length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, false, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, stale, nil
}

// ActiveVersion exposes the keyring's encrypting version.
func (s *Sealer) ActiveVersion() int {
	if s == nil {
		return 0
	}
	return s.keyring.ActiveVersion()
}

func newGCM(material []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(material)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

var _ core.SessionSealer = (*Sealer)(nil)
