/**
 * @description
 * Field-level encryption for sensitive linkage data (vendor account ids, vendor secrets)
 * and for balance snapshot blobs.
 *
 * @dependencies
 * - golang.org/x/crypto/chacha20poly1305: XChaCha20-Poly1305 AEAD.
 * - golang.org/x/crypto/hkdf: per-domain key derivation from a master key.
 *
 * @notes
 * - Each domain (one per provider plus "balances") derives its own 32 byte key, so a
 *   ciphertext produced for one provider never opens under another provider's key.
 * - Ciphertext layout is base64(nonce || sealed).
 */
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/kash/onboarding-service/internal/errs"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyLen = chacha20poly1305.KeySize

// Cipher encrypts and decrypts strings for a single domain.
type Cipher struct {
	domain string
	key    []byte
}

// NewCipher derives the domain key from masterKey with HKDF-SHA256.
func NewCipher(masterKey, domain string) (*Cipher, error) {
	if masterKey == "" {
		return nil, errors.New("master key is empty")
	}
	if domain == "" {
		return nil, errors.New("domain is empty")
	}
	r := hkdf.New(sha256.New, []byte(masterKey), nil, []byte(domain))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", domain, err)
	}
	return &Cipher{domain: domain, key: key}, nil
}

// Domain returns the label the key was derived for.
func (c *Cipher) Domain() string { return c.domain }

// EncryptBytes seals plaintext with a random nonce.
func (c *Cipher) EncryptBytes(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, []byte(c.domain))...)
	return out, nil
}

// DecryptBytes opens a blob produced by EncryptBytes.
func (c *Cipher) DecryptBytes(blob []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: blob too short", errs.ErrDecrypt)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	plain, err := aead.Open(nil, nonce, blob[chacha20poly1305.NonceSizeX:], []byte(c.domain))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrDecrypt, c.domain)
	}
	return plain, nil
}

// Encrypt returns the base64 ciphertext of s. The empty string stays empty.
func (c *Cipher) Encrypt(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	blob, err := c.EncryptBytes([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt. It returns errs.ErrDecrypt for malformed or foreign ciphertext.
func (c *Cipher) Decrypt(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	blob, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", errs.ErrDecrypt)
	}
	plain, err := c.DecryptBytes(blob)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
