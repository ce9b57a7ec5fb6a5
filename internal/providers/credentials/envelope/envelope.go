// Package envelope encrypts the credential blob at rest. Two strategies: an
// OS-provided secret-protection facility when the platform exposes one, and
// a local XChaCha20-Poly1305 cipher keyed from a file. The strategy is
// picked once at construction by a capability probe.
package envelope

import (
	"errors"

	"github.com/velabrowser/vela/backend/internal/logging"
	"go.uber.org/zap"
)

var (
	// ErrDecryption signals an unreadable, tampered or foreign blob. The
	// store treats it as "start empty", never as fatal.
	ErrDecryption = errors.New("envelope: decryption failed")
	// ErrKeyUnavailable signals the key material could not be read or
	// created. Fatal to the single operation only.
	ErrKeyUnavailable = errors.New("envelope: key unavailable")
)

// Envelope is the encryption strategy contract.
type Envelope interface {
	Encrypt(plaintext string) ([]byte, error)
	Decrypt(blob []byte) (string, error)
}

// Keystore abstracts the OS-native secret-protection facility. The embedder
// supplies a platform adapter; Available is probed once and cached.
type Keystore interface {
	Available() bool
	Protect(plaintext []byte) ([]byte, error)
	Unprotect(blob []byte) ([]byte, error)
}

// chain prefers the OS keystore and falls back to the local cipher. Decrypt
// tries both so a machine that loses its keystore mid-lifetime can still
// read cipher-written blobs, but there is no automatic re-encryption across
// strategies.
type chain struct {
	primary  Envelope
	fallback Envelope
	log      *logging.Logger
}

// New builds the envelope for a profile. keystore may be nil on platforms
// without a secret facility; the file-keyed cipher is always available.
func New(keystore Keystore, keyPath string, log *logging.Logger) Envelope {
	fallback := newFileCipher(keyPath, log)

	if keystore != nil && keystore.Available() {
		log.Info("using OS secret protection for credential blob")
		return &chain{
			primary:  &osEnvelope{store: keystore},
			fallback: fallback,
			log:      log,
		}
	}

	log.Info("OS secret protection unavailable, using local cipher",
		zap.String("key_file", keyPath))
	return fallback
}

func (c *chain) Encrypt(plaintext string) ([]byte, error) {
	return c.primary.Encrypt(plaintext)
}

func (c *chain) Decrypt(blob []byte) (string, error) {
	plain, err := c.primary.Decrypt(blob)
	if err == nil {
		return plain, nil
	}

	// Blob may predate keystore availability.
	plain, ferr := c.fallback.Decrypt(blob)
	if ferr == nil {
		c.log.Warn("blob decrypted via fallback cipher, not OS keystore")
		return plain, nil
	}
	return "", err
}

// osEnvelope adapts a Keystore to the Envelope contract.
type osEnvelope struct {
	store Keystore
}

func (o *osEnvelope) Encrypt(plaintext string) ([]byte, error) {
	return o.store.Protect([]byte(plaintext))
}

func (o *osEnvelope) Decrypt(blob []byte) (string, error) {
	plain, err := o.store.Unprotect(blob)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plain), nil
}
