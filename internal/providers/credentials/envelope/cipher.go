package envelope

import (
	"crypto/rand"
	"fmt"
	"os"
	"sync"

	"github.com/velabrowser/vela/backend/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
)

const keySize = chacha20poly1305.KeySize // 256-bit

// fileCipher is the always-available fallback: XChaCha20-Poly1305 keyed by
// a generate-once random key persisted with owner-only permissions.
//
// Blob layout: nonce || tag || ciphertext. No version byte; if the layout
// ever changes, old blobs become undecryptable.
type fileCipher struct {
	keyPath string
	log     *logging.Logger

	mu  sync.Mutex
	key []byte // lazily loaded/created
}

func newFileCipher(keyPath string, log *logging.Logger) *fileCipher {
	return &fileCipher{keyPath: keyPath, log: log}
}

func (f *fileCipher) Encrypt(plaintext string) ([]byte, error) {
	key, err := f.loadOrCreateKey()
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - aead.Overhead()

	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed[tagStart:]...)
	out = append(out, sealed[:tagStart]...)
	return out, nil
}

func (f *fileCipher) Decrypt(blob []byte) (string, error) {
	key, err := f.loadKey()
	if err != nil {
		return "", ErrDecryption
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", ErrDecryption
	}

	nonceSize := aead.NonceSize()
	tagSize := aead.Overhead()
	if len(blob) < nonceSize+tagSize {
		return "", ErrDecryption
	}

	nonce := blob[:nonceSize]
	tag := blob[nonceSize : nonceSize+tagSize]
	ciphertext := blob[nonceSize+tagSize:]

	// Re-assemble the Seal layout (ciphertext || tag) for Open.
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plain), nil
}

// loadOrCreateKey reads the key file, generating it on first use.
func (f *fileCipher) loadOrCreateKey() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.key != nil {
		return f.key, nil
	}

	key, err := os.ReadFile(f.keyPath)
	if err == nil {
		if len(key) != keySize {
			return nil, fmt.Errorf("%w: key file has %d bytes, want %d", ErrKeyUnavailable, len(key), keySize)
		}
		f.key = key
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	key = make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	if err := os.WriteFile(f.keyPath, key, 0o600); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	f.log.Info("generated new vault key", zap.String("path", f.keyPath))
	f.key = key
	return key, nil
}

// loadKey reads the key without creating one; decryption of an existing
// blob with no key file present can only fail.
func (f *fileCipher) loadKey() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.key != nil {
		return f.key, nil
	}

	key, err := os.ReadFile(f.keyPath)
	if err != nil || len(key) != keySize {
		return nil, ErrKeyUnavailable
	}
	f.key = key
	return key, nil
}
