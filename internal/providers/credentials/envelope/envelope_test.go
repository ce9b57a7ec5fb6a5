package envelope

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/velabrowser/vela/backend/internal/logging"
)

func newTestCipher(t *testing.T) *fileCipher {
	t.Helper()
	return newFileCipher(filepath.Join(t.TempDir(), "vault.key"), logging.NewNop())
}

func TestRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, plain := range []string{
		"x",
		`{"https://example.com":[{"username":"alice"}]}`,
		"unicode: пароль 密码 🔑",
	} {
		blob, err := c.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plain, err)
		}
		got, err := c.Decrypt(blob)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != plain {
			t.Errorf("round trip = %q, want %q", got, plain)
		}
	}
}

func TestFreshNoncePerCall(t *testing.T) {
	c := newTestCipher(t)

	a, _ := c.Encrypt("same input")
	b, _ := c.Encrypt("same input")
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext produced identical blobs")
	}
}

func TestTamperedBlobFails(t *testing.T) {
	c := newTestCipher(t)

	blob, err := c.Encrypt("secret payload")
	if err != nil {
		t.Fatal(err)
	}
	blob[len(blob)-1] ^= 0xFF

	if _, err := c.Decrypt(blob); !errors.Is(err, ErrDecryption) {
		t.Errorf("tampered blob: got %v, want ErrDecryption", err)
	}
}

func TestShortBlobFails(t *testing.T) {
	c := newTestCipher(t)
	// Key must exist for Decrypt to even reach layout checks.
	if _, err := c.Encrypt("seed"); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Decrypt([]byte{1, 2, 3}); !errors.Is(err, ErrDecryption) {
		t.Errorf("short blob: got %v, want ErrDecryption", err)
	}
}

func TestMissingKeyFileFails(t *testing.T) {
	dir := t.TempDir()
	writer := newFileCipher(filepath.Join(dir, "vault.key"), logging.NewNop())
	blob, err := writer.Encrypt("payload")
	if err != nil {
		t.Fatal(err)
	}

	// A cipher pointed at a different (absent) key file cannot decrypt.
	reader := newFileCipher(filepath.Join(dir, "other.key"), logging.NewNop())
	if _, err := reader.Decrypt(blob); !errors.Is(err, ErrDecryption) {
		t.Errorf("missing key: got %v, want ErrDecryption", err)
	}
}

func TestKeyPersistsAcrossInstances(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "vault.key")

	first := newFileCipher(keyPath, logging.NewNop())
	blob, err := first.Encrypt("durable")
	if err != nil {
		t.Fatal(err)
	}

	second := newFileCipher(keyPath, logging.NewNop())
	got, err := second.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt with reloaded key: %v", err)
	}
	if got != "durable" {
		t.Errorf("got %q", got)
	}
}

// fakeKeystore simulates an OS secret facility with reversible transform.
type fakeKeystore struct {
	available bool
}

func (f *fakeKeystore) Available() bool { return f.available }

func (f *fakeKeystore) Protect(plain []byte) ([]byte, error) {
	out := append([]byte("os:"), plain...)
	return out, nil
}

func (f *fakeKeystore) Unprotect(blob []byte) ([]byte, error) {
	if !bytes.HasPrefix(blob, []byte("os:")) {
		return nil, errors.New("foreign blob")
	}
	return blob[3:], nil
}

func TestChainPrefersKeystore(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "vault.key")
	env := New(&fakeKeystore{available: true}, keyPath, logging.NewNop())

	blob, err := env.Encrypt("hello")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(blob, []byte("os:")) {
		t.Error("expected keystore-protected blob")
	}
	got, err := env.Decrypt(blob)
	if err != nil || got != "hello" {
		t.Fatalf("Decrypt = %q, %v", got, err)
	}
}

func TestChainFallsBackOnForeignBlob(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "vault.key")

	// Blob written before the keystore became available.
	cipherOnly := New(nil, keyPath, logging.NewNop())
	blob, err := cipherOnly.Encrypt("pre-keystore data")
	if err != nil {
		t.Fatal(err)
	}

	chained := New(&fakeKeystore{available: true}, keyPath, logging.NewNop())
	got, err := chained.Decrypt(blob)
	if err != nil {
		t.Fatalf("chain should fall back to cipher: %v", err)
	}
	if got != "pre-keystore data" {
		t.Errorf("got %q", got)
	}
}

func TestUnavailableKeystoreUsesCipher(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "vault.key")
	env := New(&fakeKeystore{available: false}, keyPath, logging.NewNop())

	if _, ok := env.(*fileCipher); !ok {
		t.Errorf("expected fileCipher when keystore probe fails, got %T", env)
	}
}
