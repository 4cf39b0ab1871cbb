package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"safekeep/internal/sk"
)

// testHeader is prepended to data by TestCipher to make encrypted output
// clearly different from plaintext while remaining deterministic and reversible.
var testHeader = []byte("SKENC\x00\x00\x00")

// TestCipher is a simple, deterministic cipher for testing.
// It prepends a fixed 8-byte header during encryption and strips it during
// decryption. Output differs from plaintext (so checksums differ) while
// being trivially reversible and requiring no crypto.
type TestCipher struct{}

var _ sk.Cipher = (*TestCipher)(nil)

// NewTestCipher creates a new TestCipher.
func NewTestCipher() *TestCipher {
	return &TestCipher{}
}

func (c *TestCipher) Encrypt(plaintext []byte) ([]byte, error) {
	return append(bytes.Clone(testHeader), plaintext...), nil
}

func (c *TestCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	rest, ok := bytes.CutPrefix(ciphertext, testHeader)
	if !ok {
		return nil, &sk.CryptoError{Op: "decrypt", Err: errors.New("invalid test encryption header")}
	}
	return bytes.Clone(rest), nil
}

func (c *TestCipher) EncryptStream(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (c *TestCipher) DecryptStream(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return &sk.CryptoError{Op: "decrypt", Err: fmt.Errorf("reading test header: %w", err)}
	}
	if !bytes.Equal(header, testHeader) {
		return &sk.CryptoError{Op: "decrypt", Err: errors.New("invalid test encryption header")}
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
