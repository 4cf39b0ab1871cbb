package encryption

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"golang.org/x/crypto/chacha20poly1305"

	"safekeep/internal/sk"
)

// stanzaType identifies the header stanza that wraps the age file key
// under a symmetric key.
const stanzaType = "sk-key"

// KeyCipher implements sk.Cipher with the age format and a 32-byte
// symmetric key. The age file key is sealed with ChaCha20-Poly1305 in a
// single "sk-key" stanza; the payload uses age's STREAM construction, so
// every chunk is authenticated.
//
// KeyCipher is both the age.Recipient and the age.Identity for its key.
type KeyCipher struct {
	key   []byte
	keyID string
}

var (
	_ sk.Cipher     = (*KeyCipher)(nil)
	_ age.Recipient = (*KeyCipher)(nil)
	_ age.Identity  = (*KeyCipher)(nil)
)

// NewKeyCipher creates a cipher for a raw 32-byte key.
func NewKeyCipher(key []byte) (*KeyCipher, error) {
	if len(key) != KeySize {
		return nil, &sk.CryptoError{Op: "load key", Err: ErrMalformedKey}
	}
	id := sha256.Sum256(key)
	return &KeyCipher{
		key:   bytes.Clone(key),
		keyID: hex.EncodeToString(id[:4]),
	}, nil
}

// Encrypt returns the age ciphertext of plaintext.
func (c *KeyCipher) Encrypt(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.EncryptStream(bytes.NewReader(plaintext), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decrypt authenticates and decrypts ciphertext produced by Encrypt.
func (c *KeyCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.DecryptStream(bytes.NewReader(ciphertext), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncryptStream reads plaintext from r and writes age ciphertext to w.
func (c *KeyCipher) EncryptStream(r io.Reader, w io.Writer) error {
	encWriter, err := age.Encrypt(w, c)
	if err != nil {
		return &sk.CryptoError{Op: "encrypt", Err: err}
	}

	if _, err := io.Copy(encWriter, r); err != nil {
		return &sk.CryptoError{Op: "encrypt", Err: err}
	}

	if err := encWriter.Close(); err != nil {
		return &sk.CryptoError{Op: "encrypt", Err: fmt.Errorf("finalizing: %w", err)}
	}
	return nil
}

// DecryptStream reads age ciphertext from r and writes plaintext to w.
// A header that does not open under this key, or any modified chunk,
// is reported as *sk.CryptoError.
func (c *KeyCipher) DecryptStream(r io.Reader, w io.Writer) error {
	decReader, err := age.Decrypt(r, c)
	if err != nil {
		return &sk.CryptoError{Op: "decrypt", Err: err}
	}

	if _, err := io.Copy(w, decReader); err != nil {
		return &sk.CryptoError{Op: "decrypt", Err: err}
	}
	return nil
}

// Wrap seals the age file key under the symmetric key.
func (c *KeyCipher) Wrap(fileKey []byte) ([]*age.Stanza, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return []*age.Stanza{{
		Type: stanzaType,
		Args: []string{c.keyID, base64.RawStdEncoding.EncodeToString(nonce)},
		Body: aead.Seal(nil, nonce, fileKey, nil),
	}}, nil
}

// Unwrap opens the file key from an "sk-key" stanza sealed under this key.
// Stanzas for other keys yield age.ErrIncorrectIdentity.
func (c *KeyCipher) Unwrap(stanzas []*age.Stanza) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, err
	}

	for _, s := range stanzas {
		if s.Type != stanzaType {
			continue
		}
		if len(s.Args) != 2 {
			return nil, errors.New("malformed sk-key stanza")
		}
		if s.Args[0] != c.keyID {
			continue
		}
		nonce, err := base64.RawStdEncoding.DecodeString(s.Args[1])
		if err != nil || len(nonce) != aead.NonceSize() {
			return nil, errors.New("malformed sk-key stanza nonce")
		}
		fileKey, err := aead.Open(nil, nonce, s.Body, nil)
		if err != nil {
			return nil, age.ErrIncorrectIdentity
		}
		return fileKey, nil
	}
	return nil, age.ErrIncorrectIdentity
}
