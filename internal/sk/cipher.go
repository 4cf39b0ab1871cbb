package sk

import "io"

// Cipher performs authenticated symmetric encryption with a single key held
// for the lifetime of the process. Authentication failures and malformed
// keys are reported as *CryptoError.
type Cipher interface {
	// Encrypt returns authenticated ciphertext for plaintext.
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt authenticates and decrypts ciphertext produced by Encrypt.
	Decrypt(ciphertext []byte) ([]byte, error)

	// EncryptStream encrypts everything read from r and writes ciphertext to w.
	EncryptStream(r io.Reader, w io.Writer) error

	// DecryptStream authenticates and decrypts r into w. Plaintext written
	// before an authentication failure must be discarded by the caller.
	DecryptStream(r io.Reader, w io.Writer) error
}

// SecureFileHandler encrypts and decrypts whole files, returning the
// SHA-256 checksum of the file it wrote.
type SecureFileHandler interface {
	EncryptFile(inputPath, outputPath string) (string, error)
	DecryptFile(inputPath, outputPath string) (string, error)
}
