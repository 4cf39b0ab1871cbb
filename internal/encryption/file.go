package encryption

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"safekeep/internal/sk"
)

// FileHandler implements sk.SecureFileHandler on top of a streaming cipher.
// Output is written to a temp file in the destination directory and renamed
// into place, so a failed call never leaves a partial output file.
type FileHandler struct {
	cipher sk.Cipher
	fs     sk.FilesystemManager
}

var _ sk.SecureFileHandler = (*FileHandler)(nil)

// NewFileHandler creates a FileHandler.
func NewFileHandler(cipher sk.Cipher, fs sk.FilesystemManager) *FileHandler {
	return &FileHandler{cipher: cipher, fs: fs}
}

// EncryptFile encrypts inputPath to outputPath and returns the checksum of
// the ciphertext file.
func (h *FileHandler) EncryptFile(inputPath, outputPath string) (string, error) {
	return h.transform(inputPath, outputPath, h.cipher.EncryptStream)
}

// DecryptFile decrypts inputPath to outputPath and returns the checksum of
// the plaintext file.
func (h *FileHandler) DecryptFile(inputPath, outputPath string) (string, error) {
	return h.transform(inputPath, outputPath, h.cipher.DecryptStream)
}

func (h *FileHandler) transform(inputPath, outputPath string, op func(io.Reader, io.Writer) error) (string, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return "", &sk.IOError{Op: "open", Path: inputPath, Err: err}
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), "."+filepath.Base(outputPath)+".tmp-*")
	if err != nil {
		return "", &sk.IOError{Op: "create", Path: outputPath, Err: err}
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	src := &errReader{r: in}
	dst := &errWriter{w: tmp}
	if err := op(src, dst); err != nil {
		if src.err != nil {
			return "", &sk.IOError{Op: "read", Path: inputPath, Err: src.err}
		}
		if dst.err != nil {
			return "", &sk.IOError{Op: "write", Path: outputPath, Err: dst.err}
		}
		return "", err
	}

	if err := tmp.Sync(); err != nil {
		return "", &sk.IOError{Op: "sync", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &sk.IOError{Op: "close", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return "", &sk.IOError{Op: "rename", Path: outputPath, Err: err}
	}
	success = true

	sum, err := h.fs.Checksum(outputPath)
	if err != nil {
		return "", fmt.Errorf("checksumming output: %w", err)
	}
	return sum, nil
}

// errReader and errWriter remember the underlying I/O error so it can be
// told apart from an authentication failure.
type errReader struct {
	r   io.Reader
	err error
}

func (e *errReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && err != io.EOF {
		e.err = err
	}
	return n, err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
