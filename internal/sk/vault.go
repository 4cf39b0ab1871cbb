package sk

import "io"

// Vault is an off-site copy target for finished backup artifacts.
// Artifacts are addressed by their file name.
type Vault interface {
	// Put stores an artifact. size is the number of bytes that will be read from r.
	Put(key string, r io.Reader, size int64) error

	// Get retrieves an artifact and writes it to w.
	Get(key string, w io.Writer) error

	// Delete removes an artifact. Deleting a missing artifact is not an error.
	Delete(key string) error

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
