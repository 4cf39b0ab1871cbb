package encryption

import (
	"fmt"

	"safekeep/internal/model"
	"safekeep/internal/sk"
)

// SecretStore keeps named JSON values encrypted at rest in the database.
type SecretStore struct {
	database sk.Database
	cipher   sk.Cipher
	clock    sk.Clock
}

// NewSecretStore creates a SecretStore.
func NewSecretStore(database sk.Database, cipher sk.Cipher, clock sk.Clock) *SecretStore {
	return &SecretStore{database: database, cipher: cipher, clock: clock}
}

// Put encrypts value as JSON and stores it under identifier, replacing any
// previous value.
func (s *SecretStore) Put(identifier string, value any) error {
	if identifier == "" {
		return fmt.Errorf("secret identifier is required")
	}
	enc, err := EncryptJSON(s.cipher, value)
	if err != nil {
		return fmt.Errorf("encrypting secret %s: %w", identifier, err)
	}

	now := s.clock.Now()
	if err := s.database.PutEncryptedData(&model.EncryptedData{
		Identifier: identifier,
		Data:       []byte(enc),
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return fmt.Errorf("storing secret %s: %w", identifier, err)
	}
	return nil
}

// Get decrypts the value stored under identifier into out. A missing
// identifier returns an error wrapping sk.ErrNotFound.
func (s *SecretStore) Get(identifier string, out any) error {
	data, err := s.database.GetEncryptedData(identifier)
	if err != nil {
		return fmt.Errorf("loading secret %s: %w", identifier, err)
	}
	if data == nil {
		return fmt.Errorf("secret %s: %w", identifier, sk.ErrNotFound)
	}
	if err := DecryptJSON(s.cipher, string(data.Data), out); err != nil {
		return fmt.Errorf("decrypting secret %s: %w", identifier, err)
	}
	return nil
}
