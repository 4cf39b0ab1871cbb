package encryption

import (
	"fmt"

	"safekeep/internal/config"
	"safekeep/internal/sk"
)

// NewCipherFromConfig creates a Cipher based on the configuration type.
func NewCipherFromConfig(cfg config.EncryptionConfig) (sk.Cipher, error) {
	switch cfg.Type {
	case "key", "":
		c, err := NewCipher(cfg.Key, cfg.Secret)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "test":
		return NewTestCipher(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
