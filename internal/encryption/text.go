package encryption

import (
	"encoding/base64"
	"fmt"

	"github.com/goccy/go-json"

	"safekeep/internal/sk"
)

// EncryptString encrypts s and returns the ciphertext as standard base64.
func EncryptString(c sk.Cipher, s string) (string, error) {
	ct, err := c.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptString reverses EncryptString.
func DecryptString(c sk.Cipher, encoded string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", &sk.CryptoError{Op: "decode ciphertext", Err: err}
	}
	pt, err := c.Decrypt(ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// EncryptJSON marshals v to JSON and encrypts it with EncryptString.
func EncryptJSON(c sk.Cipher, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding json: %w", err)
	}
	return EncryptString(c, string(data))
}

// DecryptJSON decrypts a value from EncryptJSON into v.
func DecryptJSON(c sk.Cipher, encoded string, v any) error {
	pt, err := DecryptString(c, encoded)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(pt), v); err != nil {
		return fmt.Errorf("decoding json: %w", err)
	}
	return nil
}
