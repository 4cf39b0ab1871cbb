package encryption

import (
	"errors"
	"testing"

	"safekeep/internal/sk"
)

func TestEncryptString(t *testing.T) {
	t.Parallel()
	c := newTestKeyCipher(t)

	enc, err := EncryptString(c, "hello")
	if err != nil {
		t.Fatalf("EncryptString() error = %v", err)
	}
	got, err := DecryptString(c, enc)
	if err != nil {
		t.Fatalf("DecryptString() error = %v", err)
	}
	if got != "hello" {
		t.Errorf("DecryptString() = %q, want hello", got)
	}

	t.Run("invalid base64 is a crypto error", func(t *testing.T) {
		_, err := DecryptString(c, "%%%")
		var cryptoErr *sk.CryptoError
		if !errors.As(err, &cryptoErr) {
			t.Errorf("DecryptString() error = %v, want *sk.CryptoError", err)
		}
	})
}

func TestEncryptJSON(t *testing.T) {
	t.Parallel()
	c := newTestKeyCipher(t)

	type credentials struct {
		User  string `json:"user"`
		Token string `json:"token"`
	}
	in := credentials{User: "svc", Token: "t0k3n"}

	enc, err := EncryptJSON(c, in)
	if err != nil {
		t.Fatalf("EncryptJSON() error = %v", err)
	}

	var out credentials
	if err := DecryptJSON(c, enc, &out); err != nil {
		t.Fatalf("DecryptJSON() error = %v", err)
	}
	if out != in {
		t.Errorf("DecryptJSON() = %+v, want %+v", out, in)
	}
}
