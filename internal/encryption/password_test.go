package encryption

import (
	"encoding/base64"
	"testing"
)

func TestHashPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	t.Run("stores salt and digest", func(t *testing.T) {
		raw, err := base64.StdEncoding.DecodeString(hash)
		if err != nil {
			t.Fatalf("decoding hash: %v", err)
		}
		if len(raw) != passwordSaltSize+passwordHashSize {
			t.Errorf("len(raw) = %d, want %d", len(raw), passwordSaltSize+passwordHashSize)
		}
	})

	t.Run("salts differ", func(t *testing.T) {
		again, err := HashPassword("correct horse")
		if err != nil {
			t.Fatalf("HashPassword() error = %v", err)
		}
		if again == hash {
			t.Error("two hashes of the same password are identical")
		}
	})

	tests := []struct {
		name     string
		password string
		stored   string
		want     bool
	}{
		{name: "matching password", password: "correct horse", stored: hash, want: true},
		{name: "wrong password", password: "battery staple", stored: hash, want: false},
		{name: "empty password", password: "", stored: hash, want: false},
		{name: "malformed hash", password: "correct horse", stored: "!!", want: false},
		{name: "short hash", password: "correct horse", stored: base64.StdEncoding.EncodeToString([]byte("short")), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyPassword(tt.password, tt.stored); got != tt.want {
				t.Errorf("VerifyPassword() = %v, want %v", got, tt.want)
			}
		})
	}
}
