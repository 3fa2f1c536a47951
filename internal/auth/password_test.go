package auth

import (
	"errors"
	"testing"
)

func TestHashPassword_VerifyRoundtrip(t *testing.T) {
	cred, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if cred.Iterations < minIterations || cred.Iterations >= maxIterations {
		t.Errorf("Iterations = %d, want in [%d, %d)", cred.Iterations, minIterations, maxIterations)
	}
	if len(cred.Salt) != saltLen*2 {
		t.Errorf("Salt hex length = %d, want %d", len(cred.Salt), saltLen*2)
	}
	if len(cred.Hash) != derivedKeyLen*2 {
		t.Errorf("Hash hex length = %d, want %d", len(cred.Hash), derivedKeyLen*2)
	}

	ok, err := VerifyPassword("correct horse battery staple", cred.Hash, cred.Salt, cred.Iterations)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("VerifyPassword() = false for correct password")
	}
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	cred, err := HashPassword("right")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	ok, err := VerifyPassword("wrong", cred.Hash, cred.Salt, cred.Iterations)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if ok {
		t.Error("VerifyPassword() = true for wrong password")
	}
}

func TestHashPassword_UniquePerCall(t *testing.T) {
	a, err := HashPassword("same password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	b, err := HashPassword("same password")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if a.Salt == b.Salt {
		t.Error("two hashes of the same password share a salt")
	}
	if a.Hash == b.Hash {
		t.Error("two hashes of the same password are identical")
	}
}

func TestVerifyPassword_MalformedRecord(t *testing.T) {
	tests := []struct {
		name       string
		hash       string
		salt       string
		iterations int
	}{
		{"bad salt encoding", "abcd", "not-hex!", 3000},
		{"bad hash encoding", "not-hex!", "abcd", 3000},
		{"zero iterations", "abcd", "abcd", 0},
		{"negative iterations", "abcd", "abcd", -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyPassword("attempt", tt.hash, tt.salt, tt.iterations)
			if !errors.Is(err, ErrMalformedRecord) {
				t.Errorf("VerifyPassword() error = %v, want ErrMalformedRecord", err)
			}
		})
	}
}
