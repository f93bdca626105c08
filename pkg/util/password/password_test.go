package password

import (
	"errors"
	"strings"
	"testing"

	"github.com/telecarehq/telecare_backend/config"
)

func TestHash(t *testing.T) {
	password := "correcthorsebatterystaple"

	hash, err := Hash(password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	// Check PHC format
	if !strings.HasPrefix(hash, "$argon2id$v=") {
		t.Errorf("Hash() format invalid, got %s", hash)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Errorf("Hash() expected 6 parts, got %d", len(parts))
	}
}

func TestVerify(t *testing.T) {
	password := "mysecretpassword"

	hash, err := Hash(password)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		wantErr  error
	}{
		{
			name:     "correct password",
			hash:     hash,
			password: password,
			wantErr:  nil,
		},
		{
			name:     "wrong password",
			hash:     hash,
			password: "wrongpassword",
			wantErr:  ErrMismatch,
		},
		{
			name:     "malformed hash",
			hash:     "not-a-hash",
			password: password,
			wantErr:  ErrInvalidHash,
		},
		{
			name:     "wrong algorithm",
			hash:     "$bcrypt$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
			password: password,
			wantErr:  ErrInvalidHash,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.hash, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNeedsRehash(t *testing.T) {
	hash, err := Hash("somepassword")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if NeedsRehash(hash, DefaultParams()) {
		t.Error("NeedsRehash() should return false for current params")
	}

	weak := &Params{Memory: 16 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	oldHash, err := HashWithParams("somepassword", weak)
	if err != nil {
		t.Fatalf("HashWithParams() error = %v", err)
	}
	if !NeedsRehash(oldHash, DefaultParams()) {
		t.Error("NeedsRehash() should return true for weaker params")
	}

	if !NeedsRehash("garbage", DefaultParams()) {
		t.Error("NeedsRehash() should return true for malformed hash")
	}
}

func TestFromCentralConfig(t *testing.T) {
	got := FromCentralConfig(config.PasswordConfig{})
	want := DefaultParams()
	if *got != *want {
		t.Errorf("FromCentralConfig(zero) = %+v, want defaults %+v", got, want)
	}

	got = FromCentralConfig(config.PasswordConfig{MemoryKiB: 48 * 1024, Iterations: 5})
	if got.Memory != 48*1024 || got.Iterations != 5 {
		t.Errorf("FromCentralConfig() did not apply overrides, got %+v", got)
	}
	if got.Parallelism != want.Parallelism || got.SaltLength != want.SaltLength {
		t.Errorf("FromCentralConfig() lost defaults, got %+v", got)
	}

	got = FromCentralConfig(config.PasswordConfig{MemoryKiB: 64 * 1024, LowMemoryMode: true})
	if got.Memory != 32*1024 {
		t.Errorf("FromCentralConfig() low memory mode: Memory = %d, want %d", got.Memory, 32*1024)
	}
}

func TestHashesAreSalted(t *testing.T) {
	h1, err := Hash("samepassword")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	h2, err := Hash("samepassword")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if h1 == h2 {
		t.Error("Hash() produced identical hashes for the same password")
	}
}
