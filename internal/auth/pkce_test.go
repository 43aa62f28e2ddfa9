package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestGeneratePKCE(t *testing.T) {
	p, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE: %v", err)
	}

	// 32 random bytes base64url-encoded without padding is 43 chars.
	if len(p.Verifier) != 43 {
		t.Errorf("verifier length = %d, want 43", len(p.Verifier))
	}
	if p.State != p.Verifier {
		t.Error("state must equal the verifier")
	}

	sum := sha256.Sum256([]byte(p.Verifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if p.Challenge != want {
		t.Errorf("challenge = %q, want S256(verifier) = %q", p.Challenge, want)
	}
}

func TestGeneratePKCEUnique(t *testing.T) {
	a, err := GeneratePKCE()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GeneratePKCE()
	if err != nil {
		t.Fatal(err)
	}
	if a.Verifier == b.Verifier {
		t.Error("two generations produced the same verifier")
	}
}

func TestPKCEPersistRoundTrip(t *testing.T) {
	ClearPKCE()
	defer ClearPKCE()

	p, err := GeneratePKCE()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	loaded, err := LoadPKCE()
	if err != nil {
		t.Fatalf("LoadPKCE: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadPKCE returned nil after Persist")
	}
	if loaded.Verifier != p.Verifier || loaded.State != p.State {
		t.Errorf("loaded %+v, want %+v", loaded, p)
	}

	ClearPKCE()
	loaded, err = LoadPKCE()
	if err != nil {
		t.Fatalf("LoadPKCE after clear: %v", err)
	}
	if loaded != nil {
		t.Error("LoadPKCE returned state after ClearPKCE")
	}
}
