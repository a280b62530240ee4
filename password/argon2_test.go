package password

import (
	"strings"
	"testing"
)

func secureParams() Params {
	return Params{
		Memory:      65536,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewHasher(secureParams())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("P@ssw0rd-Ascii", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected password verification to succeed")
	}
}

func TestVerifyWrongPassword(t *testing.T) {
	hasher, err := NewHasher(secureParams())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := hasher.Verify("wrong-password", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	hasher, err := NewHasher(secureParams())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	for _, bad := range []string{
		"",
		"not-a-phc-string",
		"$argon2i$v=19$m=65536,t=3,p=2$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=3,p=2$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$!!!$aGFzaA",
	} {
		if _, err := hasher.Verify("whatever", bad); err == nil {
			t.Fatalf("expected parse error for %q", bad)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	weak, err := NewHasher(Params{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher weak error: %v", err)
	}

	hash, err := weak.Hash("some-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	strong, err := NewHasher(secureParams())
	if err != nil {
		t.Fatalf("NewHasher strong error: %v", err)
	}

	needs, err := strong.NeedsRehash(hash)
	if err != nil {
		t.Fatalf("NeedsRehash error: %v", err)
	}
	if !needs {
		t.Fatal("expected weaker hash to need a rehash")
	}

	strongHash, err := strong.Hash("some-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	needs, err = strong.NeedsRehash(strongHash)
	if err != nil {
		t.Fatalf("NeedsRehash error: %v", err)
	}
	if needs {
		t.Fatal("expected current-parameter hash to not need a rehash")
	}
}

func TestNewHasherRejectsWeakParams(t *testing.T) {
	cases := []Params{
		{Memory: 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32},
		{Memory: 65536, Time: 0, Parallelism: 2, SaltLength: 16, KeyLength: 32},
		{Memory: 65536, Time: 3, Parallelism: 0, SaltLength: 16, KeyLength: 32},
		{Memory: 65536, Time: 3, Parallelism: 2, SaltLength: 8, KeyLength: 32},
		{Memory: 65536, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 8},
	}
	for i, p := range cases {
		if _, err := NewHasher(p); err == nil {
			t.Fatalf("case %d: expected parameter validation error", i)
		}
	}
}
