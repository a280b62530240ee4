package token

import (
	"strings"
	"testing"
	"time"
)

// FuzzValidate feeds arbitrary strings through token validation. Goal: no
// panics; anything that is not a token we issued comes back as a clean error.
func FuzzValidate(f *testing.F) {
	authority, err := NewAuthority(Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "fuzz",
	})
	if err != nil {
		f.Fatal(err)
	}

	f.Add("")
	f.Add("abc")
	f.Add("a.b.c")
	f.Add("....")
	f.Add("eyJhbGciOiJIUzI1NiJ9.e30.")
	f.Add(strings.Repeat("A", 4096))
	if issued, _, err := authority.IssueAccess("alice", "USER"); err == nil {
		f.Add(issued)
		// A truncated real token must fail on signature, not crash.
		f.Add(issued[:len(issued)-2])
		// Flipped-case header breaks the signature too.
		f.Add(strings.ToUpper(issued[:10]) + issued[10:])
	}

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := authority.Validate(input, TypeAccess)
		if err != nil {
			if claims != nil {
				t.Fatal("claims returned alongside an error")
			}
			return
		}

		// Validation accepted it: the claims must be internally consistent.
		if claims.TokenType != TypeAccess {
			t.Fatalf("accepted token of type %q", claims.TokenType)
		}
		if claims.ID == "" || claims.Subject == "" {
			t.Fatalf("accepted token without id/subject: %+v", claims)
		}
	})
}
