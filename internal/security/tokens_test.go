package security

import (
	"crypto/elliptic"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenProvider_IssueAndParse(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}

	token, err := p.Issue(42, "sess-1", "teacher")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("Issue returned empty token")
	}

	claims, err := p.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != 42 || claims.Session != "sess-1" || claims.UserType != "teacher" {
		t.Errorf("Parse: got userId=%d session=%q userType=%q", claims.UserID, claims.Session, claims.UserType)
	}
	if claims.Issuer != "splan-test" {
		t.Errorf("Issuer = %q, want splan-test", claims.Issuer)
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Before(time.Now()) {
		t.Error("token should carry a future exp")
	}
}

func TestTokenProvider_ParseInvalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, err := p.Issue(1, "s", "student")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	testCases := []struct {
		name string
		raw  string
	}{
		{"garbage", "invalid-token"},
		{"empty", ""},
		{"tampered signature", tampered},
		{"unsigned", parts[0] + "." + parts[1] + "."},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.Parse(tc.raw); err != ErrInvalidToken {
				t.Errorf("Parse: want ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestTokenProvider_Expired(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	p.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := p.Issue(1, "s", "student")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	p.now = time.Now
	if _, err := p.Parse(token); err != ErrInvalidToken {
		t.Errorf("Parse expired: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_WrongIssuer(t *testing.T) {
	keys, err := TestKeyPair()
	if err != nil {
		t.Fatalf("TestKeyPair: %v", err)
	}
	other, err := NewTokenProvider(keys, "RS256", "someone-else", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	token, err := other.Issue(1, "s", "student")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	p, _ := NewTestTokenProvider()
	if _, err := p.Parse(token); err != ErrInvalidToken {
		t.Errorf("Parse wrong issuer: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_NoTTL(t *testing.T) {
	keys, err := TestKeyPair()
	if err != nil {
		t.Fatalf("TestKeyPair: %v", err)
	}
	p, err := NewTokenProvider(keys, "", "", 0)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	if p.Algorithm() != "RS256" {
		t.Errorf("Algorithm = %q, want RS256 derived from key", p.Algorithm())
	}
	token, err := p.Issue(7, "s7", "admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := p.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.ExpiresAt != nil {
		t.Error("token without TTL should not carry exp")
	}
}

func TestTokenProvider_AlgorithmMismatchRejected(t *testing.T) {
	keys, err := TestKeyPair()
	if err != nil {
		t.Fatalf("TestKeyPair: %v", err)
	}
	rs512, err := NewTokenProvider(keys, "RS512", "splan-test", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenProvider RS512: %v", err)
	}
	token, err := rs512.Issue(1, "s", "student")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	rs256, _ := NewTestTokenProvider()
	if _, err := rs256.Parse(token); err != ErrInvalidToken {
		t.Errorf("RS256 provider parsing RS512 token: want ErrInvalidToken, got %v", err)
	}

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{Session: "s", UserID: 1})
	hsToken, err := hs.SignedString([]byte(testPublicKeyPEM))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := rs256.Parse(hsToken); err != ErrInvalidToken {
		t.Errorf("HS256 token: want ErrInvalidToken, got %v", err)
	}
}

func TestNewTokenProvider_Errors(t *testing.T) {
	keys, err := TestKeyPair()
	if err != nil {
		t.Fatalf("TestKeyPair: %v", err)
	}
	if _, err := NewTokenProvider(nil, "RS256", "", 0); err != ErrInvalidKey {
		t.Errorf("nil keys: want ErrInvalidKey, got %v", err)
	}
	for _, alg := range []string{"ES256", "HS256", "none", "bogus"} {
		if _, err := NewTokenProvider(keys, alg, "", 0); !errors.Is(err, ErrUnsupportedAlgorithm) {
			t.Errorf("alg %q with RSA key: want ErrUnsupportedAlgorithm, got %v", alg, err)
		}
	}
}

func TestTokenProvider_ES256(t *testing.T) {
	priv, pub := ecKeyPEMs(t, elliptic.P256())
	keys, err := LoadKeyPair(priv, pub)
	if err != nil {
		t.Fatalf("LoadKeyPair: %v", err)
	}
	p, err := NewTokenProvider(keys, "", "splan", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	if p.Algorithm() != "ES256" {
		t.Errorf("Algorithm = %q, want ES256", p.Algorithm())
	}
	token, err := p.Issue(3, "s3", "student")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := p.Parse(token); err != nil {
		t.Fatalf("Parse: %v", err)
	}
}
