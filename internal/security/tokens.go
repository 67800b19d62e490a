package security

import (
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, badly signed or expired.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnsupportedAlgorithm is returned when the configured algorithm cannot sign with the key.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

// SessionClaims is the signed payload of a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"userId"`
	Session  string `json:"session"`
	UserType string `json:"userType"`
}

// TokenProvider signs and validates session JWTs with an asymmetric key pair.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	method     jwt.SigningMethod
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider for the key pair. alg selects the JWT algorithm
// (RS256, RS512, PS256, ES256, EdDSA, ...); when empty it is derived from the public key.
// issuer is set on every token and required on parse when non-empty. ttl of 0 issues tokens without exp.
func NewTokenProvider(keys *KeyPair, alg, issuer string, ttl time.Duration) (*TokenProvider, error) {
	if keys == nil || keys.Private == nil || keys.Public == nil {
		return nil, ErrInvalidKey
	}
	if alg == "" {
		alg = KeyAlg(keys.Public)
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil || !methodFitsKey(method, keys.Public) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	return &TokenProvider{
		privateKey: keys.Private,
		publicKey:  keys.Public,
		method:     method,
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

// Algorithm returns the JWT alg header value used for signing.
func (p *TokenProvider) Algorithm() string {
	return p.method.Alg()
}

// Issue signs a token carrying userID, sessionID and userType.
func (p *TokenProvider) Issue(userID int64, sessionID, userType string) (string, error) {
	now := p.now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  fmt.Sprint(userID),
			Issuer:   p.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		UserID:   userID,
		Session:  sessionID,
		UserType: userType,
	}
	if p.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(p.ttl))
	}
	return jwt.NewWithClaims(p.method, claims).SignedString(p.privateKey)
}

// Parse validates signature, algorithm, issuer and expiry and returns the claims.
// Every failure is reported as ErrInvalidToken.
func (p *TokenProvider) Parse(raw string) (*SessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	if p.ttl > 0 {
		opts = append(opts, jwt.WithExpirationRequired())
	}
	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(*jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Session == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func methodFitsKey(m jwt.SigningMethod, pub crypto.PublicKey) bool {
	switch m.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		return KeyAlg(pub) == "RS256"
	case *jwt.SigningMethodECDSA:
		return KeyAlg(pub) == m.Alg()
	case *jwt.SigningMethodEd25519:
		return KeyAlg(pub) == "EdDSA"
	default:
		return false
	}
}
