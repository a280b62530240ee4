package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type tags a token with its intended use. Validation is strict in both
// directions: an access token never passes refresh validation and vice versa.
type Type string

const (
	// TypeAccess marks short-lived tokens presented on every request.
	TypeAccess Type = "access"
	// TypeRefresh marks long-lived tokens accepted only by the refresh flow.
	TypeRefresh Type = "refresh"
)

// SigningMethod selects the JWT signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

// Validation failures. Validate returns exactly one of these per call,
// wrapped with no additional detail that could distinguish token provenance.
var (
	// ErrMalformed reports a token that is not structurally valid or whose
	// claims do not meet this authority's issuance contract.
	ErrMalformed = errors.New("token malformed")
	// ErrExpired reports a token past its expiry, beyond leeway.
	ErrExpired = errors.New("token expired")
	// ErrSignature reports a signature that does not verify against the
	// configured key material.
	ErrSignature = errors.New("token signature invalid")
	// ErrWrongType reports a type tag that does not match the expected use.
	ErrWrongType = errors.New("token type mismatch")
)

// Config carries the immutable issuance and validation parameters.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration

	// Clock overrides the time source. Nil means time.Now.
	Clock func() time.Time
}

// Claims is the payload baked into every issued token.
type Claims struct {
	Role      string `json:"role"`
	TokenType Type   `json:"typ"`
	jwt.RegisteredClaims
}

// Authority issues and validates the token pair. Safe for concurrent use.
type Authority struct {
	config    Config
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	parser    *jwt.Parser
	now       func() time.Time
}

// NewAuthority validates the configuration and prepares key material.
func NewAuthority(cfg Config) (*Authority, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("access TTL must be shorter than refresh TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	a := &Authority{config: cfg, now: cfg.Clock}
	if a.now == nil {
		a.now = time.Now
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
		a.method = jwt.SigningMethodHS256
		a.signKey = cfg.PrivateKey
		a.verifyKey = cfg.PrivateKey
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		a.method = jwt.SigningMethodEdDSA
		a.signKey = priv
		a.verifyKey = pub
	default:
		return nil, errors.New("unsupported signing method")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{a.method.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(a.now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}
	a.parser = jwt.NewParser(options...)

	return a, nil
}

// IssueAccess mints a signed access token for the subject.
func (a *Authority) IssueAccess(subject, role string) (string, *Claims, error) {
	return a.issue(subject, role, TypeAccess, a.config.AccessTTL)
}

// IssueRefresh mints a signed refresh token for the subject.
func (a *Authority) IssueRefresh(subject, role string) (string, *Claims, error) {
	return a.issue(subject, role, TypeRefresh, a.config.RefreshTTL)
}

func (a *Authority) issue(subject, role string, typ Type, ttl time.Duration) (string, *Claims, error) {
	if subject == "" {
		return "", nil, errors.New("empty subject")
	}

	now := a.now()
	claims := &Claims{
		Role:      role,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    a.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if a.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{a.config.Audience}
	}

	signed, err := jwt.NewWithClaims(a.method, claims).SignedString(a.signKey)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Validate parses and verifies a token and enforces the expected type.
// Revocation is not checked here; that is the caller's concern.
func (a *Authority) Validate(tokenStr string, expected Type) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMalformed
	}

	parsed, err := a.parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != a.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return a.verifyKey, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if claims.ID == "" || claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, ErrMalformed
	}
	if claims.TokenType != expected {
		return nil, ErrWrongType
	}
	return claims, nil
}

// mapParseError collapses jwt/v5 parser errors onto the closed error set.
// Expiry is checked first because jwt joins it with the generic claims error.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignature
	default:
		return ErrMalformed
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
