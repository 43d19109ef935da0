package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the signature algorithm for issued tokens. Values
// are compared case-insensitively, so "HS256" and [MethodHS256] both work.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC-SHA256 secret.
	MethodHS256 SigningMethod = "hs256"
)

// Type distinguishes the two kinds of signed credentials.
type Type string

const (
	// TypeAccess is a short-lived bearer credential for protected requests.
	TypeAccess Type = "access"
	// TypeRefresh is a longer-lived credential bound to a device fingerprint.
	TypeRefresh Type = "refresh"
)

var (
	// ErrExpired is returned by Verify when the token is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrBadSignature is returned when the signature does not verify.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrMalformed is returned for tokens that cannot be parsed at all.
	ErrMalformed = errors.New("token malformed")
)

// Config holds the codec's signing material and validation policy. The
// signing secret itself is injected and rotated out of band; the codec never
// generates keys.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Claims is the payload carried by every issued token.
type Claims struct {
	AccountID   string `json:"uid"`
	Tag         uint64 `json:"tag"`
	Fingerprint string `json:"fph,omitempty"`
	TokenType   Type   `json:"typ"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens. It is immutable after NewCodec and safe
// for concurrent use.
type Codec struct {
	config Config
}

// NewCodec validates the configuration and returns a ready codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	cfg.SigningMethod = SigningMethod(strings.ToLower(string(cfg.SigningMethod)))
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Codec{config: cfg}, nil
}

// Issue signs a token of the given type. It stamps iat, exp, and a random jti
// and has no side effects. Refresh tokens must carry a fingerprint hash.
func (c *Codec) Issue(accountID string, tagValue uint64, fingerprint string, typ Type, ttl time.Duration) (string, error) {
	if accountID == "" {
		return "", errors.New("account id required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	if typ == TypeRefresh && fingerprint == "" {
		return "", errors.New("refresh tokens require a fingerprint hash")
	}

	now := time.Now()
	claims := Claims{
		AccountID:   accountID,
		Tag:         tagValue,
		Fingerprint: fingerprint,
		TokenType:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    c.config.Issuer,
		},
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	tok := jwt.NewWithClaims(c.getMethod(), claims)
	if c.config.KeyID != "" {
		tok.Header["kid"] = c.config.KeyID
	}

	signKey, err := c.getSignKey()
	if err != nil {
		return "", err
	}

	return tok.SignedString(signKey)
}

// Verify recomputes the signature and checks expiry, issuer, audience, and
// issued-at sanity. It performs no I/O; callers that need revocation state
// must cross-check Claims.Tag against the live auth tag themselves.
func (c *Codec) Verify(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.getMethod().Alg()}),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != c.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		if len(c.config.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := c.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return c.keyBytesToVerifyKey(key)
		}

		if c.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			if kid != c.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}

		return c.getVerifyKey()
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}
	if claims.TokenType != TypeAccess && claims.TokenType != TypeRefresh {
		return nil, ErrMalformed
	}
	if claims.IssuedAt != nil && c.config.MaxFutureIAT > 0 {
		maxAllowed := time.Now().Add(c.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, ErrMalformed
		}
	}

	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func (c *Codec) getMethod() jwt.SigningMethod {
	switch c.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (c *Codec) getSignKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		return c.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(c.config.PrivateKey)
	}
}

func (c *Codec) getVerifyKey() (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		return c.config.PrivateKey, nil
	default:
		return parseEdPublicKey(c.config.PublicKey)
	}
}

func (c *Codec) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch c.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
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
