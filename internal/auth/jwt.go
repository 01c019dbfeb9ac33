package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the issuer claim of every token
const Issuer = "kubecostd"

// Scope is the access level a token grants
type Scope string

const (
	// ScopeRead allows queries
	ScopeRead Scope = "read"
	// ScopeAdmin allows everything ScopeRead does plus price management
	ScopeAdmin Scope = "admin"
)

// ParseScope converts a string into a Scope
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeRead, ScopeAdmin:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown scope: %q", s)
	}
}

// Allows reports whether a token with scope s may act with scope required
func (s Scope) Allows(required Scope) bool {
	return s == required || s == ScopeAdmin
}

// Config holds API authentication configuration
type Config struct {
	Enabled  bool          `mapstructure:"enabled"`
	Secret   string        `mapstructure:"secret" validate:"required_if=Enabled true"`
	TokenTTL time.Duration `mapstructure:"token_ttl" validate:"gte=0"`
}

// DefaultConfig returns default auth configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:  false,
		TokenTTL: 24 * time.Hour,
	}
}

// Claims represents JWT claims with custom fields
type Claims struct {
	Scope Scope `json:"scope"`
	jwt.RegisteredClaims
}

// Auth issues and validates bearer tokens
type Auth struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuth creates a new Auth instance
func NewAuth(secret string, ttl time.Duration) *Auth {
	return &Auth{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// GenerateToken signs a token for subject. A zero ttl uses the default.
func (a *Auth) GenerateToken(subject string, scope Scope, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = a.ttl
	}
	now := a.now()
	claims := &Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates and parses a bearer token
func (a *Auth) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(Issuer), jwt.WithTimeFunc(a.now))

	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// TTL returns the default token lifetime
func (a *Auth) TTL() time.Duration {
	return a.ttl
}
