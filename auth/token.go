package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dapurkue/stockledger/inventory"
)

var jwtSigningMethod = jwt.SigningMethodHS256

type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Claims is the typed JWT issued to clients. Subject holds the user ID.
type Claims struct {
	Name string         `json:"name"`
	Role inventory.Role `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts verified claims into the caller identity.
func (c *Claims) Actor() inventory.Actor {
	return inventory.Actor{ID: c.Subject, Name: c.Name, Role: c.Role}
}

// MintToken issues a signed JWT for the user.
func MintToken(cfg TokenConfig, now time.Time, u User) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("jwt secret is required")
	}
	if cfg.TTL <= 0 {
		return "", fmt.Errorf("jwt ttl must be positive")
	}
	if !u.Role.IsValid() {
		return "", fmt.Errorf("invalid role %q", u.Role)
	}

	claims := Claims{
		Name: u.Name,
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseToken validates the JWT string and returns typed claims.
func ParseToken(cfg TokenConfig, tokenString string) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwtSigningMethod.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwtSigningMethod {
			return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !claims.Role.IsValid() || claims.Subject == "" {
		return nil, fmt.Errorf("token missing subject or role")
	}
	return claims, nil
}
