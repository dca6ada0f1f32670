// Package claim links physical pots to user accounts through short-lived signed tokens.
package claim

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenClaims is the payload of a claim token.
type TokenClaims struct {
	PotCode string `json:"pot_code"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies claim tokens with HS256.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. issuer may be empty, in which case it is neither set nor checked.
func NewTokenIssuer(secret string, ttl time.Duration, issuer string) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// Generate returns a signed token binding potCode, and when it expires.
func (i *TokenIssuer) Generate(potCode string) (string, time.Time, error) {
	if potCode == "" {
		return "", time.Time{}, errors.New("pot code is required")
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := TokenClaims{
		PotCode: potCode,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify returns the token's claims, or nil if the token is malformed, forged, expired or
// carries no pot code.
func (i *TokenIssuer) Verify(token string) *TokenClaims {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid || claims.PotCode == "" {
		return nil
	}
	return claims
}
