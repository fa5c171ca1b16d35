// Package auth provides the default endpoint.Authorizer: a bearer JWT
// checked against a shared HMAC secret, grounded on
// internal/_teacher_token_service.go.ref's TokenService.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload carried by tokens this package mints and
// verifies. Subject identifies the peer requesting the connection.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTAuthorizer is an endpoint.Authorizer backed by a single shared
// HMAC secret. It accepts an "Authorization: Bearer <token>" header and
// rejects everything else, including missing or expired tokens.
type JWTAuthorizer struct {
	secret []byte
	issuer string
}

// NewJWTAuthorizer returns an authorizer that verifies tokens signed
// with secret and, if issuer is non-empty, requires it to match the
// token's iss claim.
func NewJWTAuthorizer(secret, issuer string) *JWTAuthorizer {
	return &JWTAuthorizer{secret: []byte(secret), issuer: issuer}
}

// AuthorizeRequest implements endpoint.Authorizer.
func (a *JWTAuthorizer) AuthorizeRequest(ctx context.Context, peer string, header map[string][]string) bool {
	tokenString := bearerToken(header)
	if tokenString == "" {
		return false
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return false
	}
	if a.issuer != "" && claims.Issuer != a.issuer {
		return false
	}
	return true
}

// bearerToken looks up the Authorization header — httpcodec.Header.AsMap
// lowercases keys — and strips a leading "Bearer " prefix.
func bearerToken(header map[string][]string) string {
	values := header["authorization"]
	if len(values) == 0 {
		return ""
	}
	const prefix = "Bearer "
	v := values[0]
	if !strings.HasPrefix(v, prefix) {
		return ""
	}
	return strings.TrimPrefix(v, prefix)
}

// MintToken signs a token for subject that expires after ttl, for use
// by demo clients and tests exercising JWTAuthorizer.
func MintToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
