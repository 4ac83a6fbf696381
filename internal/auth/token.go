// Package auth issues and validates access tokens and handles credential
// secrets.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kubesec-bank/webbank/internal/models"
)

// ErrInvalidToken is returned for malformed, badly signed or expired tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the validated contents of an access token.
type Claims struct {
	Principal models.Principal
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenManager signs and parses HS256 access tokens.
type TokenManager struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, expiry time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// Issue signs a token for p valid for the configured expiry.
func (m *TokenManager) Issue(p models.Principal) (*models.Token, error) {
	now := m.now().UTC()
	expiresAt := now.Add(m.expiry)

	claims := jwt.MapClaims{
		"sub":  p.ID.String(),
		"kind": string(p.Kind),
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &models.Token{AccessToken: signed, ExpiresAt: time.Unix(expiresAt.Unix(), 0).UTC()}, nil
}

// Parse validates the signature and expiry of tokenStr and returns its claims.
func (m *TokenManager) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	id, err := uuid.Parse(getString(mapClaims, "sub"))
	if err != nil {
		return nil, ErrInvalidToken
	}

	kind := models.PrincipalKind(getString(mapClaims, "kind"))
	if kind != models.PrincipalUser && kind != models.PrincipalJoint {
		return nil, ErrInvalidToken
	}

	claims := &Claims{Principal: models.Principal{Kind: kind, ID: id}}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

// Remaining returns how long the token described by c stays valid.
func (m *TokenManager) Remaining(c *Claims) time.Duration {
	return c.ExpiresAt.Sub(m.now())
}

func getString(m jwt.MapClaims, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
