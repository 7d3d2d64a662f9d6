// Package security mints and verifies operator tokens for the admin API.
package security

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "configbot"

// ErrMissingSecret indicates no signing secret is configured.
var ErrMissingSecret = errors.New("security: missing jwt secret")

// AdminClaims identifies the operator a token was issued to.
type AdminClaims struct {
	OperatorID int64 `json:"-"`
	jwt.RegisteredClaims
}

// IssueAdminToken signs an HS256 token for operatorID valid for ttl.
func IssueAdminToken(secret string, operatorID int64, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrMissingSecret
	}
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   strconv.FormatInt(operatorID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("security: sign token: %w", err)
	}
	return token, nil
}

// ParseAdminToken validates token and returns its claims.
func ParseAdminToken(secret, token string) (*AdminClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	claims := &AdminClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("security: parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("security: invalid token")
	}
	id, errID := strconv.ParseInt(claims.Subject, 10, 64)
	if errID != nil || id == 0 {
		return nil, fmt.Errorf("security: invalid subject %q", claims.Subject)
	}
	claims.OperatorID = id
	return claims, nil
}
