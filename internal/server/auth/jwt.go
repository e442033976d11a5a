// Package auth mints and checks the short-lived tokens that authorize a
// download from local storage.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/tguard/internal/common"
)

// Claims carries the standard claims; Subject is the message ID the token
// grants access to.
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken returns an HS256 token granting access to messageID for
// validityDuration.
func GenerateToken(messageID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   messageID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
	})
	return token.SignedString(secretKey)
}

// GetMessageIDFromToken validates tokenString and returns the message ID
// it grants. Expired tokens yield common.ErrTokenExpired, every other
// failure common.ErrInvalidToken.
func GetMessageIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", common.ErrTokenExpired
	}
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
