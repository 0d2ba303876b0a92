// Package auth issues and verifies the signed bearer tokens that bind a
// username to a session. Tokens are HS256 JWTs carrying the username, the
// issue time, and an expiry derived from the configured validity duration.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims extends the registered claim set with the username the token was
// issued for.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// GenerateToken produces a signed token embedding username, issue time, and
// expiry. It is a pure function of its inputs and the clock.
func GenerateToken(username string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Username: username,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// UsernameFromToken verifies tokenString and returns the embedded username.
//
// Verification failures form a closed set, distinguishable with errors.Is:
// common.ErrTokenExpired, common.ErrTokenSignatureInvalid, and
// common.ErrTokenMalformed. Callers map exactly these three to an
// "invalid token" outcome; any other error is an infrastructure fault.
func UsernameFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secretKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", common.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", common.ErrTokenSignatureInvalid
		default:
			return "", common.ErrTokenMalformed
		}
	}

	if !token.Valid {
		return "", common.ErrTokenMalformed
	}

	return claims.Username, nil
}

// IsVerificationFailure reports whether err is one of the three token
// verification outcomes, as opposed to an infrastructure fault.
func IsVerificationFailure(err error) bool {
	return errors.Is(err, common.ErrTokenExpired) ||
		errors.Is(err, common.ErrTokenSignatureInvalid) ||
		errors.Is(err, common.ErrTokenMalformed)
}
