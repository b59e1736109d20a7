package kling

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTTL     = 30 * time.Minute
	tokenNotSkew = 5 * time.Second
)

// signToken builds the HS256 bearer token KlingAI expects: the access key is
// the issuer and the secret key signs it.
func signToken(accessKey, secretKey string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    accessKey,
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		NotBefore: jwt.NewNumericDate(now.Add(-tokenNotSkew)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("kling: sign token: %w", err)
	}
	return signed, nil
}
