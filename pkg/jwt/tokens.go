package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims defines JWT payload.
type Claims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"name,omitempty"`
	jwtlib.RegisteredClaims
}

// GenerateToken issues a signed JWT with provided secret and ttl.
func GenerateToken(userID, displayName, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:      userID,
		DisplayName: displayName,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    "deskpulse",
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse validates and extracts claims from token.
func Parse(token string, secret string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}), jwtlib.WithIssuer("deskpulse"))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Inspect decodes claims without verifying the signature. Clients use it to
// learn who a token was issued to; servers must use Parse.
func Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.New("token missing user id")
	}
	return claims, nil
}
