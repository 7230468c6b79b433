package jwt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	defaultSecret = "papergrade-secret-change-me"
	issuer        = "papergrade"
)

var (
	mu     sync.RWMutex
	secret = []byte(defaultSecret)
)

// SetSecret configures the JWT signing secret (call on startup).
func SetSecret(s string) {
	if s == "" {
		return
	}
	mu.Lock()
	secret = []byte(s)
	mu.Unlock()
}

// UsingDefaultSecret reports whether SetSecret was never given a value.
func UsingDefaultSecret() bool {
	mu.RLock()
	defer mu.RUnlock()
	return string(secret) == defaultSecret
}

func currentSecret() []byte {
	mu.RLock()
	defer mu.RUnlock()
	return secret
}

// Claims is the JWT payload.
type Claims struct {
	UserID string `json:"uid"`
	jwtlib.RegisteredClaims
}

// Sign creates a signed JWT token for the given user ID.
func Sign(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(currentSecret())
}

// Parse validates a token string and returns the claims.
func Parse(tokenStr string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return currentSecret(), nil
	}, jwtlib.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
