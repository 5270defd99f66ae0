package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ActivationKeyLength is the length of activation/reset keys in hex characters.
const ActivationKeyLength = 64

var ErrInvalidRememberToken = errors.New("invalid remember token")

// GenerateSessionID creates a new UUID for session identification
func GenerateSessionID() string {
	return uuid.New().String()
}

// GenerateActivationKey generates a cryptographically secure random key
func GenerateActivationKey() (string, error) {
	bytes := make([]byte, ActivationKeyLength/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// rememberClaims carries the stored session token for a remembered login.
// The token is still looked up in the active_sessions table on every check;
// the signature only rejects tampered cookies early.
type rememberClaims struct {
	SessionToken string `json:"sid"`
	jwt.RegisteredClaims
}

// SignRememberToken creates a signed remember-me cookie value for userID
// wrapping the stored session token.
func SignRememberToken(secret []byte, userID int64, sessionToken string, ttl time.Duration) (string, error) {
	claims := rememberClaims{
		SessionToken: sessionToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseRememberToken validates a remember-me cookie value and returns the
// user ID and stored session token it wraps.
func ParseRememberToken(secret []byte, raw string) (int64, string, error) {
	token, err := jwt.ParseWithClaims(raw, &rememberClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidRememberToken
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return 0, "", ErrInvalidRememberToken
	}

	claims, ok := token.Claims.(*rememberClaims)
	if !ok || claims.SessionToken == "" {
		return 0, "", ErrInvalidRememberToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, "", ErrInvalidRememberToken
	}

	return userID, claims.SessionToken, nil
}
