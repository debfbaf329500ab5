package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SocketTokenTTL is the lifetime of a websocket-auth token
const SocketTokenTTL = 15 * time.Minute

// IssueSocketToken signs a short-lived HS256 token carrying the user id.
// Browsers fetch one from an authenticated REST endpoint and present it on
// the websocket AUTH handshake.
func IssueSocketToken(secret []byte, userID int64) (string, error) {
	claims := jwt.MapClaims{
		"exp":     time.Now().UTC().Add(SocketTokenTTL).Unix(),
		"user_id": fmt.Sprintf("%d", userID),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign socket token: %w", err)
	}
	return signed, nil
}

// VerifySocketToken validates a socket-auth token's signature and expiry
// and returns the user id it carries
func VerifySocketToken(secret []byte, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("socket token rejected: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("socket token carries no claims")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("socket token carries no user_id claim")
	}
	return userID, nil
}
