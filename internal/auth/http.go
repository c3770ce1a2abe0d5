// ABOUTME: Bearer token extraction for HTTP and WebSocket handshakes
// ABOUTME: Falls back to the token query parameter for browser WebSocket dials

package auth

import (
	"errors"
	"net/http"
	"strings"
)

// BearerToken extracts the grant from the Authorization header, or from the
// "token" query parameter as a fallback (browser WebSocket clients cannot
// set headers on the upgrade request).
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", errors.New("invalid authorization header format")
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return "", errors.New("empty token")
		}
		return token, nil
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", errors.New("missing authorization")
}
