// ABOUTME: JWT room-access grants for authenticating room joins
// ABOUTME: HS256 tokens scoped to one room name - access is per-document, not global

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token expired")
	ErrMissingClaim     = errors.New("missing required claim")
	ErrRoomAccessDenied = errors.New("token does not grant access to this room")
)

// TokenVerifier defines the interface for room grant verification.
type TokenVerifier interface {
	Verify(tokenString, roomName string) (principalID string, err error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs. A grant
// carries the principal in "sub" and the single room it opens in "room".
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret.
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify validates the token and checks that its "room" claim grants access
// to roomName. Returns the principal from the "sub" claim.
func (v *JWTVerifier) Verify(tokenString, roomName string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	room, ok := claims["room"].(string)
	if !ok || room == "" {
		return "", fmt.Errorf("%w: room", ErrMissingClaim)
	}
	if room != roomName {
		return "", ErrRoomAccessDenied
	}

	return sub, nil
}

// Generate mints a short-lived grant for one principal and one room.
func (v *JWTVerifier) Generate(principalID, roomName string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  principalID,
		"room": roomName,
		"iat":  now.Unix(),
		"exp":  now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
