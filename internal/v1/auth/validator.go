// Package auth mints and validates the opaque member tokens Trivion hands
// clients on welcome. Unlike the teacher's Auth0-backed JWKS validator,
// Trivion has no external identity provider: a member's identity is just a
// self-chosen display name, so the "opaque server-generated token" the
// specification calls for is implemented as a short, self-issued JWT
// wrapping the member id and room code. Clients treat it as an unguessable
// string; only the server ever inspects its claims.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MemberClaims binds an opaque token to the member and room it identifies.
type MemberClaims struct {
	RoomCode string `json:"room_code"`
	jwt.RegisteredClaims
}

// Validator issues and parses member tokens using a single HMAC secret
// shared across the process. There is no expiry enforcement beyond what
// RegisteredClaims carries: a member's token remains valid for as long as
// the member exists in its room, and the room package's own reconnection
// grace window already bounds how long a stale token is useful for.
type Validator struct {
	secret []byte
}

// NewValidator builds a Validator from the configured RECONNECT_TOKEN_SECRET.
func NewValidator(secret string) (*Validator, error) {
	if len(secret) < 16 {
		return nil, errors.New("reconnect token secret must be at least 16 bytes")
	}
	return &Validator{secret: []byte(secret)}, nil
}

// Issue mints an opaque token binding memberID to roomCode.
func (v *Validator) Issue(memberID, roomCode string) (string, error) {
	claims := MemberClaims{
		RoomCode: roomCode,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  memberID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// ValidateToken parses tokenString and returns its claims, rejecting
// anything not signed with this validator's secret.
func (v *Validator) ValidateToken(tokenString string) (*MemberClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &MemberClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid member token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("member token is invalid")
	}
	claims, ok := token.Claims.(*MemberClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return claims, nil
}
