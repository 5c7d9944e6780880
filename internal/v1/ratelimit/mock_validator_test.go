package ratelimit

import (
	"fmt"

	"github.com/trivionhq/trivion/internal/v1/auth"
)

// MockValidator is a mock TokenValidator for testing
type MockValidator struct {
	ValidateTokenFunc func(tokenString string) (*auth.MemberClaims, error)
}

// ValidateToken implements TokenValidator
func (m *MockValidator) ValidateToken(tokenString string) (*auth.MemberClaims, error) {
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(tokenString)
	}
	return nil, fmt.Errorf("invalid token")
}
