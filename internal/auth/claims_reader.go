package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimsReader decodes session tokens on clients that do not hold the signing
// secret. The signature is not checked; the API re-validates every token it
// receives, so the reader only rejects tokens that are malformed, expired or
// anonymous.
type ClaimsReader struct {
	clock func() time.Time
}

// NewClaimsReader constructs a reader. A nil clock uses time.Now.
func NewClaimsReader(clock func() time.Time) *ClaimsReader {
	if clock == nil {
		clock = time.Now
	}
	return &ClaimsReader{clock: clock}
}

// ValidateToken decodes the token payload without verifying its signature.
func (r *ClaimsReader) ValidateToken(tokenString string) (SessionClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if claims.ExpiresAt != nil && !r.clock().Before(claims.ExpiresAt.Time) {
		return SessionClaims{}, ErrExpiredSessionToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.UserID) == "" {
		return SessionClaims{}, ErrMissingSessionSubject
	}
	return *claims, nil
}
