// Package csrf implements the double-submit cookie pattern: a random token
// lives in an httpOnly cookie and must be echoed back in a request header on
// state-changing calls. No server-side storage, so the check works across
// horizontally scaled instances.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/leetbase/leetbase/internal/apperrors"
)

const (
	// DefaultCookieName matches the cookie the frontend already expects
	DefaultCookieName = "_csrf"

	// DefaultHeaderName is the header state-changing requests must carry
	DefaultHeaderName = "x-csrf-token"

	tokenBytesLen = 32
)

type Guard struct{}

func NewGuard() Guard {
	return Guard{}
}

// Issue generates a random token for embedding in a response cookie
func (Guard) Issue() (string, error) {
	b := make([]byte, tokenBytesLen)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("error while generating csrf token. Err: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Verify compares the cookie value against the submitted header value in
// constant time. Absence of either side is a mismatch, not a pass
func (Guard) Verify(cookieValue string, headerValue string) error {
	if cookieValue == "" || headerValue == "" {
		return apperrors.ErrCSRFMismatch
	}

	if subtle.ConstantTimeCompare([]byte(cookieValue), []byte(headerValue)) != 1 {
		return apperrors.ErrCSRFMismatch
	}

	return nil
}
