package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leetbase/leetbase/internal/apperrors"
	"github.com/leetbase/leetbase/internal/models"
)

// Transport coupling for the auth service: access token travels in the
// Authorization header, refresh token in an httpOnly cookie. The refresh
// cookie value is '<accountID>.<token>' so the rotation call knows which
// account record to check without a token table lookup.

// SetTokenPairToResponse writes the access header and refresh cookie
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, accountID uuid.UUID, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	http.SetCookie(w, s.refreshCookie(accountID, pair.Refresh))
}

// SetTokenPairToRequest mirrors SetTokenPairToResponse for outgoing
// requests, used by clients and tests
func (s *AuthService) SetTokenPairToRequest(r *http.Request, accountID uuid.UUID, pair models.TokenPair) {
	r.Header.Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	r.AddCookie(s.refreshCookie(accountID, pair.Refresh))
}

// RefreshFromRequest extracts account id and raw refresh token from the
// refresh cookie
func (s *AuthService) RefreshFromRequest(r *http.Request) (uuid.UUID, string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("refresh cookie missing: %w", apperrors.ErrTokenInvalid)
	}

	accountID, raw, found := strings.Cut(cookie.Value, ".")
	if !found {
		return uuid.Nil, "", fmt.Errorf("malformed refresh cookie: %w", apperrors.ErrTokenInvalid)
	}

	id, err := uuid.Parse(accountID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("malformed refresh cookie: %w", apperrors.ErrTokenInvalid)
	}

	return id, raw, nil
}

// ClearRefreshCookie expires the refresh cookie on the client (logout)
func (s *AuthService) ClearRefreshCookie(w http.ResponseWriter) {
	cookie := s.cookieWithFlags(s.refreshCookieName, "")
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
}

// Authenticate resolves the request's bearer access token to an account
func (s *AuthService) Authenticate(ctx context.Context, r *http.Request) (models.Account, error) {
	header := r.Header.Get(s.accessHeaderName)

	scheme, access, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, s.accessAuthScheme) {
		return models.Account{}, fmt.Errorf("bearer token missing: %w", apperrors.ErrTokenInvalid)
	}

	identity, err := s.token.ParseAccess(access)
	if err != nil {
		return models.Account{}, err
	}

	account, err := s.accountRepo.GetByID(ctx, identity.AccountID)
	if err != nil {
		return models.Account{}, fmt.Errorf("token account unknown: %w", apperrors.ErrTokenInvalid)
	}

	return account, nil
}

// CookieWithFlags builds a cookie with the environment-driven security
// attributes: lax and plain http in development, secure cross-site capable
// and partitioned in production
func (s *AuthService) CookieWithFlags(name string, value string, maxAge time.Duration) *http.Cookie {
	cookie := s.cookieWithFlags(name, value)
	cookie.MaxAge = int(maxAge.Seconds())
	return cookie
}

func (s *AuthService) refreshCookie(accountID uuid.UUID, refresh models.IssuedToken) *http.Cookie {
	cookie := s.cookieWithFlags(s.refreshCookieName, accountID.String()+"."+refresh.Value)
	cookie.MaxAge = int(time.Until(refresh.ExpiresAt).Seconds())
	return cookie
}

func (s *AuthService) cookieWithFlags(name string, value string) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	if s.production {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
		cookie.Partitioned = true
	}

	return cookie
}
