package middleware

import (
	"net/http"
	"slices"

	"github.com/leetbase/leetbase/internal/handlers/render"
	"github.com/leetbase/leetbase/internal/service/auth/csrf"
)

// Safe methods never mutate state and skip the check
var safeMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}

type csrfGuard interface {
	Verify(cookieValue string, headerValue string) error
}

// CSRFMiddleware enforces the double-submit check on state-changing
// requests: the value of the csrf cookie must match the request header
func CSRFMiddleware(guard csrfGuard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(safeMethods, r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			var cookieValue string
			if cookie, err := r.Cookie(csrf.DefaultCookieName); err == nil {
				cookieValue = cookie.Value
			}

			err := guard.Verify(cookieValue, r.Header.Get(csrf.DefaultHeaderName))
			if err != nil {
				render.ServiceError(w, "CSRF token mismatch", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
