package handlers

import (
	"net/http"

	"github.com/leetbase/leetbase/internal/handlers/middleware"
	"github.com/leetbase/leetbase/internal/handlers/render"
	"github.com/leetbase/leetbase/internal/logger"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authHandler *AuthHandler,
	authMiddleware func(http.Handler) http.Handler,
	csrfMiddleware func(http.Handler) http.Handler,
	l logger.Logger,
) http.Handler {
	root := http.NewServeMux()

	root.HandleFunc("GET /healthz", handleHealthz)
	root.HandleFunc("GET /csrf-token", authHandler.CSRFToken)

	// The whole auth subtree sits behind the double-submit check;
	// safe methods pass through it untouched
	authmux := authHandler.Handler(authMiddleware)
	root.Handle("/auth/", http.StripPrefix("/auth", csrfMiddleware(authmux)))

	return chain(root,
		middleware.LoggerMiddleware(l),
	)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	type HealthResponse struct {
		Message string `json:"message"`
	}

	render.JSON(w, HealthResponse{Message: "Server is Healthy"})
}
