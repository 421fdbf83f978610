package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/leetbase/leetbase/internal/apperrors"
	"github.com/leetbase/leetbase/internal/handlers/accountctx"
	"github.com/leetbase/leetbase/internal/handlers/render"
	"github.com/leetbase/leetbase/internal/models"
	"github.com/leetbase/leetbase/internal/service/auth/csrf"
)

type authService interface {
	// Register account with username, email and password
	// Has to return apperrors.ErrAccountExists if username or email is taken
	Register(ctx context.Context, username string, email string, password string) (models.Account, string, error)

	// Consume an email verification token
	// Has to return apperrors.ErrTokenInvalid on unknown or spent token
	VerifyEmail(ctx context.Context, accountID uuid.UUID, rawToken string) error

	// Replace the outstanding verification token for an unverified account
	ResendVerification(ctx context.Context, accountID uuid.UUID) (string, error)

	// Login by username or email
	// Has to return apperrors.ErrInvalidCredentials on any credential failure
	Login(ctx context.Context, login string, password string) (models.Account, models.TokenPair, error)

	// Rotate the session refresh token
	// apperrors.ErrTokenExpired if the session aged out
	// apperrors.ErrTokenRevoked if the token no longer matches the account
	Refresh(ctx context.Context, accountID uuid.UUID, rawRefresh string) (models.TokenPair, error)

	// Drop the active session
	Logout(ctx context.Context, accountID uuid.UUID) error

	// Transport coupling
	SetTokenPairToResponse(w http.ResponseWriter, accountID uuid.UUID, pair models.TokenPair)
	RefreshFromRequest(r *http.Request) (uuid.UUID, string, error)
	ClearRefreshCookie(w http.ResponseWriter)
	CookieWithFlags(name string, value string, maxAge time.Duration) *http.Cookie
}

type csrfGuard interface {
	Issue() (string, error)
	Verify(cookieValue string, headerValue string) error
}

// VerificationSender delivers the raw verification token out-of-band.
// The real mailer is an external collaborator; nil means tokens are dropped
type VerificationSender func(ctx context.Context, account models.Account, token string) error

type AuthHandler struct {
	auth  authService
	guard csrfGuard
	send  VerificationSender
}

func NewAuth(auth authService, guard csrfGuard, send VerificationSender) *AuthHandler {
	return &AuthHandler{auth: auth, guard: guard, send: send}
}

// Handler returns the /auth subtree. Routes that require a live session are
// wrapped with the provided auth middleware
func (h *AuthHandler) Handler(withAuth func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", h.register)
	mux.HandleFunc("POST /verify-email", h.verifyEmail)
	mux.HandleFunc("POST /login", h.login)
	mux.HandleFunc("POST /refresh", h.refresh)
	mux.Handle("POST /logout", withAuth(http.HandlerFunc(h.logout)))
	mux.Handle("POST /resend-verification", withAuth(http.HandlerFunc(h.resendVerification)))
	mux.Handle("GET /me", withAuth(http.HandlerFunc(h.me)))

	return mux
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}
	type RegisterSuccessResponse struct {
		ID      uuid.UUID `json:"id"`
		Message string    `json:"message"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}

	account, verifyToken, err := h.auth.Register(r.Context(), data.Username, data.Email, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrAccountExists):
			render.ServiceError(w, "Account already exists", http.StatusConflict)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.deliverVerification(r.Context(), account, verifyToken)
	render.JSONWithStatus(w, RegisterSuccessResponse{
		ID:      account.ID,
		Message: "Account registered successfully",
	}, http.StatusCreated)
}

func (h *AuthHandler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	type VerifyEmailRequest struct {
		AccountID uuid.UUID `json:"account_id" validate:"required"`
		Token     string    `json:"token" validate:"required"`
	}
	type VerifyEmailSuccessResponse struct {
		Message string `json:"message"`
	}

	data, err := render.BindAndValidate[VerifyEmailRequest](w, r)
	if err != nil {
		return
	}

	err = h.auth.VerifyEmail(r.Context(), data.AccountID, data.Token)
	if err != nil {
		render.ServiceError(w, "Verification token is invalid", http.StatusBadRequest)
		return
	}

	render.JSON(w, VerifyEmailSuccessResponse{Message: "Email verified successfully"})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Login    string `json:"login" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	type LoginSuccessResponse struct {
		Message string `json:"message"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	account, pair, err := h.auth.Login(r.Context(), data.Login, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			// One message for every credential failure, nothing to enumerate
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.auth.SetTokenPairToResponse(w, account.ID, pair)
	render.JSON(w, LoginSuccessResponse{Message: "Logged in successfully"})
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	type RefreshSuccessResponse struct {
		Message string `json:"message"`
	}

	accountID, rawRefresh, err := h.auth.RefreshFromRequest(r)
	if err != nil {
		render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		return
	}

	pair, err := h.auth.Refresh(r.Context(), accountID, rawRefresh)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrTokenExpired):
			render.ServiceError(w, "Refresh token expired", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrTokenRevoked):
			render.ServiceError(w, "Refresh token revoked", http.StatusUnauthorized)
		default:
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.auth.SetTokenPairToResponse(w, accountID, pair)
	render.JSON(w, RefreshSuccessResponse{Message: "Tokens refreshed successfully"})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	type LogoutSuccessResponse struct {
		Message string `json:"message"`
	}

	account, ok := accountctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.auth.Logout(r.Context(), account.ID); err != nil {
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.auth.ClearRefreshCookie(w)
	render.JSON(w, LogoutSuccessResponse{Message: "Logged out successfully"})
}

func (h *AuthHandler) resendVerification(w http.ResponseWriter, r *http.Request) {
	type ResendSuccessResponse struct {
		Message string `json:"message"`
	}

	account, ok := accountctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	verifyToken, err := h.auth.ResendVerification(r.Context(), account.ID)
	if err != nil {
		render.ServiceError(w, "Email is verified already", http.StatusBadRequest)
		return
	}

	h.deliverVerification(r.Context(), account, verifyToken)
	render.JSON(w, ResendSuccessResponse{Message: "Verification email sent"})
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	type MeResponse struct {
		ID            uuid.UUID `json:"id"`
		Username      string    `json:"username"`
		Email         string    `json:"email"`
		Role          string    `json:"role"`
		EmailVerified bool      `json:"email_verified"`
	}

	account, ok := accountctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	render.JSON(w, MeResponse{
		ID:            account.ID,
		Username:      account.Username,
		Email:         account.Email,
		Role:          account.Role,
		EmailVerified: account.EmailVerified,
	})
}

// CSRFToken issues the anti-forgery cookie and echoes the token so the
// client can submit it back in the request header
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	type CSRFTokenResponse struct {
		CSRFToken string `json:"csrfToken"`
	}

	token, err := h.guard.Issue()
	if err != nil {
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Session cookie: no max age, lives with the browser session
	http.SetCookie(w, h.auth.CookieWithFlags(csrf.DefaultCookieName, token, 0))
	render.JSON(w, CSRFTokenResponse{CSRFToken: token})
}

func (h *AuthHandler) deliverVerification(ctx context.Context, account models.Account, token string) {
	if h.send == nil {
		return
	}
	// Delivery failures must not fail the request: the token can be resent
	_ = h.send(ctx, account, token)
}
