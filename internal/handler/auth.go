package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/jokes-api/internal/apperror"
	"github.com/sakif/jokes-api/internal/auth"
	"github.com/sakif/jokes-api/internal/model"
	"github.com/sakif/jokes-api/internal/service"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 10 * time.Minute
)

// AuthHandler serves registration, password login, the current-user
// profile, role administration and the optional Google sign-in flow.
//
// DEPENDENCY CHAIN:
//   - users  *service.UserService  → all account rules live there
//   - google *auth.GoogleProvider  → nil when Google sign-in is not configured
type AuthHandler struct {
	users  *service.UserService
	google *auth.GoogleProvider
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. google may be nil.
func NewAuthHandler(users *service.UserService, google *auth.GoogleProvider, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:  users,
		google: google,
		logger: logger,
	}
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=255"`
	DisplayName string `json:"display_name" validate:"required,max=120"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Both fields only need to be present here: a non-admin must get 403 even
// for a nonsense role, so the role itself is checked by the service.
type changeRoleRequest struct {
	Email string `json:"email" validate:"required"`
	Role  string `json:"role" validate:"required"`
}

// LoginResponse is the body returned by password login and the Google callback.
type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"` // seconds
	User        *model.User `json:"user"`
}

func newLoginResponse(res *service.AuthResult) LoginResponse {
	return LoginResponse{
		AccessToken: res.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(res.ExpiresIn.Seconds()),
		User:        res.User,
	}
}

// HandleRegister creates a password account.
//
// HTTP: POST /api/v1/register
// REQUEST BODY: {"email": "...", "password": "...", "display_name": "..."}
// RESPONSE: 201 + user (never the password or its digest)
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin exchanges an email and password for an access token.
//
// HTTP: POST /api/v1/login
// RESPONSE: 200 + {"access_token", "token_type": "Bearer", "expires_in", "user"}
//
// Unknown email and wrong password produce the same 401 body.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newLoginResponse(res))
}

// HandleMe returns the profile of the token's subject.
//
// HTTP: GET /api/v1/users/me
// Auth: Required. A valid token whose account was since deleted gets 404.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthenticated("valid authentication required"))
		return
	}

	user, err := h.users.GetByID(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleChangeRole sets another account's role. Admin only.
//
// HTTP: PUT /api/v1/users/role
// REQUEST BODY: {"email": "...", "role": "user|contributor|admin"}
func (h *AuthHandler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFromContext(r.Context())

	var req changeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.ChangeRole(r.Context(), actor, req.Email, req.Role)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleGoogleLogin redirects the browser to Google's consent page.
//
// HTTP: GET /api/v1/auth/google/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived HttpOnly cookie and into the
// redirect; the callback only proceeds when the two match.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeError(w, h.logger, apperror.NotFoundBy("identity provider", "name", "google"))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(oauthStateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes Google sign-in and answers with the same
// body as password login.
//
// HTTP: GET /api/v1/auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeError(w, h.logger, apperror.NotFoundBy("identity provider", "name", "google"))
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("oauth callback: state mismatch")
		writeError(w, h.logger, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:   oauthStateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("oauth callback: authorization denied", slog.String("error", errParam))
		writeError(w, h.logger, apperror.Unauthenticated("authorization was denied"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, h.logger, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	identity, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth callback: exchange failed", slog.String("error", err.Error()))
		writeError(w, h.logger, apperror.Unauthenticated("identity provider sign-in failed"))
		return
	}

	res, err := h.users.SignInExternal(r.Context(), identity)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newLoginResponse(res))
}
