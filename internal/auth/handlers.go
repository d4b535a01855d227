package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vidtube/accounts/internal/db"
	apperrors "github.com/vidtube/accounts/internal/errors"
	"github.com/vidtube/accounts/internal/token"
)

// loginFailed is the single message for unknown users and wrong passwords.
const loginFailed = "invalid username, email or password"

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type Handlers struct {
	svc     *Service
	cookies CookieConfig
}

func NewHandlers(svc *Service, cookies CookieConfig) *Handlers {
	return &Handlers{svc: svc, cookies: cookies}
}

// Login handles POST /login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) error {
	var req LoginInput
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	session, err := h.svc.Login(r.Context(), req)
	if err != nil {
		return h.toAppError(r, err)
	}

	h.setCookies(w, &session.Tokens)
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, session, "User logged in successfully")
	return nil
}

// Logout handles POST /logout behind the gate.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) error {
	user := UserFromContext(r.Context())
	if user == nil {
		return apperrors.Unauthorized("unauthorized request")
	}

	if err := h.svc.Logout(r.Context(), user.ID); err != nil {
		return h.toAppError(r, err)
	}

	h.cookies.ClearSessionCookies(w)
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, map[string]any{}, "User logged out")
	return nil
}

// Refresh handles POST /refresh-token. The token comes from the refreshToken
// cookie or the request body.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) error {
	presented := ""
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		presented = c.Value
	}
	if presented == "" {
		var req RefreshRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		presented = req.RefreshToken
	}

	tokens, err := h.svc.Refresh(r.Context(), presented)
	if err != nil {
		return h.toAppError(r, err)
	}

	h.setCookies(w, tokens)
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, tokens, "Access token refreshed")
	return nil
}

func (h *Handlers) setCookies(w http.ResponseWriter, t *Tokens) {
	codec := h.svc.Codec()
	h.cookies.SetSessionCookies(w, t, codec.TTL(token.ClassAccess), codec.TTL(token.ClassRefresh))
}

func (h *Handlers) toAppError(r *http.Request, err error) error {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, db.ErrUserNotFound):
		return apperrors.NotFound(loginFailed)
	case errors.Is(err, ErrInvalidCredentials):
		return apperrors.InvalidCredentials(loginFailed)
	case errors.Is(err, ErrMissingToken):
		return apperrors.Unauthorized("unauthorized request")
	case errors.Is(err, ErrInvalidToken):
		return apperrors.InvalidToken("invalid refresh token")
	case errors.Is(err, ErrTokenReused):
		return apperrors.TokenReused()
	}

	h.svc.log.Error(r.Context(), "session operation failed", err)
	return apperrors.InternalError("something went wrong").WithCause(err)
}

// decodeJSON reads an optional JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.ValidationError("invalid request body")
	}
	return nil
}
