package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/common"
)

var errNoToken = common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, nil)

// Middleware resolves the shopper session from the bearer token or the access
// cookie set by the storefront UI.
type Middleware struct {
	Verifier     *Verifier
	AccessCookie string
}

// RequireAuth rejects requests without a valid token. Expired tokens answer
// TOKEN_EXPIRED with an invalid_token challenge so the UI refreshes instead of
// signing the shopper out.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Verifier == nil {
			common.JSONError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "authentication is not configured", nil)
			return
		}
		token, fromCookie := m.extractToken(r)
		if token == "" {
			challenge(w, "")
			common.JSONError(w, errNoToken.HTTPStatus, errNoToken.Code, errNoToken.Message, nil)
			return
		}
		userID, err := m.Verifier.ParseAccessToken(token)
		if err != nil {
			var appErr *common.AppError
			if !errors.As(err, &appErr) {
				appErr = errNoToken
			}
			zerolog.Ctx(r.Context()).Debug().Err(err).Bool("cookie", fromCookie).Str("code", appErr.Code).Msg("token_rejected")
			challenge(w, "invalid_token")
			common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
			return
		}

		ctx := common.WithSession(r.Context(), common.Session{UserID: userID, Token: token})
		if logger := zerolog.Ctx(ctx); logger != zerolog.DefaultContextLogger {
			logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("user_id", userID)
			})
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func challenge(w http.ResponseWriter, reason string) {
	value := `Bearer realm="storefront"`
	if reason != "" {
		value += `, error="` + reason + `"`
	}
	w.Header().Set("WWW-Authenticate", value)
}

// extractToken prefers the Authorization header and falls back to the access
// cookie. The second result reports a cookie session, which needs CSRF.
func (m Middleware) extractToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, value, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(value), false
	}
	if m.AccessCookie == "" {
		return "", false
	}
	cookie, err := r.Cookie(m.AccessCookie)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(cookie.Value), true
}
