package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/auth"
)

// Session makes sure every caller carries an anonymous cart token, issuing
// a cookie on first visit, and stores it in the request identity.
func (h *Handler) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sid string
		if c, err := r.Cookie(h.cookie); err == nil && uuid.Validate(c.Value) == nil {
			sid = c.Value
		} else {
			sid = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     h.cookie,
				Value:    sid,
				Path:     "/",
				MaxAge:   int(h.ttl.Seconds()),
				HttpOnly: true,
				Secure:   h.secure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		id := auth.FromContext(r.Context())
		id.SessionCartID = sid
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// Authenticate resolves an optional bearer token. Requests without one stay
// anonymous; a token that fails verification is rejected.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		verified, err := h.tokens.Verify(raw)
		if err != nil {
			zctx.From(r.Context()).Debug("Rejected bearer token", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "invalid token", "")
			return
		}

		id := auth.FromContext(r.Context())
		id.UserID = verified.UserID
		id.Role = verified.Role
		ctx := auth.WithIdentity(r.Context(), id)
		ctx = zctx.With(ctx, zap.String("user_id", id.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearer(r *http.Request) (string, bool) {
	scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// RequireAuth rejects anonymous callers.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.FromContext(r.Context()).IsAuthenticated() {
			writeError(w, http.StatusUnauthorized, auth.ErrUnauthenticated.Error(), "/sign-in")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects callers that are not administrators.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.FromContext(r.Context())
		switch {
		case !id.IsAuthenticated():
			writeError(w, http.StatusUnauthorized, auth.ErrUnauthenticated.Error(), "/sign-in")
		case !id.IsAdmin():
			writeError(w, http.StatusForbidden, auth.ErrForbidden.Error(), "")
		default:
			next.ServeHTTP(w, r)
		}
	})
}
