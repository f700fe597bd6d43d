package handler

import (
	"log/slog"
	"net/http"

	"github.com/cybered/assessor/internal/model"
)

const sessionCookieName = "assessor_session"

// sessionMiddleware resolves the browser session from the cookie, creating a
// fresh anonymous session when the cookie is absent, unknown, or expired. The
// session is placed in the request context for handlers downstream.
func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sess *model.Session

		if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
			sess, err = h.store.GetSession(cookie.Value)
			if err != nil {
				slog.Error("load session", "error", err)
				h.writeError(w, r, http.StatusInternalServerError, "InternalError")
				return
			}
		}

		if sess == nil {
			created, err := h.store.CreateSession()
			if err != nil {
				slog.Error("create session", "error", err)
				h.writeError(w, r, http.StatusInternalServerError, "InternalError")
				return
			}
			sess = created
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookieName,
				Value:    sess.Token,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				Secure:   h.config.SecureCookies,
				Expires:  sess.ExpiresAt,
			})
		}

		ctx := model.ContextWithSession(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
