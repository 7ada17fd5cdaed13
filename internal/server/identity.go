package server

import (
	"context"
	"net/http"
	"time"

	"github.com/teemow/mailsense/internal/session"
)

const (
	// UserCookieName carries the anonymous user id in browsers.
	UserCookieName = "mailsense_uid"

	// UserHeaderName carries the user id for non-browser clients.
	UserHeaderName = "X-Mailsense-User"

	userCookieMaxAge = 365 * 24 * time.Hour
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext returns the user id set by the identity middleware.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

func requestedUserID(r *http.Request) string {
	if id := r.Header.Get(UserHeaderName); session.ValidUserID(id) {
		return id
	}
	if c, err := r.Cookie(UserCookieName); err == nil && session.ValidUserID(c.Value) {
		return c.Value
	}
	return ""
}

func setUserCookie(w http.ResponseWriter, userID string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     UserCookieName,
		Value:    userID,
		Path:     "/",
		MaxAge:   int(userCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(userCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
	w.Header().Set(UserHeaderName, userID)
}

// identityMiddleware resolves the caller's session, creating one on first
// contact, and refreshes the identity cookie.
func identityMiddleware(store session.Store, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec, err := store.Get(r.Context(), requestedUserID(r))
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "failed to load session", session.ErrorKindStorage)
				return
			}
			setUserCookie(w, rec.UserID, secure)

			ctx := context.WithValue(r.Context(), userIDKey, rec.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
