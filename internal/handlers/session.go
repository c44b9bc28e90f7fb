package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/cardapio-field/api/internal/platform/httpx"
	"github.com/cardapio-field/api/internal/platform/requestctx"
)

const (
	defaultSessionHeader = "X-Session-ID"
	maxSessionIDLength   = 40
)

// SessionMiddleware resolves the customer session from header. A request without one gets a
// fresh id from newID; the resolved id is echoed back on the response.
func SessionMiddleware(header string, newID func() string) func(http.Handler) http.Handler {
	header = strings.TrimSpace(header)
	if header == "" {
		header = defaultSessionHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := strings.TrimSpace(r.Header.Get(header))
			if sessionID == "" && newID != nil {
				sessionID = newID()
			}
			if !validSessionID(sessionID) {
				httpx.WriteError(r.Context(), w, httpx.NewError("invalid_session", header+" header is malformed", http.StatusBadRequest))
				return
			}
			w.Header().Set(header, sessionID)
			next.ServeHTTP(w, r.WithContext(requestctx.WithSessionID(r.Context(), sessionID)))
		})
	}
}

func validSessionID(id string) bool {
	if id == "" || len(id) > maxSessionIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// sessionFromContext returns the session id or writes a 400 when the group has no session
// middleware.
func sessionFromContext(ctx context.Context, w http.ResponseWriter) (string, bool) {
	sessionID := requestctx.SessionID(ctx)
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "customer session is required", http.StatusBadRequest))
		return "", false
	}
	return sessionID, true
}
