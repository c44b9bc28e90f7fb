package handlers

import (
	"net/http"
	"strings"

	"github.com/cardapio-field/api/internal/platform/httpx"
)

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	if err := httpx.DecodeJSON(r, limit, dst); err != nil {
		httpx.WriteDecodeError(r.Context(), w, err)
		return false
	}
	return true
}

// cleanServiceMessage drops the "xxx service: " prefix of a wrapped sentinel.
func cleanServiceMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if idx := strings.Index(msg, "service: "); idx >= 0 {
		msg = msg[idx+len("service: "):]
	}
	return msg
}
