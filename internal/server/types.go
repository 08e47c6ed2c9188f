package server

import (
	"net/http"
	"strings"

	"github.com/Tyrowin/tourneychat/internal/chat"
)

// errorBody is the JSON body of failed HTTP responses.
type errorBody struct {
	Error string    `json:"error"`
	Kind  chat.Kind `json:"kind"`
}

// statusForKind maps an error kind to its HTTP status.
func statusForKind(kind chat.Kind) int {
	switch kind {
	case chat.KindAuth:
		return http.StatusUnauthorized
	case chat.KindUnauthorized:
		return http.StatusForbidden
	case chat.KindNotFound:
		return http.StatusNotFound
	case chat.KindExpired:
		return http.StatusGone
	case chat.KindChatClosed:
		return http.StatusConflict
	case chat.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides the text of unclassified errors from clients.
func publicMessage(err error) string {
	if chat.KindOf(err) == chat.KindInternal {
		return "internal error"
	}
	return err.Error()
}

// bearerToken extracts the credential from the Authorization header, falling
// back to the token query parameter used by browser WebSocket clients.
func bearerToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
