package middleware

import (
	"context"
	"net/http"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDHeader is the header name for request ID.
	RequestIDHeader = "X-Request-ID"
	// SessionIDHeader names the conversation session a request acts in.
	SessionIDHeader = "X-Session-ID"

	requestIDKey = contextKey("request_id")
	sessionIDKey = contextKey("session_id")

	maxClientIDLen = 128
)

// RequestIDFromContext returns the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// SessionIDFromContext returns the session ID from context. Empty means the
// anonymous session.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// RequestID tags every request with an ID, reusing the client's X-Request-ID
// when it is usable. The ID is echoed in the response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := clientID(r.Header.Get(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Session binds the request to the conversation named by X-Session-ID.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := clientID(r.Header.Get(SessionIDHeader))
		ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientID drops oversized or non-printable identifiers.
func clientID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxClientIDLen || strings.ContainsFunc(s, unicode.IsControl) {
		return ""
	}
	return s
}
