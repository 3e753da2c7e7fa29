package http

import (
	"context"
	"net/http"
	"strings"
)

const (
	// UserIDHeader identifies the caller. Authentication happens upstream.
	UserIDHeader = "X-User-ID"

	maxUserIDLen = 128
	dateLayout   = "2006-01-02"
)

type ctxKey int

const userIDKey ctxKey = iota

// sanitizeInput removes control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}

func withUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func userFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// requireUser rejects requests without a usable X-User-ID header with 401.
func requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := sanitizeInput(r.Header.Get(UserIDHeader))
		switch {
		case userID == "":
			ErrorResponse(http.StatusUnauthorized, "missing "+UserIDHeader+" header").Write(w)
			return
		case len(userID) > maxUserIDLen:
			BadRequestError("invalid " + UserIDHeader + " header").Write(w)
			return
		}
		next(w, r.WithContext(withUser(r.Context(), userID)))
	}
}
