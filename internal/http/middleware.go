package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/storefront-service/internal/apperror"
	"github.com/fjod/go_cart/storefront-service/internal/session"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type ctxKey int

const (
	sessionKey ctxKey = iota
	requestIDKey
)

// SessionAcquirer resolves a bearer token to the buyer's session.
type SessionAcquirer interface {
	Acquire(ctx context.Context, token string) (*session.Session, error)
}

// AuthMiddleware binds the buyer session for the forwarded bearer token.
func AuthMiddleware(sessions SessionAcquirer, rs responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				rs.respondError(w, r, apperror.ErrUnauthorized)
				return
			}
			s, err := sessions.Acquire(r.Context(), token)
			if err != nil {
				rs.respondError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// RequestIDMiddleware echoes the request id back to the caller.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = r.Header.Get("X-Request-ID")
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}
