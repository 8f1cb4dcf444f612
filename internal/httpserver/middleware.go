package httpserver

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"lv-tradedesk/internal/apperr"
	"lv-tradedesk/internal/httputil"
	"lv-tradedesk/internal/types"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserHeader carries the authenticated user id to downstream handlers.
const UserHeader = "X-User-Id"

type ctxKey string

const (
	userIDKey ctxKey = "user_id"
	roleKey   ctxKey = "role"
)

// TokenParser resolves a session token to a user id and role.
type TokenParser interface {
	ParseToken(token string) (string, types.Role, error)
}

// sessionToken prefers a bearer token over the session cookie.
func sessionToken(r *http.Request, cookie string) string {
	if authz := r.Header.Get("Authorization"); authz != "" {
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if c, err := r.Cookie(cookie); err == nil {
		return c.Value
	}
	return ""
}

func WithAuth(tokens TokenParser, cookie string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r, cookie)
			if token == "" {
				httputil.WriteError(w, log, apperr.Unauthorized("missing session"))
				return
			}
			userID, role, err := tokens.ParseToken(token)
			if err != nil {
				httputil.WriteError(w, log, apperr.Unauthorized("invalid token"))
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, roleKey, role)
			r = r.WithContext(ctx)
			r.Header.Set(UserHeader, userID)
			next.ServeHTTP(w, r)
		})
	}
}

func UserID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(userIDKey).(string)
	return id, ok && id != ""
}

func Role(r *http.Request) types.Role {
	role, _ := r.Context().Value(roleKey).(types.Role)
	return role
}

func RequireAdmin(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Role(r) != types.RoleAdmin {
				httputil.WriteError(w, log, apperr.Forbidden("admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func InternalAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Internal-Token")
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid internal token", Code: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID keeps an incoming X-Request-Id or assigns a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func AccessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", r.Header.Get("X-Request-Id")))
		})
	}
}
