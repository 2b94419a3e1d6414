package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"log/slog"

	"github.com/garnizeh/taosdlc/internal/models"
	"github.com/garnizeh/taosdlc/internal/workflow"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type ctxKey string

const (
	CtxUserID    ctxKey = "user_id"
	CtxUserRole  ctxKey = "role"
	CtxRequestID ctxKey = "request_id"
)

const requestIDHeader = "X-Request-ID"

// package-level logger used by middleware and helpers; can be set via SetLogger from caller
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the api package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// RequestIDMiddleware propagates X-Request-ID or assigns a new one.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), CtxRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request id set by RequestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(CtxRequestID).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic", slog.Any("err", err), slog.String("request_id", RequestIDFromContext(r.Context())))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func JWTAuthMiddlewareWithSecret(secret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "missing Authorization header", nil)
				return
			}

			var tokenString string
			if _, err := fmt.Sscanf(authHeader, "Bearer %s", &tokenString); err != nil {
				logger.Debug("failed to parse Authorization header", slog.Any("err", err))
			}

			if tokenString == "" {
				writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "invalid Authorization header", nil)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}

				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token", nil)
				return
			}

			// Token is valid, put user_id and role into context
			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				ctx := r.Context()
				switch id := claims["user_id"].(type) {
				case float64:
					ctx = context.WithValue(ctx, CtxUserID, int64(id))
				case int64:
					ctx = context.WithValue(ctx, CtxUserID, id)
				}
				if role, ok := claims["role"].(string); ok {
					ctx = context.WithValue(ctx, CtxUserRole, models.UserRole(role))
				}
				r = r.WithContext(ctx)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// actorFrom returns the authenticated caller. Tokens without a user id do
// not identify an actor.
func actorFrom(r *http.Request) (workflow.Actor, bool) {
	id, ok := r.Context().Value(CtxUserID).(int64)
	if !ok || id <= 0 {
		return workflow.Actor{}, false
	}
	role, _ := r.Context().Value(CtxUserRole).(models.UserRole)
	return workflow.Actor{UserID: id, Role: role}, true
}

// requireActor writes 401 and reports false when the request carries no user.
func requireActor(w http.ResponseWriter, r *http.Request) (workflow.Actor, bool) {
	a, ok := actorFrom(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "token does not identify a user", nil)
	}
	return a, ok
}
