package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"coopvote/internal/domain"
	"coopvote/internal/service"
	"coopvote/pkg/errors"
	"coopvote/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// UserContextKey is the key for user information in context
	UserContextKey ContextKey = "user"
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"

	requestIDHeader = "X-Request-ID"
)

// Auth creates an authentication middleware
func Auth(authService service.AuthService, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeErrorResponse(w, r, errors.NewAuthenticationError("Authorization header is required"), logger)
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeErrorResponse(w, r, errors.NewAuthenticationError("Invalid authorization header format"), logger)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if token == "" {
				writeErrorResponse(w, r, errors.NewAuthenticationError("Token is required"), logger)
				return
			}

			ctx := r.Context()
			claims, err := authService.ValidateToken(ctx, token)
			if err != nil {
				logger.WithError(err).Info("Token validation failed")
				writeErrorResponse(w, r, errors.NewAuthenticationError("Invalid or expired token"), logger)
				return
			}

			ctx = context.WithValue(ctx, UserContextKey, claims)
			logger.WithField("user_id", claims.UserID).Debug("User authenticated successfully")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the authenticated member, if any
func UserFromContext(ctx context.Context) (*domain.AuthClaims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*domain.AuthClaims)
	return claims, ok && claims != nil
}

// RequestID creates a middleware that adds a unique request ID to each request.
// An incoming X-Request-ID header is kept.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" || len(requestID) > 128 {
				requestID = uuid.NewString()
			}

			ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
			w.Header().Set(requestIDHeader, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext returns the request ID set by RequestID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// writeErrorResponse writes an error response to the client
func writeErrorResponse(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, logger *logger.Logger) {
	logger.WithError(appErr).WithField("path", r.URL.Path).Debug("Request rejected")
	errors.WriteJSON(w, appErr, RequestIDFromContext(r.Context()))
}
