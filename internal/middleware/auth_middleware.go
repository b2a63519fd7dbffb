package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/locolive/pulse/internal/auth"
	"github.com/locolive/pulse/pkg/response"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	EmailKey  contextKey = "email"
)

var errMissingToken = errors.New("missing authorization token")

// TokenFromRequest returns the bearer token from the Authorization header,
// falling back to the "token" query parameter. Browsers cannot set headers
// on a websocket handshake, so the query form exists for /ws.
func TokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			return "", errors.New("invalid authorization header format")
		}
		return parts[1], nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", errMissingToken
}

// Authenticate validates the request token and returns its claims
func Authenticate(jwtManager *auth.JWTManager, r *http.Request) (*auth.Claims, error) {
	token, err := TokenFromRequest(r)
	if err != nil {
		return nil, err
	}
	return jwtManager.ValidateAccessToken(token)
}

// AuthMiddleware creates JWT authentication middleware
func AuthMiddleware(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := Authenticate(jwtManager, r)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrExpiredToken):
					response.Unauthorized(w, "token has expired")
				case errors.Is(err, auth.ErrInvalidToken):
					response.Unauthorized(w, "invalid token")
				default:
					response.Unauthorized(w, err.Error())
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.UserID, claims.Email)))
		})
	}
}

// WithUser stores the authenticated user on ctx and on the request log
// entry, if one is being recorded.
func WithUser(ctx context.Context, userID, email string) context.Context {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.userID = userID
	}
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, EmailKey, email)
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// GetEmail extracts email from context
func GetEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailKey).(string)
	return email, ok
}
