package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/example/rocketshoes-cart/internal/auth"
)

// ExtractToken extracts the JWT from the access_token cookie or the
// Authorization header, in that order.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

type contextKey string

const (
	UserContextKey      contextKey = "user"
	ShopperContextKey   contextKey = "shopper"
	RequestIDContextKey contextKey = "request_id"
)

// UserIDHeader names the shopper when the service runs without JWT.
const UserIDHeader = "X-User-ID"

// OptionalAuth resolves the shopper of each request. With a JWT service the
// shopper is the token's user, or anonymous when the token is missing or
// invalid; X-User-ID is ignored. Without one, X-User-ID names the shopper.
func OptionalAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			shopper := ""

			if jwtService != nil {
				if tokenString := ExtractToken(r); tokenString != "" {
					if claims, err := jwtService.ValidateToken(tokenString); err == nil {
						ctx = context.WithValue(ctx, UserContextKey, claims)
						shopper = claims.UserID
					}
				}
			} else {
				shopper = r.Header.Get(UserIDHeader)
			}

			ctx = context.WithValue(ctx, ShopperContextKey, shopper)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext retrieves shopper claims from the request context
func GetUserFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*auth.Claims)
	return claims, ok
}

// GetUserID returns the authenticated shopper id, or "" when there is none.
func GetUserID(ctx context.Context) string {
	claims, ok := GetUserFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.UserID
}

// GetShopperID returns the shopper OptionalAuth resolved; "" is anonymous.
func GetShopperID(ctx context.Context) string {
	id, _ := ctx.Value(ShopperContextKey).(string)
	return id
}
