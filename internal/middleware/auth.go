package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/risklock/livesync/internal/auth"
	"github.com/risklock/livesync/pkg/utils"
)

type contextKey struct{}

// Verifier 校验 bearer token
type Verifier interface {
	Verify(token string) (*auth.Claims, error)
}

// BearerToken 从 "Authorization: Bearer" 头中提取 token
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

// RequireAuth 校验 Bearer token，失败时返回 401
func RequireAuth(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				utils.RespondError(w, http.StatusUnauthorized, "authorization header is required")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, claims)))
		})
	}
}

// RequireStaff 仅允许支持团队角色访问，需要放在 RequireAuth 之后
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok || !claims.IsStaff() {
			utils.RespondError(w, http.StatusForbidden, "not authorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClaimsFrom 返回 RequireAuth 写入 ctx 的 claims
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*auth.Claims)
	return claims, ok
}
