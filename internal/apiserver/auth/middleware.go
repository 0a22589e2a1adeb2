package auth

import (
	"log"
	"net/http"
	"strings"

	"memoria/pkg/logging"
)

// requiresAuth 需要登录的路由
func requiresAuth(method, path string) bool {
	if strings.HasPrefix(path, "/api/admin/") {
		return true
	}
	if method == http.MethodPost && path == "/api/reports" {
		return true
	}
	return method == http.MethodGet && path == "/api/auth/me"
}

// requiresAdmin 需要管理员角色的路由
//
// 普通用户可以读取自己的通知，以及提交、查看、编辑自己的档案；
// 审核、学年、课程、画廊管理、举报、导出、审计均为管理员专属。
func requiresAdmin(method, path string) bool {
	if !strings.HasPrefix(path, "/api/admin/") {
		return false
	}
	rest := strings.TrimPrefix(path, "/api/admin/")
	if rest == "notifications" || strings.HasPrefix(rest, "notifications/") {
		// 创建通知和欢迎通知仅管理员；其余接口由处理器限定在本人范围
		return method == http.MethodPost && (rest == "notifications" || rest == "notifications/welcome")
	}

	segs := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segs) < 2 || segs[1] != "profiles" {
		return true
	}
	switch len(segs) {
	case 2: // /api/admin/{yearId}/profiles
		return method != http.MethodPost
	case 3: // /api/admin/{yearId}/profiles/{id}
		return method != http.MethodGet && method != http.MethodPut
	case 4: // /api/admin/{yearId}/profiles/{id}/submit
		return !(method == http.MethodPost && segs[3] == "submit")
	}
	return true
}

// Middleware 创建 JWT 认证中间件
// 如果 cfg.Enabled() == false，直接放行所有请求（无认证模式）
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 无认证模式：直接放行
			if !cfg.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			// 公开路由：直接放行
			if r.Method == http.MethodOptions || !requiresAuth(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// 提取 Bearer Token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "Invalid authorization header")
				return
			}

			// 解析 JWT
			claims, err := ParseToken(cfg, parts[1])
			if err != nil {
				log.Printf("[auth] token parse error: %v", err)
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			if claims.Type != TokenAccess {
				writeError(w, http.StatusUnauthorized, "Invalid token type")
				return
			}

			user := &AuthUser{
				ID:    claims.Subject,
				Email: claims.Email,
				Role:  claims.Role,
			}
			if requiresAdmin(r.Method, r.URL.Path) && !user.IsAdmin() {
				writeError(w, http.StatusForbidden, "Admin access required")
				return
			}

			ctx := WithAuthUser(r.Context(), user)
			ctx = logging.ContextWithUserID(ctx, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CanAccessOwned 当前用户是否可访问属于 ownerID 的资源
// 无认证模式、管理员和资源所有者返回 true
func CanAccessOwned(r *http.Request, ownerID string) bool {
	user := GetAuthUser(r.Context())
	if user == nil {
		return true
	}
	return user.IsAdmin() || user.ID == ownerID
}
