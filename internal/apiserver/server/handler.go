// Package server 路由配置与核心基础设施
//
// 本文件把各领域包的路由挂到同一个 ServeMux 上，并套上指标、认证、CORS 中间件。
//   - openapi.go: 内嵌 OpenAPI 文档
//   - websocket.go: 失效事件 WebSocket 网关
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"memoria/internal/apiserver/auth"
	"memoria/internal/apiserver/course"
	"memoria/internal/apiserver/dashboard"
	"memoria/internal/apiserver/export"
	"memoria/internal/apiserver/gallery"
	"memoria/internal/apiserver/metrics"
	"memoria/internal/apiserver/moderation"
	"memoria/internal/apiserver/notification"
	"memoria/internal/apiserver/profile"
	"memoria/internal/apiserver/report"
	"memoria/internal/apiserver/schoolyear"
	"memoria/internal/apiserver/yearbook"
	"memoria/internal/shared/cache"
	"memoria/internal/shared/eventbus"
	"memoria/internal/shared/mailer"
	"memoria/internal/shared/storage"
)

// Deps Handler 的依赖
//
// Objects 为 nil 时导出接口返回 503；Cache 为 nil 时回落到持久化存储。
type Deps struct {
	Store       storage.PersistentStore
	Cache       cache.Cache
	Bus         eventbus.InvalidationBus
	Mailer      mailer.Mailer
	Objects     export.ObjectStore
	Auth        auth.Config
	CORSOrigins []string
}

// Handler API 入口
type Handler struct {
	deps    Deps
	gateway *InvalidationGateway
}

// NewHandler 创建 Handler 实例
func NewHandler(deps Deps) *Handler {
	if deps.Cache == nil && deps.Store != nil {
		deps.Cache = cache.NewStoreCache(deps.Store)
	}
	return &Handler{
		deps:    deps,
		gateway: NewInvalidationGateway(deps.Bus),
	}
}

// Gateway 失效事件网关
func (h *Handler) Gateway() *InvalidationGateway {
	return h.gateway
}

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 公开:
//   - GET  /health, /metrics, /api/openapi.json, /docs
//   - POST /api/auth, /api/auth/refresh
//   - GET  /api/yearbook, /api/school-years, /api/courses, /api/sections
//   - GET  /api/gallery/albums[/{id}], POST /api/gallery/media/{id}/like
//
// 管理（/api/admin/...）:
//   - 学年、通知、画廊、课程、举报、审计日志挂在主路由
//   - /api/admin/{yearId}/... 的档案、审核、统计、导出挂在学年子路由
//
// WebSocket:
//   - GET /ws/invalidations?keys=a,b
func (h *Handler) Router() http.Handler {
	d := h.deps
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/openapi.json", h.OpenAPI)
	mux.HandleFunc("GET /docs", h.Docs)

	auth.NewHandler(d.Store, d.Mailer, d.Auth).RegisterRoutes(mux)
	yearbook.NewHandler(d.Store).RegisterRoutes(mux)
	schoolyear.NewHandler(d.Store, d.Bus).RegisterRoutes(mux)
	notification.NewHandler(d.Store, d.Cache).RegisterRoutes(mux)
	gallery.NewHandler(d.Store).RegisterRoutes(mux)
	course.NewHandler(d.Store, d.Bus).RegisterRoutes(mux)
	report.NewHandler(d.Store).RegisterRoutes(mux)

	// /api/admin/{yearId}/... 与 /api/admin/school-years/{id} 等同层路由
	// 在同一个 ServeMux 中会冲突，单独放到子路由
	yearMux := http.NewServeMux()
	service := moderation.NewService(d.Store, d.Cache, d.Bus)
	profile.NewHandler(d.Store, d.Cache, d.Bus).RegisterRoutes(yearMux)
	moderation.NewHandler(d.Store, service).RegisterRoutes(yearMux)
	dashboard.NewHandler(d.Store, d.Cache).RegisterRoutes(yearMux)
	export.NewHandler(d.Store, d.Objects).RegisterRoutes(yearMux)
	mux.Handle("/api/admin/", yearMux)

	// 应用指标中间件到 REST API
	apiHandler := metrics.Middleware(mux)

	// 应用认证中间件（未配置 JWT_SECRET 时不启用）
	if d.Auth.Enabled() {
		apiHandler = auth.Middleware(d.Auth)(apiHandler)
	} else {
		log.Printf("[Server] JWT_SECRET not set, admin routes are unauthenticated")
	}

	corsHandler := corsMiddleware(d.CORSOrigins)(apiHandler)

	// WebSocket 绕过 metrics 中间件（避免 http.Hijacker 问题）
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /ws/invalidations", h.gateway.HandleWebSocket)
	topMux.Handle("/", corsHandler)
	return topMux
}

// Health 健康检查
//
// 存储不可达时返回 503，供负载均衡器摘除实例。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if h.deps.Store != nil {
		if err := h.deps.Store.Ping(ctx); err != nil {
			log.Printf("[Server] health check failed: %v", err)
			status, code = "unavailable", http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"wsClients": h.gateway.ClientCount(),
		"checkedAt": time.Now().UTC(),
	})
}

// corsMiddleware 添加 CORS 头，origins 为空时允许所有来源
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case len(allowed) == 0:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
