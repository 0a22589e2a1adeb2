package main

import (
	"io/fs"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"
)

// isBackendPath API、WebSocket、文档和监控端点由 Go 处理
func isBackendPath(p string) bool {
	return strings.HasPrefix(p, "/api/") ||
		strings.HasPrefix(p, "/ws/") ||
		strings.HasPrefix(p, "/docs") ||
		p == "/health" ||
		p == "/metrics"
}

// newSPAHandler 同时提供 API 和前端构建产物
//
// 优先级：
//  1. 后端路由 → apiHandler
//  2. 静态文件精确匹配（JS/CSS/图片等）
//  3. 兜底 → index.html，由前端路由接管
//
// 兜底不能使用 http.FileServer，FileServer 对 /index.html 会 301 到 ./，
// 非根路径会无限重定向。
func newSPAHandler(apiHandler http.Handler, staticFS fs.FS) (http.Handler, error) {
	indexHTML, err := fs.ReadFile(staticFS, "index.html")
	if err != nil {
		return nil, err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isBackendPath(r.URL.Path) {
			apiHandler.ServeHTTP(w, r)
			return
		}

		cleanPath := path.Clean(r.URL.Path)
		if cleanPath != "/" && fileExists(staticFS, cleanPath) {
			fileServer.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(indexHTML)
	}), nil
}

// fileExists 文件存在且不是目录
func fileExists(fsys fs.FS, filePath string) bool {
	name := strings.TrimPrefix(filePath, "/")
	if name == "" {
		return false
	}
	stat, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	return !stat.IsDir()
}

// newDevHandler 开发模式：后端路由由 Go 处理，其余反向代理到前端 dev server
//
//	Browser → http://localhost:8080 (Go)
//	          ├── /api/*, /ws/*, /docs, /health, /metrics → Go
//	          └── /*  → reverse proxy → DEV_FRONTEND_URL
func newDevHandler(apiHandler http.Handler, frontendAddr string) (http.Handler, error) {
	target, err := url.Parse(frontendAddr)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
	}
	log.Printf("[dev] Reverse proxy: non-API routes → %s", frontendAddr)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isBackendPath(r.URL.Path) {
			apiHandler.ServeHTTP(w, r)
			return
		}
		proxy.ServeHTTP(w, r)
	}), nil
}
