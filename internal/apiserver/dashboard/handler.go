// Package dashboard 管理端仪表盘统计
package dashboard

import (
	"log"
	"net/http"

	"memoria/internal/apiserver/metrics"
	"memoria/internal/shared/cache"
	"memoria/internal/shared/storage"
)

// Store 仪表盘所需的存储能力
type Store interface {
	storage.ProfileStore
	storage.SchoolYearStore
}

// Handler 仪表盘 HTTP 处理器
type Handler struct {
	store Store
	stats cache.StatsCache
}

// NewHandler 创建仪表盘处理器，stats 为 nil 时每次都实时统计
func NewHandler(store Store, stats cache.StatsCache) *Handler {
	return &Handler{store: store, stats: stats}
}

// RegisterRoutes 注册仪表盘路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/{yearId}/stats", h.Stats)
}

// Stats 学年档案按状态、部门、类型的计数
//
// 先读缓存，未命中时聚合后回填；档案写入会使缓存失效。
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	yearID := r.PathValue("yearId")

	if h.stats != nil {
		cached, err := h.stats.GetStats(ctx, yearID)
		if err != nil {
			log.Printf("[dashboard.cache.read_failed] year=%s error=%v", yearID, err)
		}
		metrics.RecordCacheLookup(cached != nil)
		if cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	year, err := h.store.GetSchoolYear(ctx, yearID)
	if err != nil {
		log.Printf("[dashboard.stats.failed] year=%s error=%v", yearID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}
	if year == nil {
		writeError(w, http.StatusNotFound, "School year not found")
		return
	}

	stats, err := h.store.ProfileStats(ctx, yearID)
	if err != nil {
		log.Printf("[dashboard.stats.failed] year=%s error=%v", yearID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}

	if h.stats != nil {
		if err := h.stats.SetStats(ctx, stats, cache.StatsTTL); err != nil {
			log.Printf("[dashboard.cache.write_failed] year=%s error=%v", yearID, err)
		}
	}
	writeJSON(w, http.StatusOK, stats)
}
