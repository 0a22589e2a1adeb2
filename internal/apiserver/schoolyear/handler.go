// Package schoolyear 学年管理
package schoolyear

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"memoria/internal/apiserver/auth"
	"memoria/internal/apiserver/validation"
	"memoria/internal/shared/eventbus"
	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
)

// Store 学年处理器所需的存储能力
type Store interface {
	storage.SchoolYearStore
	storage.AuditStore
	storage.Transactor
}

// Handler 学年 HTTP 处理器
type Handler struct {
	store Store
	bus   eventbus.InvalidationBus
}

// NewHandler 创建学年处理器
func NewHandler(store Store, bus eventbus.InvalidationBus) *Handler {
	return &Handler{store: store, bus: bus}
}

// RegisterRoutes 注册学年路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/school-years", h.List)
	mux.HandleFunc("GET /api/school-years/active", h.Active)

	mux.HandleFunc("GET /api/admin/school-years", h.List)
	mux.HandleFunc("POST /api/admin/school-years", h.Create)
	mux.HandleFunc("GET /api/admin/school-years/{id}", h.Get)
	mux.HandleFunc("PUT /api/admin/school-years/{id}", h.Update)
	mux.HandleFunc("DELETE /api/admin/school-years/{id}", h.Delete)
	mux.HandleFunc("POST /api/admin/school-years/{id}/activate", h.Activate)
}

// ============================================================================
// 请求类型
// ============================================================================

type yearRequest struct {
	YearLabel string `json:"yearLabel" validate:"notblank,max=50"`
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
	IsActive  bool   `json:"isActive"`
}

// parseDate 接受 2006-01-02 或 RFC3339
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// parse 校验请求并写入 y，失败时已写入响应
func (req *yearRequest) parse(w http.ResponseWriter, y *model.SchoolYear) bool {
	if err := validation.Struct(req); err != nil {
		writeFieldError(w, validation.Message(err), validation.Fields(err))
		return false
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		writeFieldError(w, "Invalid start date", []string{"startDate"})
		return false
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		writeFieldError(w, "Invalid end date", []string{"endDate"})
		return false
	}
	if !end.After(start) {
		writeFieldError(w, "End date must be after start date", []string{"endDate"})
		return false
	}
	y.YearLabel = strings.TrimSpace(req.YearLabel)
	y.StartDate = start
	y.EndDate = end
	return true
}

// ============================================================================
// Handlers
// ============================================================================

// List 列出学年
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	years, err := h.store.ListSchoolYears(r.Context())
	if err != nil {
		log.Printf("[schoolyear.list.failed] error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch school years")
		return
	}
	if years == nil {
		years = []*model.SchoolYear{}
	}
	writeJSON(w, http.StatusOK, years)
}

// Active 当前激活的学年
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	y, err := h.store.GetActiveSchoolYear(r.Context())
	if err != nil {
		log.Printf("[schoolyear.active.failed] error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch school year")
		return
	}
	if y == nil {
		writeError(w, http.StatusNotFound, "No active school year")
		return
	}
	writeJSON(w, http.StatusOK, y)
}

// Get 获取学年
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	y, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, y)
}

// Create 创建学年，isActive 为 true 时同时激活
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req yearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	now := time.Now().UTC()
	y := &model.SchoolYear{ID: generateID("sy"), CreatedAt: now, UpdatedAt: now}
	if !req.parse(w, y) {
		return
	}

	err := h.store.WithTransaction(r.Context(), func(txCtx context.Context) error {
		if err := h.store.CreateSchoolYear(txCtx, y); err != nil {
			return err
		}
		if req.IsActive {
			y.IsActive = true
			return h.store.SetActiveSchoolYear(txCtx, y.ID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "School year already exists")
			return
		}
		log.Printf("[schoolyear.create.failed] label=%s error=%v", y.YearLabel, err)
		writeError(w, http.StatusInternalServerError, "Failed to create school year")
		return
	}

	h.audit(r.Context(), "school_year.created", y)
	eventbus.Notify(r.Context(), h.bus, eventbus.KeySchoolYearUpdated, y.ID, "")
	writeJSON(w, http.StatusOK, y)
}

// Update 修改学年名称和起止日期
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req yearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	y, ok := h.load(w, r)
	if !ok {
		return
	}
	if !req.parse(w, y) {
		return
	}
	y.UpdatedAt = time.Now().UTC()

	if err := h.store.UpdateSchoolYear(r.Context(), y); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "School year not found")
		case errors.Is(err, storage.ErrDuplicate):
			writeError(w, http.StatusConflict, "School year already exists")
		default:
			log.Printf("[schoolyear.update.failed] id=%s error=%v", y.ID, err)
			writeError(w, http.StatusInternalServerError, "Failed to update school year")
		}
		return
	}

	eventbus.Notify(r.Context(), h.bus, eventbus.KeySchoolYearUpdated, y.ID, "")
	writeJSON(w, http.StatusOK, y)
}

// Delete 删除学年，激活中的学年不能删除
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	y, ok := h.load(w, r)
	if !ok {
		return
	}
	if y.IsActive {
		writeError(w, http.StatusBadRequest, "Cannot delete the active school year")
		return
	}

	if err := h.store.DeleteSchoolYear(r.Context(), y.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "School year not found")
			return
		}
		log.Printf("[schoolyear.delete.failed] id=%s error=%v", y.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete school year")
		return
	}

	h.audit(r.Context(), "school_year.deleted", y)
	eventbus.Notify(r.Context(), h.bus, eventbus.KeySchoolYearUpdated, y.ID, "")
	writeJSON(w, http.StatusOK, map[string]string{"id": y.ID})
}

// Activate 激活学年，其他学年同时取消激活
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.SetActiveSchoolYear(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "School year not found")
			return
		}
		log.Printf("[schoolyear.activate.failed] id=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to activate school year")
		return
	}

	y, ok := h.load(w, r)
	if !ok {
		return
	}
	h.audit(r.Context(), "school_year.activated", y)
	eventbus.Notify(r.Context(), h.bus, eventbus.KeySchoolYearUpdated, y.ID, "")
	log.Printf("[schoolyear.activate.success] id=%s label=%s", y.ID, y.YearLabel)
	writeJSON(w, http.StatusOK, y)
}

// ============================================================================
// 工具函数
// ============================================================================

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*model.SchoolYear, bool) {
	id := r.PathValue("id")
	y, err := h.store.GetSchoolYear(r.Context(), id)
	if err != nil {
		log.Printf("[schoolyear.get.failed] id=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch school year")
		return nil, false
	}
	if y == nil {
		writeError(w, http.StatusNotFound, "School year not found")
		return nil, false
	}
	return y, true
}

// audit 审计失败只记录日志
func (h *Handler) audit(ctx context.Context, action string, y *model.SchoolYear) {
	err := h.store.CreateAuditLog(ctx, &model.AuditLog{
		ID:         generateID("aud"),
		Actor:      auth.Actor(ctx, "admin"),
		Action:     action,
		TargetType: "school_year",
		TargetID:   y.ID,
		Details:    map[string]string{"yearLabel": y.YearLabel},
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[schoolyear.audit.failed] action=%s id=%s error=%v", action, y.ID, err)
	}
}
