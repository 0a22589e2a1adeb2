// Package profile 年鉴档案提交与维护
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"memoria/internal/apiserver/auth"
	"memoria/internal/apiserver/metrics"
	"memoria/internal/apiserver/moderation"
	"memoria/internal/shared/cache"
	"memoria/internal/shared/eventbus"
	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
)

// Store 档案处理器所需的存储能力
type Store interface {
	storage.ProfileStore
	storage.SchoolYearStore
	storage.NotificationStore
	storage.AuditStore
	storage.Transactor
}

// Handler 档案 HTTP 处理器
type Handler struct {
	store Store
	stats cache.StatsCache
	bus   eventbus.InvalidationBus
}

// NewHandler 创建档案处理器，stats 和 bus 可以为 nil
func NewHandler(store Store, stats cache.StatsCache, bus eventbus.InvalidationBus) *Handler {
	return &Handler{store: store, stats: stats, bus: bus}
}

// RegisterRoutes 注册学年作用域下的档案路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/admin/{yearId}/profiles", h.Create)
	mux.HandleFunc("GET /api/admin/{yearId}/profiles/{id}", h.Get)
	mux.HandleFunc("PUT /api/admin/{yearId}/profiles/{id}", h.Update)
	mux.HandleFunc("DELETE /api/admin/{yearId}/profiles/{id}", h.Delete)
}

// ============================================================================
// 请求类型
// ============================================================================

type createRequest struct {
	UserID string              `json:"userId"`
	Type   model.ProfileType   `json:"type"`
	Data   map[string]any      `json:"data"`
	Status model.ProfileStatus `json:"status"`
}

type updateRequest struct {
	Data map[string]any `json:"data"`
}

// ============================================================================
// Handlers
// ============================================================================

// Create 提交档案
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	yearID := r.PathValue("yearId")

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	// 普通用户只能为自己提交
	if u := auth.GetAuthUser(r.Context()); u != nil && !u.IsAdmin() {
		req.UserID = u.ID
	}
	req.UserID = strings.TrimSpace(req.UserID)

	var missing []string
	if req.UserID == "" {
		missing = append(missing, "userId")
	}
	if req.Type == "" {
		missing = append(missing, "type")
	}
	if req.Data == nil {
		missing = append(missing, "data")
	}
	if len(missing) > 0 {
		writeFieldError(w, "Missing required fields: "+strings.Join(missing, ", "), missing)
		return
	}

	if req.Status == "" {
		req.Status = model.ProfileStatusPending
	}
	if req.Status != model.ProfileStatusDraft && req.Status != model.ProfileStatusPending {
		writeFieldError(w, "Status must be draft or pending", []string{"status"})
		return
	}

	data, err := ValidateData(req.Type, req.Data)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	year, err := h.store.GetSchoolYear(r.Context(), yearID)
	if err != nil {
		log.Printf("[profile.create.failed] year=%s error=%v", yearID, err)
		writeError(w, http.StatusInternalServerError, "Failed to create profile")
		return
	}
	if year == nil {
		writeError(w, http.StatusNotFound, "School year not found")
		return
	}

	now := time.Now().UTC()
	p := &model.Profile{
		ID:        generateID("prf"),
		UserID:    req.UserID,
		Type:      req.Type,
		Status:    req.Status,
		YearID:    yearID,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Status == model.ProfileStatusPending {
		p.SubmittedAt = &now
	}
	if err := p.Normalize(); err != nil {
		writeFieldError(w, "Invalid department", []string{"department"})
		return
	}

	err = h.store.WithTransaction(r.Context(), func(txCtx context.Context) error {
		if err := h.store.CreateProfile(txCtx, p); err != nil {
			return err
		}
		if n := moderation.TransitionNotice(p); n != nil {
			return storage.IgnoreDuplicate(h.store.CreateNotification(txCtx, n))
		}
		return nil
	})
	if err != nil {
		log.Printf("[profile.create.failed] year=%s type=%s error=%v", yearID, p.Type, err)
		writeError(w, http.StatusInternalServerError, "Failed to create profile")
		return
	}

	metrics.RecordSubmission(string(p.Type), string(p.Status))
	if p.Status == model.ProfileStatusPending {
		metrics.RecordNotification(model.NotificationCategorySubmission)
	}
	h.changed(r.Context(), p)
	log.Printf("[profile.create.success] id=%s year=%s type=%s status=%s", p.ID, yearID, p.Type, p.Status)
	writeJSON(w, http.StatusOK, p)
}

// Get 获取档案
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Update 替换档案内容，仅草稿或待审核状态可编辑
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Data == nil {
		writeFieldError(w, "Missing required fields: data", []string{"data"})
		return
	}

	p, ok := h.load(w, r)
	if !ok {
		return
	}
	if p.Status.IsTerminal() {
		writeError(w, http.StatusConflict, "Only draft or pending profiles can be edited")
		return
	}

	data, err := ValidateData(p.Type, req.Data)
	if err != nil {
		writeValidationError(w, err)
		return
	}
	p.Data = data
	p.UpdatedAt = time.Now().UTC()
	if err := p.Normalize(); err != nil {
		writeFieldError(w, "Invalid department", []string{"department"})
		return
	}

	if err := h.store.UpdateProfileData(r.Context(), p); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		log.Printf("[profile.update.failed] id=%s error=%v", p.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	h.changed(r.Context(), p)
	writeJSON(w, http.StatusOK, p)
}

// Delete 删除档案
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}

	actor := auth.Actor(r.Context(), "admin")
	err := h.store.WithTransaction(r.Context(), func(txCtx context.Context) error {
		if err := h.store.DeleteProfile(txCtx, p.ID); err != nil {
			return err
		}
		return h.store.CreateAuditLog(txCtx, &model.AuditLog{
			ID:         generateID("aud"),
			Actor:      actor,
			Action:     "profile.deleted",
			TargetType: "profile",
			TargetID:   p.ID,
			Details:    map[string]string{"yearId": p.YearID, "name": p.DisplayName(), "status": string(p.Status)},
			CreatedAt:  time.Now().UTC(),
		})
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		log.Printf("[profile.delete.failed] id=%s error=%v", p.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete profile")
		return
	}

	h.changed(r.Context(), p)
	log.Printf("[profile.delete.success] id=%s actor=%s", p.ID, actor)
	writeJSON(w, http.StatusOK, map[string]string{"id": p.ID})
}

// ============================================================================
// 工具函数
// ============================================================================

// load 读取路径中的档案并检查学年与访问权限，失败时已写入响应
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*model.Profile, bool) {
	id := r.PathValue("id")
	p, err := h.store.GetProfile(r.Context(), id)
	if err != nil {
		log.Printf("[profile.get.failed] id=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch profile")
		return nil, false
	}
	if p == nil || p.YearID != r.PathValue("yearId") {
		writeError(w, http.StatusNotFound, "Profile not found")
		return nil, false
	}
	if !auth.CanAccessOwned(r, p.UserID) {
		writeError(w, http.StatusForbidden, "You can only access your own profile")
		return nil, false
	}
	return p, true
}

// changed 档案写入后使统计缓存失效并通知客户端刷新
func (h *Handler) changed(ctx context.Context, p *model.Profile) {
	if h.stats != nil {
		if err := h.stats.InvalidateStats(ctx, p.YearID); err != nil {
			log.Printf("[profile.stats.invalidate_failed] year=%s error=%v", p.YearID, err)
		}
	}
	eventbus.Notify(ctx, h.bus, eventbus.KeyYearbookProfileChanged, p.YearID, string(p.Department))
}

func writeValidationError(w http.ResponseWriter, err error) {
	var fe *FieldError
	if errors.As(err, &fe) {
		writeFieldError(w, fe.Message, fe.Fields)
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}
