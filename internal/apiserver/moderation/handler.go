package moderation

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"memoria/internal/apiserver/auth"
	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handler 审核 HTTP 处理器
type Handler struct {
	store   storage.ProfileStore
	service *Service
}

// NewHandler 创建审核处理器
func NewHandler(store storage.ProfileStore, service *Service) *Handler {
	return &Handler{store: store, service: service}
}

// RegisterRoutes 注册学年作用域下的审核路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/{yearId}/profiles", h.List)
	mux.HandleFunc("PATCH /api/admin/{yearId}/profiles/{id}/status", h.UpdateStatus)
	mux.HandleFunc("POST /api/admin/{yearId}/profiles/{id}/approve", h.Approve)
	mux.HandleFunc("POST /api/admin/{yearId}/profiles/{id}/reject", h.Reject)
	mux.HandleFunc("POST /api/admin/{yearId}/profiles/{id}/submit", h.Submit)
}

// ProfileList 档案列表响应
type ProfileList struct {
	Profiles []*model.Profile `json:"profiles"`
	Total    int              `json:"total"`
}

type statusRequest struct {
	Status   model.ProfileStatus `json:"status"`
	Reviewer string              `json:"reviewer"`
	Reason   string              `json:"reason"`
}

// List 按类型、状态、部门、关键字列出档案
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, msg := parseFilter(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	profiles, total, err := h.store.ListProfiles(r.Context(), filter)
	if err != nil {
		log.Printf("[moderation.list.failed] year=%s error=%v", filter.YearID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch profiles")
		return
	}
	if profiles == nil {
		profiles = []*model.Profile{}
	}
	writeJSON(w, http.StatusOK, ProfileList{Profiles: profiles, Total: total})
}

func parseFilter(r *http.Request) (storage.ProfileFilter, string) {
	q := r.URL.Query()
	filter := storage.ProfileFilter{
		YearID:        r.PathValue("yearId"),
		YearLevel:     q.Get("yearLevel"),
		CourseProgram: q.Get("courseProgram"),
		BlockSection:  q.Get("blockSection"),
		Query:         strings.TrimSpace(q.Get("q")),
		UserID:        q.Get("userId"),
		Limit:         defaultListLimit,
	}
	if v := q.Get("type"); v != "" {
		filter.Type = model.ProfileType(v)
		if !filter.Type.Valid() {
			return filter, "Invalid profile type"
		}
	}
	if v := q.Get("status"); v != "" {
		filter.Status = model.ProfileStatus(v)
		if !filter.Status.Valid() {
			return filter, "Invalid status"
		}
	}
	if v := q.Get("department"); v != "" {
		dept, ok := model.ParseDepartment(v)
		if !ok {
			return filter, "Invalid department"
		}
		filter.Department = dept
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, "Invalid limit"
		}
		filter.Limit = min(n, maxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, "Invalid offset"
		}
		filter.Offset = n
	}
	return filter, ""
}

// UpdateStatus 设置档案状态
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Status == "" {
		writeFieldError(w, "Missing required fields: status", []string{"status"})
		return
	}
	h.transition(w, r, req)
}

// Approve 通过档案
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Status = model.ProfileStatusApproved
	h.transition(w, r, req)
}

// Reject 驳回档案
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Status = model.ProfileStatusRejected
	h.transition(w, r, req)
}

// Submit 草稿提交审核，档案所有者也可调用
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("[moderation.submit.failed] id=%s error=%v", r.PathValue("id"), err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch profile")
		return
	}
	if p == nil || p.YearID != r.PathValue("yearId") {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if !auth.CanAccessOwned(r, p.UserID) {
		writeError(w, http.StatusForbidden, "You can only submit your own profile")
		return
	}
	h.transition(w, r, statusRequest{Status: model.ProfileStatusPending, Reviewer: p.UserID})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, req statusRequest) {
	reviewer := strings.TrimSpace(req.Reviewer)
	if u := auth.GetAuthUser(r.Context()); u != nil && u.IsAdmin() {
		reviewer = u.Email
	}
	if reviewer == "" {
		reviewer = auth.Actor(r.Context(), "admin")
	}

	var terr *TransitionError
	res, err := h.service.Transition(r.Context(), TransitionRequest{
		ProfileID: r.PathValue("id"),
		YearID:    r.PathValue("yearId"),
		Status:    req.Status,
		Reviewer:  reviewer,
		Reason:    strings.TrimSpace(req.Reason),
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	case errors.As(err, &terr):
		writeError(w, http.StatusConflict, "Cannot change status from "+string(terr.From)+" to "+string(terr.To))
		return
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, "Profile status was changed by another request")
		return
	default:
		log.Printf("[moderation.transition.failed] id=%s to=%s error=%v", r.PathValue("id"), req.Status, err)
		writeError(w, http.StatusInternalServerError, "Failed to update profile status")
		return
	}
	writeJSON(w, http.StatusOK, res.Profile)
}

// decodeOptional 请求体可以为空，格式错误时返回错误
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
