// Package report 举报与审计日志
package report

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"memoria/internal/apiserver/auth"
	"memoria/internal/apiserver/validation"
	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
)

// Store 举报处理器所需的存储能力
type Store interface {
	storage.ReportStore
	storage.AuditStore
}

// Handler 举报 HTTP 处理器
type Handler struct {
	store Store
}

// NewHandler 创建举报处理器
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册举报路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/reports", h.Create)
	mux.HandleFunc("GET /api/admin/reports", h.List)
	mux.HandleFunc("PATCH /api/admin/reports/{id}", h.UpdateStatus)
	mux.HandleFunc("GET /api/admin/audit-logs", h.AuditLogs)
}

type createRequest struct {
	ReporterID string `json:"reporterId"`
	TargetType string `json:"targetType" validate:"required,oneof=profile media album"`
	TargetID   string `json:"targetId" validate:"notblank"`
	Reason     string `json:"reason" validate:"notblank,max=1000"`
}

type statusRequest struct {
	Status model.ReportStatus `json:"status"`
}

// Create 提交举报，登录用户以 token 身份提交
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validation.Struct(&req); err != nil {
		writeFieldError(w, validation.Message(err), validation.Fields(err))
		return
	}
	if u := auth.GetAuthUser(r.Context()); u != nil {
		req.ReporterID = u.ID
	}
	if strings.TrimSpace(req.ReporterID) == "" {
		writeFieldError(w, "reporterId is required", []string{"reporterId"})
		return
	}

	now := time.Now().UTC()
	rep := &model.Report{
		ID:         generateID("rpt"),
		ReporterID: req.ReporterID,
		TargetType: req.TargetType,
		TargetID:   strings.TrimSpace(req.TargetID),
		Reason:     strings.TrimSpace(req.Reason),
		Status:     model.ReportStatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.store.CreateReport(r.Context(), rep); err != nil {
		log.Printf("[report.create.failed] target=%s/%s error=%v", rep.TargetType, rep.TargetID, err)
		writeError(w, http.StatusInternalServerError, "Failed to submit report")
		return
	}
	log.Printf("[report.create.success] id=%s target=%s/%s", rep.ID, rep.TargetType, rep.TargetID)
	writeJSON(w, http.StatusOK, rep)
}

// List 列出举报，可按 status 过滤
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status := model.ReportStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	reports, err := h.store.ListReports(r.Context(), status)
	if err != nil {
		log.Printf("[report.list.failed] error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch reports")
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// UpdateStatus 处理举报
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.Status.Valid() {
		writeFieldError(w, "status must be open, resolved or dismissed", []string{"status"})
		return
	}

	id := r.PathValue("id")
	if err := h.store.UpdateReportStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Report not found")
			return
		}
		log.Printf("[report.update.failed] id=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to update report")
		return
	}

	h.audit(r.Context(), id, req.Status)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

// AuditLogs 最近的审计日志
func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	logs, err := h.store.ListAuditLogs(r.Context(), limit)
	if err != nil {
		log.Printf("[audit.list.failed] error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch audit logs")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) audit(ctx context.Context, id string, status model.ReportStatus) {
	err := h.store.CreateAuditLog(ctx, &model.AuditLog{
		ID:         generateID("aud"),
		Actor:      auth.Actor(ctx, "admin"),
		Action:     "report." + string(status),
		TargetType: "report",
		TargetID:   id,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[report.audit.failed] id=%s error=%v", id, err)
	}
}
