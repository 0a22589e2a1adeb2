// Package notification 管理员通知
package notification

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"memoria/internal/apiserver/auth"
	"memoria/internal/apiserver/metrics"
	"memoria/internal/apiserver/validation"
	"memoria/internal/shared/cache"
	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
)

// Handler 通知 HTTP 处理器
type Handler struct {
	store   storage.NotificationStore
	welcome cache.WelcomeTracker
}

// NewHandler 创建通知处理器
func NewHandler(store storage.NotificationStore, welcome cache.WelcomeTracker) *Handler {
	return &Handler{store: store, welcome: welcome}
}

// RegisterRoutes 注册通知路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/notifications", h.List)
	mux.HandleFunc("POST /api/admin/notifications", h.Create)
	mux.HandleFunc("DELETE /api/admin/notifications", h.DeleteAll)
	mux.HandleFunc("GET /api/admin/notifications/unread-count", h.UnreadCount)
	mux.HandleFunc("POST /api/admin/notifications/mark-all-read", h.MarkAllRead)
	mux.HandleFunc("POST /api/admin/notifications/welcome", h.Welcome)
	mux.HandleFunc("PATCH /api/admin/notifications/{id}", h.SetRead)
	mux.HandleFunc("DELETE /api/admin/notifications/{id}", h.Delete)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type createRequest struct {
	UserID    string                     `json:"userId" validate:"omitempty,max=254"`
	Type      string                     `json:"type" validate:"omitempty,oneof=info success warning error"`
	Title     string                     `json:"title" validate:"notblank,max=200"`
	Message   string                     `json:"message" validate:"notblank,max=2000"`
	Priority  model.NotificationPriority `json:"priority" validate:"omitempty,oneof=low medium high"`
	Category  string                     `json:"category" validate:"omitempty,max=50"`
	ActionURL string                     `json:"actionUrl" validate:"omitempty,max=2048"`
	Metadata  map[string]string          `json:"metadata"`
}

type readRequest struct {
	Read *bool `json:"read"`
}

type scopeRequest struct {
	UserID string `json:"userId"`
}

type welcomeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ListResponse 通知列表
type ListResponse struct {
	Notifications []*model.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

// ============================================================================
// Handlers
// ============================================================================

// List 列出通知
//
// 管理员的范围为 userId 加上发给所有人的通知；普通用户只看到发给自己的。
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sc := scope(r, q.Get("userId"))
	filter := storage.NotificationFilter{
		UserID:   sc.UserID,
		OwnOnly:  sc.OwnOnly,
		Category: q.Get("category"),
	}
	if v := q.Get("unreadOnly"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid unreadOnly")
			return
		}
		filter.UnreadOnly = b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = n
	}

	list, err := h.store.ListNotifications(r.Context(), filter)
	if err != nil {
		log.Printf("[notification.list.failed] user=%s error=%v", filter.UserID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch notifications")
		return
	}
	unread, err := h.store.CountUnreadNotifications(r.Context(), sc)
	if err != nil {
		log.Printf("[notification.list.failed] count error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch notifications")
		return
	}
	if list == nil {
		list = []*model.Notification{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Notifications: list, UnreadCount: unread})
}

// Create 创建通知，仅管理员
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !adminOnly(w, r) {
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validation.Struct(req); err != nil {
		writeFieldError(w, validation.Message(err), validation.Fields(err))
		return
	}

	n := &model.Notification{
		ID:        generateID("ntf"),
		UserID:    strings.TrimSpace(req.UserID),
		Type:      req.Type,
		Title:     strings.TrimSpace(req.Title),
		Message:   strings.TrimSpace(req.Message),
		Timestamp: time.Now().UTC(),
		Priority:  req.Priority,
		Category:  req.Category,
		ActionURL: req.ActionURL,
		Metadata:  req.Metadata,
	}
	if n.UserID == "" {
		n.UserID = model.NotificationAudienceAll
	}
	if n.Type == "" {
		n.Type = model.NotificationTypeInfo
	}
	if n.Priority == "" {
		n.Priority = model.NotificationPriorityMedium
	}
	if n.Category == "" {
		n.Category = model.NotificationCategorySystem
	}

	if err := h.store.CreateNotification(r.Context(), n); err != nil {
		log.Printf("[notification.create.failed] error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create notification")
		return
	}
	metrics.RecordNotification(n.Category)
	writeJSON(w, http.StatusOK, n)
}

// SetRead 标记已读/未读
func (h *Handler) SetRead(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Read == nil {
		writeFieldError(w, "Missing required fields: read", []string{"read"})
		return
	}

	n, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.store.SetNotificationRead(r.Context(), n.ID, *req.Read); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Notification not found")
			return
		}
		log.Printf("[notification.read.failed] id=%s error=%v", n.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to update notification")
		return
	}
	n.Read = *req.Read
	writeJSON(w, http.StatusOK, n)
}

// MarkAllRead 标记范围内所有通知为已读
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	var req scopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sc := scope(r, req.UserID)

	updated, err := h.store.MarkAllNotificationsRead(r.Context(), sc)
	if err != nil {
		log.Printf("[notification.mark_all.failed] user=%s error=%v", sc.UserID, err)
		writeError(w, http.StatusInternalServerError, "Failed to mark notifications as read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated, "unreadCount": 0})
}

// UnreadCount 未读数量
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	sc := scope(r, r.URL.Query().Get("userId"))
	n, err := h.store.CountUnreadNotifications(r.Context(), sc)
	if err != nil {
		log.Printf("[notification.count.failed] user=%s error=%v", sc.UserID, err)
		writeError(w, http.StatusInternalServerError, "Failed to count notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": n})
}

// Delete 删除单条通知
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	n, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteNotification(r.Context(), n.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Notification not found")
			return
		}
		log.Printf("[notification.delete.failed] id=%s error=%v", n.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete notification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": n.ID})
}

// DeleteAll 删除发给某个用户的全部通知
func (h *Handler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	userID := scope(r, r.URL.Query().Get("userId")).UserID
	if userID == "" {
		writeFieldError(w, "Missing required fields: userId", []string{"userId"})
		return
	}
	deleted, err := h.store.DeleteAllNotifications(r.Context(), userID)
	if err != nil {
		log.Printf("[notification.delete_all.failed] user=%s error=%v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// Welcome 每个管理员邮箱最多创建一次欢迎通知
//
// 先写入通知再记录已欢迎：写入失败时不记录，下次请求重试。
// 已欢迎过但本次新插入了通知（管理员删过欢迎通知）时撤回这条通知。
func (h *Handler) Welcome(w http.ResponseWriter, r *http.Request) {
	if !adminOnly(w, r) {
		return
	}
	var req welcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validation.Struct(req); err != nil {
		writeFieldError(w, validation.Message(err), validation.Fields(err))
		return
	}

	n := WelcomeNotification(req.Email, time.Now().UTC())
	err := h.store.CreateNotification(r.Context(), n)
	inserted := err == nil
	if err := storage.IgnoreDuplicate(err); err != nil {
		log.Printf("[notification.welcome.failed] email=%s error=%v", req.Email, err)
		writeError(w, http.StatusInternalServerError, "Failed to create welcome notification")
		return
	}
	first, err := h.welcome.MarkWelcomed(r.Context(), req.Email)
	if err != nil {
		log.Printf("[notification.welcome.failed] email=%s error=%v", req.Email, err)
		writeError(w, http.StatusInternalServerError, "Failed to create welcome notification")
		return
	}
	if !first {
		if inserted {
			if err := h.store.DeleteNotification(r.Context(), n.ID); err != nil {
				log.Printf("[notification.welcome.failed] email=%s revert error=%v", req.Email, err)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"created": false})
		return
	}
	metrics.RecordNotification(n.Category)
	log.Printf("[notification.welcome.created] email=%s", req.Email)
	writeJSON(w, http.StatusOK, map[string]any{"created": true, "notification": n})
}

// WelcomeNotification 管理员首次登录的欢迎通知
func WelcomeNotification(email string, now time.Time) *model.Notification {
	return &model.Notification{
		ID:        "ntf-welcome-" + email,
		UserID:    email,
		Type:      model.NotificationTypeSuccess,
		Title:     "Welcome to Memoria",
		Message:   "You can review pending yearbook profiles from the moderation queue.",
		Timestamp: now,
		Priority:  model.NotificationPriorityLow,
		Category:  model.NotificationCategoryWelcome,
	}
}

// ============================================================================
// 工具函数
// ============================================================================

// scope 普通用户只能访问发给自己的通知，管理员按请求参数
func scope(r *http.Request, requested string) storage.NotificationScope {
	if u := auth.GetAuthUser(r.Context()); u != nil && !u.IsAdmin() {
		return storage.NotificationScope{UserID: u.ID, OwnOnly: true}
	}
	return storage.NotificationScope{UserID: strings.TrimSpace(requested)}
}

// adminOnly 已登录的普通用户返回 403；无认证模式放行
func adminOnly(w http.ResponseWriter, r *http.Request) bool {
	if u := auth.GetAuthUser(r.Context()); u != nil && !u.IsAdmin() {
		writeError(w, http.StatusForbidden, "Admin access required")
		return false
	}
	return true
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*model.Notification, bool) {
	id := r.PathValue("id")
	n, err := h.store.GetNotification(r.Context(), id)
	if err != nil {
		log.Printf("[notification.get.failed] id=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch notification")
		return nil, false
	}
	if n == nil || !auth.CanAccessOwned(r, n.UserID) {
		writeError(w, http.StatusNotFound, "Notification not found")
		return nil, false
	}
	return n, true
}
