// Package gallery 画廊相册与媒体
package gallery

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"memoria/internal/apiserver/auth"
	"memoria/internal/apiserver/validation"
	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
)

// Handler 画廊 HTTP 处理器
type Handler struct {
	store storage.GalleryStore
}

// NewHandler 创建画廊处理器
func NewHandler(store storage.GalleryStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册画廊路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// 公开
	mux.HandleFunc("GET /api/gallery/albums", h.ListPublic)
	mux.HandleFunc("GET /api/gallery/albums/{id}", h.GetPublic)
	mux.HandleFunc("POST /api/gallery/media/{id}/like", h.Like)

	// 管理
	mux.HandleFunc("GET /api/admin/gallery/albums", h.ListAll)
	mux.HandleFunc("POST /api/admin/gallery/albums", h.CreateAlbum)
	mux.HandleFunc("GET /api/admin/gallery/albums/{id}", h.GetAdmin)
	mux.HandleFunc("PUT /api/admin/gallery/albums/{id}", h.UpdateAlbum)
	mux.HandleFunc("DELETE /api/admin/gallery/albums/{id}", h.DeleteAlbum)
	mux.HandleFunc("POST /api/admin/gallery/albums/{id}/media", h.AddMedia)
	mux.HandleFunc("PATCH /api/admin/gallery/media/{id}", h.SetMediaStatus)
	mux.HandleFunc("DELETE /api/admin/gallery/media/{id}", h.DeleteMedia)
}

// ============================================================================
// 请求类型
// ============================================================================

type albumRequest struct {
	Title       string   `json:"title" validate:"notblank,max=200"`
	Description string   `json:"description" validate:"max=2000"`
	Category    string   `json:"category" validate:"notblank,max=100"`
	Tags        []string `json:"tags" validate:"max=20,dive,notblank"`
	IsPublic    bool     `json:"isPublic"`
	CoverURL    string   `json:"coverUrl" validate:"omitempty,url"`
	YearID      string   `json:"yearId"`
}

func (req *albumRequest) apply(a *model.Album) {
	a.Title = strings.TrimSpace(req.Title)
	a.Description = strings.TrimSpace(req.Description)
	a.Category = strings.TrimSpace(req.Category)
	a.Tags = req.Tags
	if a.Tags == nil {
		a.Tags = []string{}
	}
	a.IsPublic = req.IsPublic
	a.CoverURL = req.CoverURL
	a.YearID = req.YearID
}

type mediaRequest struct {
	URL          string `json:"url" validate:"required,url"`
	ThumbnailURL string `json:"thumbnailUrl" validate:"omitempty,url"`
	Caption      string `json:"caption" validate:"max=500"`
}

type statusRequest struct {
	Status model.MediaStatus `json:"status"`
}

type likeRequest struct {
	UserID string `json:"userId"`
}

// LikeResult 点赞切换结果
type LikeResult struct {
	Liked bool `json:"liked"`
	Likes int  `json:"likes"`
}

// ============================================================================
// 公开接口
// ============================================================================

// ListPublic 公开相册，支持 category、tag 过滤
func (h *Handler) ListPublic(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

// ListAll 全部相册（管理端）
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, publicOnly bool) {
	q := r.URL.Query()
	albums, err := h.store.ListAlbums(r.Context(), storage.AlbumFilter{
		Category:   q.Get("category"),
		Tag:        q.Get("tag"),
		YearID:     q.Get("yearId"),
		PublicOnly: publicOnly,
	})
	if err != nil {
		log.Printf("[gallery.list.failed] error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch albums")
		return
	}
	writeJSON(w, http.StatusOK, albums)
}

// GetPublic 公开相册详情，只包含 active 媒体
func (h *Handler) GetPublic(w http.ResponseWriter, r *http.Request) {
	a, ok := h.loadAlbum(w, r)
	if !ok {
		return
	}
	if !a.IsPublic {
		writeError(w, http.StatusNotFound, "Album not found")
		return
	}
	h.writeDetail(w, r, a, model.MediaStatusActive)
}

// GetAdmin 相册详情，包含隐藏媒体
func (h *Handler) GetAdmin(w http.ResponseWriter, r *http.Request) {
	a, ok := h.loadAlbum(w, r)
	if !ok {
		return
	}
	h.writeDetail(w, r, a, "")
}

func (h *Handler) writeDetail(w http.ResponseWriter, r *http.Request, a *model.Album, status model.MediaStatus) {
	media, err := h.store.ListMediaItems(r.Context(), a.ID, status)
	if err != nil {
		log.Printf("[gallery.media.list.failed] album=%s error=%v", a.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch media")
		return
	}
	if media == nil {
		media = []*model.MediaItem{}
	}
	writeJSON(w, http.StatusOK, model.AlbumDetail{Album: a, Media: media})
}

// Like 切换点赞，登录用户以 token 身份点赞
func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	var req likeRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if u := auth.GetAuthUser(r.Context()); u != nil {
		req.UserID = u.ID
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeFieldError(w, "userId is required", []string{"userId"})
		return
	}

	mediaID := r.PathValue("id")
	m, err := h.store.GetMediaItem(r.Context(), mediaID)
	if err != nil {
		log.Printf("[gallery.like.failed] media=%s error=%v", mediaID, err)
		writeError(w, http.StatusInternalServerError, "Failed to update like")
		return
	}
	if m == nil || m.Status != model.MediaStatusActive {
		writeError(w, http.StatusNotFound, "Media not found")
		return
	}

	liked, likes, err := h.store.ToggleMediaLike(r.Context(), mediaID, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Media not found")
			return
		}
		log.Printf("[gallery.like.failed] media=%s user=%s error=%v", mediaID, req.UserID, err)
		writeError(w, http.StatusInternalServerError, "Failed to update like")
		return
	}
	writeJSON(w, http.StatusOK, LikeResult{Liked: liked, Likes: likes})
}

// ============================================================================
// 管理接口
// ============================================================================

// CreateAlbum 创建相册
func (h *Handler) CreateAlbum(w http.ResponseWriter, r *http.Request) {
	var req albumRequest
	if !decodeValid(w, r, &req) {
		return
	}
	now := time.Now().UTC()
	a := &model.Album{
		ID:        generateID("alb"),
		CreatedBy: auth.Actor(r.Context(), ""),
		CreatedAt: now,
		UpdatedAt: now,
	}
	req.apply(a)

	if err := h.store.CreateAlbum(r.Context(), a); err != nil {
		log.Printf("[gallery.album.create.failed] title=%s error=%v", a.Title, err)
		writeError(w, http.StatusInternalServerError, "Failed to create album")
		return
	}
	log.Printf("[gallery.album.create.success] id=%s title=%s public=%v", a.ID, a.Title, a.IsPublic)
	writeJSON(w, http.StatusOK, a)
}

// UpdateAlbum 更新相册信息
func (h *Handler) UpdateAlbum(w http.ResponseWriter, r *http.Request) {
	var req albumRequest
	if !decodeValid(w, r, &req) {
		return
	}
	a, ok := h.loadAlbum(w, r)
	if !ok {
		return
	}
	req.apply(a)
	a.UpdatedAt = time.Now().UTC()

	if err := h.store.UpdateAlbum(r.Context(), a); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Album not found")
			return
		}
		log.Printf("[gallery.album.update.failed] id=%s error=%v", a.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to update album")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DeleteAlbum 删除相册及其媒体
func (h *Handler) DeleteAlbum(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteAlbum(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Album not found")
			return
		}
		log.Printf("[gallery.album.delete.failed] id=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete album")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// AddMedia 向相册添加媒体
func (h *Handler) AddMedia(w http.ResponseWriter, r *http.Request) {
	var req mediaRequest
	if !decodeValid(w, r, &req) {
		return
	}
	a, ok := h.loadAlbum(w, r)
	if !ok {
		return
	}
	m := &model.MediaItem{
		ID:           generateID("med"),
		AlbumID:      a.ID,
		URL:          req.URL,
		ThumbnailURL: req.ThumbnailURL,
		Caption:      strings.TrimSpace(req.Caption),
		Status:       model.MediaStatusActive,
		UploadedBy:   auth.Actor(r.Context(), ""),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.store.CreateMediaItem(r.Context(), m); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Album not found")
			return
		}
		log.Printf("[gallery.media.create.failed] album=%s error=%v", a.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to add media")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// SetMediaStatus 显示或隐藏媒体
func (h *Handler) SetMediaStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.Status.Valid() {
		writeFieldError(w, "status must be active or hidden", []string{"status"})
		return
	}
	id := r.PathValue("id")
	if err := h.store.UpdateMediaStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Media not found")
			return
		}
		log.Printf("[gallery.media.status.failed] id=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to update media")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

// DeleteMedia 删除媒体
func (h *Handler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteMediaItem(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Media not found")
			return
		}
		log.Printf("[gallery.media.delete.failed] id=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete media")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// ============================================================================
// 工具函数
// ============================================================================

func (h *Handler) loadAlbum(w http.ResponseWriter, r *http.Request) (*model.Album, bool) {
	id := r.PathValue("id")
	a, err := h.store.GetAlbum(r.Context(), id)
	if err != nil {
		log.Printf("[gallery.album.get.failed] id=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch album")
		return nil, false
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "Album not found")
		return nil, false
	}
	return a, true
}

// decodeValid 解码并校验请求体，失败时已写入响应
func decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := validation.Struct(v); err != nil {
		writeFieldError(w, validation.Message(err), validation.Fields(err))
		return false
	}
	return true
}

// decodeOptional 请求体可以为空
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
