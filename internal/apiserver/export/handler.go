// Package export 年鉴快照导出
//
// 把某学年已审核通过的档案按部门分组写成一个 JSON 对象，
// 上传到对象存储并返回一小时有效的下载链接。
package export

import (
	"context"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	objstore "memoria/internal/shared/minio"
	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
)

// LinkExpiry 下载链接有效期
const LinkExpiry = time.Hour

// ObjectStore 导出依赖的对象存储能力，由 objstore.Client 实现
type ObjectStore interface {
	PutJSON(ctx context.Context, key string, v any) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	ListExports(ctx context.Context, yearID string) ([]objstore.ObjectInfo, error)
}

// Store 导出所需的存储能力
type Store interface {
	storage.ProfileStore
	storage.SchoolYearStore
}

// Handler 导出 HTTP 处理器
type Handler struct {
	store   Store
	objects ObjectStore
}

// NewHandler 创建导出处理器，objects 为 nil 时导出接口返回 503
func NewHandler(store Store, objects ObjectStore) *Handler {
	return &Handler{store: store, objects: objects}
}

// RegisterRoutes 注册导出路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/admin/{yearId}/export", h.Export)
	mux.HandleFunc("GET /api/admin/{yearId}/exports", h.List)
}

// Snapshot 导出文件内容
type Snapshot struct {
	SchoolYearID string                                `json:"schoolYearId"`
	YearLabel    string                                `json:"yearLabel"`
	GeneratedAt  time.Time                             `json:"generatedAt"`
	Total        int                                   `json:"total"`
	Departments  map[model.Department][]*model.Profile `json:"departments"`
}

// Result 导出结果
type Result struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// BuildSnapshot 按部门分组，组内按姓名排序
func BuildSnapshot(year *model.SchoolYear, profiles []*model.Profile) *Snapshot {
	s := &Snapshot{
		SchoolYearID: year.ID,
		YearLabel:    year.YearLabel,
		GeneratedAt:  time.Now().UTC(),
		Departments:  make(map[model.Department][]*model.Profile),
	}
	for _, p := range profiles {
		if p.Status != model.ProfileStatusApproved {
			continue
		}
		s.Departments[p.Department] = append(s.Departments[p.Department], p)
		s.Total++
	}
	for _, group := range s.Departments {
		sort.SliceStable(group, func(i, j int) bool {
			a, b := strings.ToLower(group[i].DisplayName()), strings.ToLower(group[j].DisplayName())
			if a != b {
				return a < b
			}
			return group[i].ID < group[j].ID
		})
	}
	return s
}

// Export 生成快照并上传
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if h.objects == nil {
		writeError(w, http.StatusServiceUnavailable, "Export storage is not configured")
		return
	}
	ctx := r.Context()
	yearID := r.PathValue("yearId")

	year, ok := h.loadYear(w, r, yearID)
	if !ok {
		return
	}

	profiles, _, err := h.store.ListProfiles(ctx, storage.ProfileFilter{
		YearID: yearID,
		Status: model.ProfileStatusApproved,
	})
	if err != nil {
		log.Printf("[export.failed] year=%s error=%v", yearID, err)
		writeError(w, http.StatusInternalServerError, "Failed to export yearbook")
		return
	}

	snapshot := BuildSnapshot(year, profiles)
	key := objstore.ExportKey(yearID, uuid.NewString())
	if err := h.objects.PutJSON(ctx, key, snapshot); err != nil {
		log.Printf("[export.failed] year=%s key=%s error=%v", yearID, key, err)
		writeError(w, http.StatusInternalServerError, "Failed to export yearbook")
		return
	}
	url, err := h.objects.PresignGet(ctx, key, LinkExpiry)
	if err != nil {
		log.Printf("[export.failed] year=%s key=%s error=%v", yearID, key, err)
		writeError(w, http.StatusInternalServerError, "Failed to export yearbook")
		return
	}

	log.Printf("[export.success] year=%s key=%s profiles=%d", yearID, key, snapshot.Total)
	writeJSON(w, http.StatusOK, Result{Key: key, URL: url})
}

// List 列出学年的历史导出
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.objects == nil {
		writeError(w, http.StatusServiceUnavailable, "Export storage is not configured")
		return
	}
	yearID := r.PathValue("yearId")
	objects, err := h.objects.ListExports(r.Context(), yearID)
	if err != nil {
		log.Printf("[export.list.failed] year=%s error=%v", yearID, err)
		writeError(w, http.StatusInternalServerError, "Failed to list exports")
		return
	}
	if objects == nil {
		objects = []objstore.ObjectInfo{}
	}
	writeJSON(w, http.StatusOK, objects)
}

func (h *Handler) loadYear(w http.ResponseWriter, r *http.Request, id string) (*model.SchoolYear, bool) {
	year, err := h.store.GetSchoolYear(r.Context(), id)
	if err != nil {
		log.Printf("[export.failed] year=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to export yearbook")
		return nil, false
	}
	if year == nil {
		writeError(w, http.StatusNotFound, "School year not found")
		return nil, false
	}
	return year, true
}
