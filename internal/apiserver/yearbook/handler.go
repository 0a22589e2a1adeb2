// Package yearbook 年鉴页面数据
package yearbook

import (
	"log"
	"net/http"

	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
)

// Store 年鉴查询所需的存储能力
type Store interface {
	storage.ProfileStore
	storage.SchoolYearStore
}

// Handler 年鉴 HTTP 处理器
type Handler struct {
	store Store
}

// NewHandler 创建年鉴处理器
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册年鉴路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/yearbook", h.List)
}

// Page 年鉴页面数据
type Page struct {
	SchoolYearID string   `json:"schoolYearId"`
	Department   string   `json:"department,omitempty"`
	People       []Person `json:"people"`
	Total        int      `json:"total"`
}

// List 已通过的档案，按部门和班级筛选
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// 年鉴只展示已通过的档案
	if s := q.Get("status"); s != "" && s != string(model.ProfileStatusApproved) {
		writeError(w, http.StatusBadRequest, "Only approved profiles can be listed in the yearbook")
		return
	}

	filter := storage.ProfileFilter{
		Status:        model.ProfileStatusApproved,
		YearLevel:     q.Get("yearLevel"),
		CourseProgram: q.Get("courseProgram"),
		BlockSection:  q.Get("blockSection"),
	}
	if v := q.Get("department"); v != "" {
		dept, ok := model.ParseDepartment(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid department")
			return
		}
		filter.Department = dept
	}

	yearID := q.Get("schoolYearId")
	if yearID == "" {
		active, err := h.store.GetActiveSchoolYear(r.Context())
		if err != nil {
			log.Printf("[yearbook.list.failed] active year error=%v", err)
			writeError(w, http.StatusInternalServerError, "Failed to fetch yearbook")
			return
		}
		if active == nil {
			writeError(w, http.StatusNotFound, "No active school year")
			return
		}
		yearID = active.ID
	}
	filter.YearID = yearID

	profiles, _, err := h.store.ListProfiles(r.Context(), filter)
	if err != nil {
		log.Printf("[yearbook.list.failed] year=%s dept=%s error=%v", yearID, filter.Department, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch yearbook")
		return
	}

	people := make([]Person, 0, len(profiles))
	for _, p := range profiles {
		if p.Status != model.ProfileStatusApproved {
			continue
		}
		people = append(people, ToPerson(p))
	}
	SortByName(people)

	writeJSON(w, http.StatusOK, Page{
		SchoolYearID: yearID,
		Department:   string(filter.Department),
		People:       people,
		Total:        len(people),
	})
}
