// Package course 课程、方向与班级管理
//
// 课程（大学专业或高中 strand）下挂方向，班级按部门、年级、课程定位。
// 所有变更都会发布 strand_updated 失效事件。
package course

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"memoria/internal/apiserver/validation"
	"memoria/internal/shared/eventbus"
	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
)

// Handler 课程 HTTP 处理器
type Handler struct {
	store storage.CourseStore
	bus   eventbus.InvalidationBus
}

// NewHandler 创建课程处理器
func NewHandler(store storage.CourseStore, bus eventbus.InvalidationBus) *Handler {
	return &Handler{store: store, bus: bus}
}

// RegisterRoutes 注册课程路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/courses", h.ListCourses)
	mux.HandleFunc("GET /api/sections", h.ListSections)

	mux.HandleFunc("GET /api/admin/courses", h.ListCourses)
	mux.HandleFunc("POST /api/admin/courses", h.CreateCourse)
	mux.HandleFunc("DELETE /api/admin/courses/{id}", h.DeleteCourse)
	mux.HandleFunc("GET /api/admin/courses/{id}/majors", h.ListMajors)
	mux.HandleFunc("POST /api/admin/courses/{id}/majors", h.CreateMajor)
	mux.HandleFunc("GET /api/admin/sections", h.ListSections)
	mux.HandleFunc("POST /api/admin/sections", h.CreateSection)
	mux.HandleFunc("DELETE /api/admin/sections/{id}", h.DeleteSection)
}

// ============================================================================
// 请求类型
// ============================================================================

type courseRequest struct {
	Code       string `json:"code" validate:"notblank,max=20"`
	Name       string `json:"name" validate:"notblank,max=200"`
	Department string `json:"department" validate:"notblank"`
}

type majorRequest struct {
	Name string `json:"name" validate:"notblank,max=200"`
}

type sectionRequest struct {
	Department    string `json:"department" validate:"notblank"`
	YearLevel     string `json:"yearLevel" validate:"notblank,max=20"`
	CourseProgram string `json:"courseProgram" validate:"max=100"`
	Name          string `json:"name" validate:"notblank,max=100"`
}

// ============================================================================
// 课程
// ============================================================================

// ListCourses 列出课程，可按 department 过滤
func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	dept, ok := departmentParam(w, r)
	if !ok {
		return
	}
	courses, err := h.store.ListCourses(r.Context(), dept)
	if err != nil {
		log.Printf("[course.list.failed] error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch courses")
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

// CreateCourse 创建课程，课程代码唯一
func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if !decodeValid(w, r, &req) {
		return
	}
	dept, ok := model.ParseDepartment(req.Department)
	if !ok {
		writeFieldError(w, "Invalid department", []string{"department"})
		return
	}

	c := &model.Course{
		ID:         generateID("crs"),
		Code:       strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:       strings.TrimSpace(req.Name),
		Department: dept,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.store.CreateCourse(r.Context(), c); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "A course with this code already exists")
			return
		}
		log.Printf("[course.create.failed] code=%s error=%v", c.Code, err)
		writeError(w, http.StatusInternalServerError, "Failed to create course")
		return
	}

	h.changed(r, string(dept))
	writeJSON(w, http.StatusOK, c)
}

// DeleteCourse 删除课程及其方向
func (h *Handler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteCourse(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Course not found")
			return
		}
		log.Printf("[course.delete.failed] id=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete course")
		return
	}
	h.changed(r, "")
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// ============================================================================
// 方向
// ============================================================================

// ListMajors 列出课程下的方向
func (h *Handler) ListMajors(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := h.store.GetCourse(r.Context(), id)
	if err != nil {
		log.Printf("[course.majors.failed] course=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch majors")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Course not found")
		return
	}
	majors, err := h.store.ListMajors(r.Context(), id)
	if err != nil {
		log.Printf("[course.majors.failed] course=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch majors")
		return
	}
	writeJSON(w, http.StatusOK, majors)
}

// CreateMajor 为课程添加方向，同一课程下名称唯一
func (h *Handler) CreateMajor(w http.ResponseWriter, r *http.Request) {
	var req majorRequest
	if !decodeValid(w, r, &req) {
		return
	}
	m := &model.Major{
		ID:        generateID("mjr"),
		CourseID:  r.PathValue("id"),
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateMajor(r.Context(), m); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "Course not found")
		case errors.Is(err, storage.ErrDuplicate):
			writeError(w, http.StatusConflict, "This major already exists for the course")
		default:
			log.Printf("[course.major.create.failed] course=%s error=%v", m.CourseID, err)
			writeError(w, http.StatusInternalServerError, "Failed to create major")
		}
		return
	}
	h.changed(r, "")
	writeJSON(w, http.StatusOK, m)
}

// ============================================================================
// 班级
// ============================================================================

// ListSections 列出班级，可按 department、yearLevel、courseProgram 过滤
func (h *Handler) ListSections(w http.ResponseWriter, r *http.Request) {
	dept, ok := departmentParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	sections, err := h.store.ListSections(r.Context(), storage.SectionFilter{
		Department:    dept,
		YearLevel:     q.Get("yearLevel"),
		CourseProgram: q.Get("courseProgram"),
	})
	if err != nil {
		log.Printf("[section.list.failed] error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch sections")
		return
	}
	writeJSON(w, http.StatusOK, sections)
}

// CreateSection 创建班级
func (h *Handler) CreateSection(w http.ResponseWriter, r *http.Request) {
	var req sectionRequest
	if !decodeValid(w, r, &req) {
		return
	}
	dept, ok := model.ParseDepartment(req.Department)
	if !ok || !dept.IsStudentDepartment() {
		writeFieldError(w, "Invalid department", []string{"department"})
		return
	}

	sec := &model.Section{
		ID:            generateID("sec"),
		Department:    dept,
		YearLevel:     strings.TrimSpace(req.YearLevel),
		CourseProgram: strings.TrimSpace(req.CourseProgram),
		Name:          strings.TrimSpace(req.Name),
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.store.CreateSection(r.Context(), sec); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "A section with this name already exists")
			return
		}
		log.Printf("[section.create.failed] name=%s error=%v", sec.Name, err)
		writeError(w, http.StatusInternalServerError, "Failed to create section")
		return
	}
	h.changed(r, string(dept))
	writeJSON(w, http.StatusOK, sec)
}

// DeleteSection 删除班级
func (h *Handler) DeleteSection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteSection(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Section not found")
			return
		}
		log.Printf("[section.delete.failed] id=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete section")
		return
	}
	h.changed(r, "")
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// ============================================================================
// 工具函数
// ============================================================================

func (h *Handler) changed(r *http.Request, department string) {
	eventbus.Notify(r.Context(), h.bus, eventbus.KeyStrandUpdated, "", department)
}

// departmentParam 解析可选的 department 查询参数
func departmentParam(w http.ResponseWriter, r *http.Request) (model.Department, bool) {
	raw := r.URL.Query().Get("department")
	if raw == "" {
		return "", true
	}
	dept, ok := model.ParseDepartment(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid department")
		return "", false
	}
	return dept, true
}

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
