package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/apiserver/auth"
	"memoria/internal/shared/eventbus"
	"memoria/internal/testutil"
)

type testResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T, deps Deps) (http.Handler, *Handler) {
	t.Helper()
	if deps.Store == nil {
		deps.Store = testutil.NewStore(t)
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.NewLocalBus()
	}
	h := NewHandler(deps)
	return h.Router(), h
}

func serve(router http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, Deps{})
	rec := serve(router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["wsClients"])
}

func TestHealth_StoreDown(t *testing.T) {
	store := testutil.NewStore(t)
	require.NoError(t, store.Close())
	router, _ := newTestRouter(t, Deps{Store: store})

	rec := serve(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
}

func TestRouter_YearScopedAndFlatRoutes(t *testing.T) {
	store := testutil.NewStore(t)
	testutil.SeedYear(t, store, "sy-1", true)
	router, _ := newTestRouter(t, Deps{Store: store})

	tests := []struct {
		name string
		path string
		code int
	}{
		{"学年列表", "/api/admin/school-years", http.StatusOK},
		{"学年详情", "/api/admin/school-years/sy-1", http.StatusOK},
		{"统计", "/api/admin/sy-1/stats", http.StatusOK},
		{"统计-学年不存在", "/api/admin/sy-x/stats", http.StatusNotFound},
		{"档案列表", "/api/admin/sy-1/profiles", http.StatusOK},
		{"举报列表", "/api/admin/reports", http.StatusOK},
		{"激活学年", "/api/school-years/active", http.StatusOK},
		{"年鉴", "/api/yearbook?department=college", http.StatusOK},
		{"课程", "/api/courses", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_ExportWithoutObjectStore(t *testing.T) {
	store := testutil.NewStore(t)
	testutil.SeedYear(t, store, "sy-1", true)
	router, _ := newTestRouter(t, Deps{Store: store})

	rec := serve(router, http.MethodPost, "/api/admin/sy-1/export", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_AuthEnabled(t *testing.T) {
	cfg := auth.Config{JWTSecret: "test-secret", AccessTokenTTL: time.Minute}
	router, _ := newTestRouter(t, Deps{Auth: cfg})

	rec := serve(router, http.MethodGet, "/api/admin/school-years", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// 公开路由不受影响
	rec = serve(router, http.MethodGet, "/api/school-years", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	token, err := auth.GenerateAccessToken(cfg, "admin-1", "admin@school.edu", auth.RoleAdmin)
	require.NoError(t, err)
	rec = serve(router, http.MethodGet, "/api/admin/school-years", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	t.Run("未配置来源", func(t *testing.T) {
		router, _ := newTestRouter(t, Deps{})
		rec := serve(router, http.MethodOptions, "/api/courses", map[string]string{"Origin": "http://a.test"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("白名单", func(t *testing.T) {
		router, _ := newTestRouter(t, Deps{CORSOrigins: []string{"https://memoria.test"}})
		rec := serve(router, http.MethodGet, "/api/courses", map[string]string{"Origin": "https://memoria.test"})
		assert.Equal(t, "https://memoria.test", rec.Header().Get("Access-Control-Allow-Origin"))

		rec = serve(router, http.MethodGet, "/api/courses", map[string]string{"Origin": "https://evil.test"})
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestOpenAPI(t *testing.T) {
	doc, err := LoadOpenAPI(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Memoria Yearbook API", doc.Info.Title)
	assert.NotNil(t, doc.Paths.Find("/api/school-years"))

	router, _ := newTestRouter(t, Deps{})
	rec := serve(router, http.MethodGet, "/api/openapi.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "paths")

	rec = serve(router, http.MethodGet, "/docs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/openapi.json")
}
