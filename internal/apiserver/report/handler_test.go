package report

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/apiserver/auth"
	"memoria/internal/shared/model"
	"memoria/internal/testutil"
)

type testResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Fields  []string        `json:"fields"`
}

func do(t *testing.T, mux http.Handler, req *http.Request) (int, testResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	var resp testResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func newRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	return httptest.NewRequest(method, path, &buf)
}

func TestReportLifecycle(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(testutil.NewStore(t)).RegisterRoutes(mux)

	// 登录用户的身份覆盖请求体中的 reporterId
	req := newRequest(t, "POST", "/api/reports", map[string]any{
		"reporterId": "spoofed", "targetType": "profile", "targetId": "prf-1", "reason": "Inappropriate quote",
	})
	req = req.WithContext(auth.WithAuthUser(req.Context(), &auth.AuthUser{ID: "u-7", Email: "u7@school.edu", Role: "student"}))
	code, resp := do(t, mux, req)
	require.Equal(t, http.StatusOK, code, resp.Error)
	var rep model.Report
	require.NoError(t, json.Unmarshal(resp.Data, &rep))
	assert.Equal(t, "u-7", rep.ReporterID)
	assert.Equal(t, model.ReportStatusOpen, rep.Status)

	code, _ = do(t, mux, newRequest(t, "PATCH", "/api/admin/reports/"+rep.ID, map[string]any{"status": "resolved"}))
	require.Equal(t, http.StatusOK, code)

	tests := []struct {
		name   string
		status string
		code   int
		want   int
	}{
		{"全部", "", http.StatusOK, 1},
		{"已处理", "resolved", http.StatusOK, 1},
		{"未处理", "open", http.StatusOK, 0},
		{"状态无效", "closed", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := do(t, mux, newRequest(t, "GET", "/api/admin/reports?status="+tt.status, nil))
			require.Equal(t, tt.code, code)
			if code != http.StatusOK {
				return
			}
			var got []model.Report
			require.NoError(t, json.Unmarshal(resp.Data, &got))
			assert.Len(t, got, tt.want)
		})
	}

	code, resp = do(t, mux, newRequest(t, "GET", "/api/admin/audit-logs?limit=10", nil))
	require.Equal(t, http.StatusOK, code)
	var logs []model.AuditLog
	require.NoError(t, json.Unmarshal(resp.Data, &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "report.resolved", logs[0].Action)

	code, _ = do(t, mux, newRequest(t, "PATCH", "/api/admin/reports/rpt-404", map[string]any{"status": "dismissed"}))
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, mux, newRequest(t, "GET", "/api/admin/audit-logs?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCreate_Validation(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(testutil.NewStore(t)).RegisterRoutes(mux)

	tests := []struct {
		name   string
		body   map[string]any
		fields []string
	}{
		{"目标类型无效", map[string]any{"reporterId": "u-1", "targetType": "user", "targetId": "x", "reason": "spam"}, []string{"targetType"}},
		{"缺少原因", map[string]any{"reporterId": "u-1", "targetType": "media", "targetId": "x"}, []string{"reason"}},
		{"匿名且无 reporterId", map[string]any{"targetType": "album", "targetId": "x", "reason": "spam"}, []string{"reporterId"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := do(t, mux, newRequest(t, "POST", "/api/reports", tt.body))
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, tt.fields, resp.Fields)
		})
	}
}
