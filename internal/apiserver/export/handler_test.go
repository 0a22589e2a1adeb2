package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	objstore "memoria/internal/shared/minio"
	"memoria/internal/shared/model"
	"memoria/internal/testutil"
)

// fakeObjects 记录上传内容的对象存储
type fakeObjects struct {
	puts map[string]any
}

func (f *fakeObjects) PutJSON(ctx context.Context, key string, v any) error {
	f.puts[key] = v
	return nil
}

func (f *fakeObjects) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://minio.test/memoria-exports/" + key + "?X-Amz-Expires=" + expiry.String(), nil
}

func (f *fakeObjects) ListExports(ctx context.Context, yearID string) ([]objstore.ObjectInfo, error) {
	var out []objstore.ObjectInfo
	for key := range f.puts {
		if strings.HasPrefix(key, objstore.ExportPrefix+"/"+yearID+"/") {
			out = append(out, objstore.ObjectInfo{Key: key})
		}
	}
	return out, nil
}

type testResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func do(t *testing.T, mux http.Handler, method, path string) (int, testResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var resp testResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func TestExport(t *testing.T) {
	store := testutil.NewStore(t)
	testutil.SeedYear(t, store, "sy-1", true)
	testutil.SeedProfile(t, store, "prf-1", "sy-1", model.ProfileTypeStudent, model.ProfileStatusApproved,
		testutil.Student("maria Clara", "college"))
	testutil.SeedProfile(t, store, "prf-2", "sy-1", model.ProfileTypeStudent, model.ProfileStatusApproved,
		testutil.Student("Andres Bonifacio", "college"))
	testutil.SeedProfile(t, store, "prf-3", "sy-1", model.ProfileTypeStudent, model.ProfileStatusPending,
		testutil.Student("Pending Person", "college"))
	testutil.SeedProfile(t, store, "prf-4", "sy-1", model.ProfileTypeStudent, model.ProfileStatusApproved,
		testutil.Student("Gabriela Silang", "elementary"))

	objects := &fakeObjects{puts: map[string]any{}}
	mux := http.NewServeMux()
	NewHandler(store, objects).RegisterRoutes(mux)

	code, resp := do(t, mux, "POST", "/api/admin/sy-1/export")
	require.Equal(t, http.StatusOK, code, resp.Error)
	var res Result
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	assert.True(t, strings.HasPrefix(res.Key, "exports/sy-1/"))
	assert.True(t, strings.HasSuffix(res.Key, ".json"))
	assert.Contains(t, res.URL, res.Key)
	assert.Contains(t, res.URL, "X-Amz-Expires=1h0m0s")

	snap, ok := objects.puts[res.Key].(*Snapshot)
	require.True(t, ok)
	assert.Equal(t, 3, snap.Total)
	college := snap.Departments[model.DepartmentCollege]
	require.Len(t, college, 2)
	assert.Equal(t, "prf-2", college[0].ID)
	assert.Equal(t, "prf-1", college[1].ID)
	assert.Len(t, snap.Departments[model.DepartmentElementary], 1)

	code, resp = do(t, mux, "GET", "/api/admin/sy-1/exports")
	require.Equal(t, http.StatusOK, code)
	var listed []objstore.ObjectInfo
	require.NoError(t, json.Unmarshal(resp.Data, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, res.Key, listed[0].Key)

	code, _ = do(t, mux, "POST", "/api/admin/sy-404/export")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestExport_NotConfigured(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(testutil.NewStore(t), nil).RegisterRoutes(mux)

	code, resp := do(t, mux, "POST", "/api/admin/sy-1/export")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "Export storage is not configured", resp.Error)
}
