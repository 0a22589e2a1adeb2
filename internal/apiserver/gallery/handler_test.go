package gallery

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/shared/model"
	"memoria/internal/testutil"
)

type testResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Fields  []string        `json:"fields"`
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(testutil.NewStore(t)).RegisterRoutes(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, path string, body any) (int, testResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(method, path, &buf))
	var resp testResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func createAlbum(t *testing.T, mux http.Handler, title, category string, public bool, tags ...string) *model.Album {
	t.Helper()
	code, resp := do(t, mux, "POST", "/api/admin/gallery/albums", map[string]any{
		"title": title, "category": category, "isPublic": public, "tags": tags,
	})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var a model.Album
	require.NoError(t, json.Unmarshal(resp.Data, &a))
	return &a
}

func addMedia(t *testing.T, mux http.Handler, albumID, url string) *model.MediaItem {
	t.Helper()
	code, resp := do(t, mux, "POST", "/api/admin/gallery/albums/"+albumID+"/media", map[string]any{"url": url})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var m model.MediaItem
	require.NoError(t, json.Unmarshal(resp.Data, &m))
	return &m
}

func TestListPublic_Filters(t *testing.T) {
	mux := newTestMux(t)
	createAlbum(t, mux, "Foundation Day", "events", true, "2025", "parade")
	createAlbum(t, mux, "Intramurals", "sports", true, "2025")
	createAlbum(t, mux, "Faculty Retreat", "events", false)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"全部公开相册", "", 2},
		{"按分类", "?category=events", 1},
		{"按标签", "?tag=2025", 2},
		{"标签不存在", "?tag=none", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := do(t, mux, "GET", "/api/gallery/albums"+tt.query, nil)
			require.Equal(t, http.StatusOK, code)
			var albums []model.Album
			require.NoError(t, json.Unmarshal(resp.Data, &albums))
			assert.Len(t, albums, tt.want)
			for _, a := range albums {
				assert.True(t, a.IsPublic)
			}
		})
	}

	code, resp := do(t, mux, "GET", "/api/admin/gallery/albums", nil)
	require.Equal(t, http.StatusOK, code)
	var all []model.Album
	require.NoError(t, json.Unmarshal(resp.Data, &all))
	assert.Len(t, all, 3)
}

func TestAlbumDetail_HidesMedia(t *testing.T) {
	mux := newTestMux(t)
	a := createAlbum(t, mux, "Graduation", "events", true)
	shown := addMedia(t, mux, a.ID, "https://img.example.com/1.jpg")
	hidden := addMedia(t, mux, a.ID, "https://img.example.com/2.jpg")

	code, _ := do(t, mux, "PATCH", "/api/admin/gallery/media/"+hidden.ID, map[string]any{"status": "hidden"})
	require.Equal(t, http.StatusOK, code)

	code, resp := do(t, mux, "GET", "/api/gallery/albums/"+a.ID, nil)
	require.Equal(t, http.StatusOK, code)
	var detail struct {
		MediaCount int               `json:"mediaCount"`
		Media      []model.MediaItem `json:"media"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &detail))
	assert.Equal(t, 2, detail.MediaCount)
	require.Len(t, detail.Media, 1)
	assert.Equal(t, shown.ID, detail.Media[0].ID)

	// 删除媒体后 mediaCount 递减
	code, _ = do(t, mux, "DELETE", "/api/admin/gallery/media/"+hidden.ID, nil)
	require.Equal(t, http.StatusOK, code)
	_, resp = do(t, mux, "GET", "/api/admin/gallery/albums/"+a.ID, nil)
	require.NoError(t, json.Unmarshal(resp.Data, &detail))
	assert.Equal(t, 1, detail.MediaCount)

	code, _ = do(t, mux, "PATCH", "/api/admin/gallery/media/"+shown.ID, map[string]any{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAlbumDetail_PrivateIsHidden(t *testing.T) {
	mux := newTestMux(t)
	a := createAlbum(t, mux, "Board Meeting", "admin", false)

	code, _ := do(t, mux, "GET", "/api/gallery/albums/"+a.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, mux, "GET", "/api/admin/gallery/albums/"+a.ID, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestLike_Toggle(t *testing.T) {
	mux := newTestMux(t)
	a := createAlbum(t, mux, "Prom", "events", true)
	m := addMedia(t, mux, a.ID, "https://img.example.com/prom.jpg")

	steps := []struct {
		name  string
		user  string
		liked bool
		likes int
	}{
		{"第一次点赞", "u-1", true, 1},
		{"另一个用户点赞", "u-2", true, 2},
		{"再次点击取消", "u-1", false, 1},
	}
	for _, s := range steps {
		t.Run(s.name, func(t *testing.T) {
			code, resp := do(t, mux, "POST", "/api/gallery/media/"+m.ID+"/like", map[string]any{"userId": s.user})
			require.Equal(t, http.StatusOK, code, resp.Error)
			var got LikeResult
			require.NoError(t, json.Unmarshal(resp.Data, &got))
			assert.Equal(t, LikeResult{Liked: s.liked, Likes: s.likes}, got)
		})
	}

	code, resp := do(t, mux, "POST", "/api/gallery/media/"+m.ID+"/like", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []string{"userId"}, resp.Fields)

	code, _ = do(t, mux, "POST", "/api/gallery/media/med-404/like", map[string]any{"userId": "u-1"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateAlbum_Validation(t *testing.T) {
	mux := newTestMux(t)

	code, resp := do(t, mux, "POST", "/api/admin/gallery/albums", map[string]any{"title": " ", "category": "events"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []string{"title"}, resp.Fields)

	a := createAlbum(t, mux, "Field Trip", "events", true)
	code, resp = do(t, mux, "POST", "/api/admin/gallery/albums/"+a.ID+"/media", map[string]any{"url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []string{"url"}, resp.Fields)

	code, _ = do(t, mux, "DELETE", "/api/admin/gallery/albums/"+a.ID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, mux, "DELETE", "/api/admin/gallery/albums/"+a.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}
