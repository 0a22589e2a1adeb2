package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/apiserver/auth"
	"memoria/internal/shared/cache"
	"memoria/internal/shared/model"
	"memoria/internal/shared/storage"
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
	store := testutil.NewStore(t)
	mux := http.NewServeMux()
	NewHandler(store, cache.NewStoreCache(store)).RegisterRoutes(mux)
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

func create(t *testing.T, mux http.Handler, userID, title string) *model.Notification {
	t.Helper()
	code, resp := do(t, mux, "POST", "/api/admin/notifications", map[string]any{
		"userId": userID, "title": title, "message": "body of " + title, "category": "report",
	})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var n model.Notification
	require.NoError(t, json.Unmarshal(resp.Data, &n))
	return &n
}

func list(t *testing.T, mux http.Handler, query string) ListResponse {
	t.Helper()
	code, resp := do(t, mux, "GET", "/api/admin/notifications"+query, nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	var out ListResponse
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

func unreadCount(t *testing.T, mux http.Handler, userID string) int {
	t.Helper()
	code, resp := do(t, mux, "GET", "/api/admin/notifications/unread-count?userId="+userID, nil)
	require.Equal(t, http.StatusOK, code)
	var out map[string]int
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out["unreadCount"]
}

func TestCreate_Defaults(t *testing.T) {
	mux := newTestMux(t)
	n := create(t, mux, "", "Backup finished")
	assert.Equal(t, model.NotificationAudienceAll, n.UserID)
	assert.Equal(t, model.NotificationTypeInfo, n.Type)
	assert.Equal(t, model.NotificationPriorityMedium, n.Priority)
	assert.False(t, n.Read)

	code, resp := do(t, mux, "POST", "/api/admin/notifications", map[string]any{"title": " ", "priority": "urgent"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.ElementsMatch(t, []string{"title", "message", "priority"}, resp.Fields)
}

func TestMarkAllRead_ZeroesUnreadCount(t *testing.T) {
	mux := newTestMux(t)
	create(t, mux, "all", "Shared")
	create(t, mux, "admin@memoria.test", "Mine 1")
	create(t, mux, "admin@memoria.test", "Mine 2")
	create(t, mux, "other@memoria.test", "Not mine")

	assert.Equal(t, 3, unreadCount(t, mux, "admin@memoria.test"))
	got := list(t, mux, "?userId=admin@memoria.test")
	assert.Len(t, got.Notifications, 3)
	assert.Equal(t, 3, got.UnreadCount)

	code, resp := do(t, mux, "POST", "/api/admin/notifications/mark-all-read", map[string]string{"userId": "admin@memoria.test"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, 0, unreadCount(t, mux, "admin@memoria.test"))
	assert.Empty(t, list(t, mux, "?userId=admin@memoria.test&unreadOnly=true").Notifications)

	// 其他用户的通知不受影响
	assert.Equal(t, 1, unreadCount(t, mux, "other@memoria.test"))
}

func TestSetReadAndDelete(t *testing.T) {
	mux := newTestMux(t)
	n := create(t, mux, "admin@memoria.test", "Toggle me")
	path := "/api/admin/notifications/" + n.ID

	code, _ := do(t, mux, "PATCH", path, map[string]bool{"read": true})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, unreadCount(t, mux, "admin@memoria.test"))

	code, _ = do(t, mux, "PATCH", path, map[string]bool{"read": false})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, unreadCount(t, mux, "admin@memoria.test"))

	code, _ = do(t, mux, "PATCH", path, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, mux, "DELETE", path, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, mux, "DELETE", path, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, mux, "PATCH", "/api/admin/notifications/ntf-404", map[string]bool{"read": true})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDeleteAll(t *testing.T) {
	mux := newTestMux(t)
	create(t, mux, "all", "Shared")
	create(t, mux, "admin@memoria.test", "Mine")

	code, _ := do(t, mux, "DELETE", "/api/admin/notifications", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := do(t, mux, "DELETE", "/api/admin/notifications?userId=admin@memoria.test", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	got := list(t, mux, "?userId=admin@memoria.test")
	require.Len(t, got.Notifications, 1)
	assert.Equal(t, model.NotificationAudienceAll, got.Notifications[0].UserID)
}

func TestWelcome_OncePerEmail(t *testing.T) {
	mux := newTestMux(t)

	code, resp := do(t, mux, "POST", "/api/admin/notifications/welcome", map[string]string{"email": "Admin@Memoria.test"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var first map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &first))
	assert.Equal(t, true, first["created"])

	code, resp = do(t, mux, "POST", "/api/admin/notifications/welcome", map[string]string{"email": "admin@memoria.test"})
	require.Equal(t, http.StatusOK, code)
	var second map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &second))
	assert.Equal(t, false, second["created"])

	got := list(t, mux, "?userId=admin@memoria.test&category=welcome")
	assert.Len(t, got.Notifications, 1)

	code, _ = do(t, mux, "POST", "/api/admin/notifications/welcome", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, code)
}

// asUser 模拟认证中间件注入登录用户
func asUser(next http.Handler, u *auth.AuthUser) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.WithAuthUser(r.Context(), u)))
	})
}

func TestStudentScope(t *testing.T) {
	mux := newTestMux(t)
	alert := create(t, mux, "all", "New profile submission")
	create(t, mux, "u-1", "Profile approved")
	create(t, mux, "u-2", "Someone else")
	student := asUser(mux, &auth.AuthUser{ID: "u-1", Email: "maria@school.edu", Role: "student"})

	t.Run("只看到发给自己的", func(t *testing.T) {
		for _, query := range []string{"", "?userId=u-2", "?userId=all"} {
			code, resp := do(t, student, "GET", "/api/admin/notifications"+query, nil)
			require.Equal(t, http.StatusOK, code, resp.Error)
			var got ListResponse
			require.NoError(t, json.Unmarshal(resp.Data, &got))
			require.Len(t, got.Notifications, 1, query)
			assert.Equal(t, "u-1", got.Notifications[0].UserID)
			assert.Equal(t, 1, got.UnreadCount)
		}
	})

	t.Run("不能创建通知", func(t *testing.T) {
		code, _ := do(t, student, "POST", "/api/admin/notifications", map[string]any{
			"userId": "all", "title": "spoof", "message": "spoof",
		})
		assert.Equal(t, http.StatusForbidden, code)
		code, _ = do(t, student, "POST", "/api/admin/notifications/welcome", map[string]string{"email": "maria@school.edu"})
		assert.Equal(t, http.StatusForbidden, code)
		assert.Len(t, list(t, mux, "").Notifications, 3)
	})

	t.Run("不能修改发给所有人的通知", func(t *testing.T) {
		code, _ := do(t, student, "PATCH", "/api/admin/notifications/"+alert.ID, map[string]bool{"read": true})
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("全部已读只影响自己", func(t *testing.T) {
		code, resp := do(t, student, "POST", "/api/admin/notifications/mark-all-read", map[string]string{"userId": "all"})
		require.Equal(t, http.StatusOK, code, resp.Error)
		var out map[string]int
		require.NoError(t, json.Unmarshal(resp.Data, &out))
		assert.Equal(t, 1, out["updated"])

		assert.Equal(t, 1, unreadCount(t, mux, "admin@memoria.test"), "管理员的未读不变")
		assert.Equal(t, 2, unreadCount(t, mux, "u-2"), "u-2 自己的加上发给所有人的")
	})
}

// flakyStore 前 failures 次写入通知失败
type flakyStore struct {
	storage.NotificationStore
	failures int
}

func (s *flakyStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("write timeout")
	}
	return s.NotificationStore.CreateNotification(ctx, n)
}

func TestWelcome_RetriesAfterFailedInsert(t *testing.T) {
	store := testutil.NewStore(t)
	mux := http.NewServeMux()
	NewHandler(&flakyStore{NotificationStore: store, failures: 1}, cache.NewStoreCache(store)).RegisterRoutes(mux)

	code, _ := do(t, mux, "POST", "/api/admin/notifications/welcome", map[string]string{"email": "admin@memoria.test"})
	require.Equal(t, http.StatusInternalServerError, code)

	code, resp := do(t, mux, "POST", "/api/admin/notifications/welcome", map[string]string{"email": "admin@memoria.test"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.Equal(t, true, out["created"])
	assert.Len(t, list(t, mux, "?userId=admin@memoria.test&category=welcome").Notifications, 1)
}

func TestWelcome_DeletedStaysDeleted(t *testing.T) {
	mux := newTestMux(t)
	code, _ := do(t, mux, "POST", "/api/admin/notifications/welcome", map[string]string{"email": "admin@memoria.test"})
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, mux, "DELETE", "/api/admin/notifications/"+WelcomeNotification("admin@memoria.test", time.Now()).ID, nil)
	require.Equal(t, http.StatusOK, code)

	code, resp := do(t, mux, "POST", "/api/admin/notifications/welcome", map[string]string{"email": "admin@memoria.test"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.Equal(t, false, out["created"])
	assert.Empty(t, list(t, mux, "?userId=admin@memoria.test&category=welcome").Notifications)
}
