// Package server 失效事件网关测试
//
//   - TestParseKeys: key 列表解析
//   - TestHandleWebSocket_*: 使用 httptest + gorilla/websocket 的集成测试
//
// # 运行方式
//
//	go test -v -run TestHandleWebSocket ./internal/apiserver/server/
package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/shared/eventbus"
)

func TestParseKeys(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
		ok   bool
	}{
		{"空表示全部", "", 0, true},
		{"单个", "school_year_updated", 1, true},
		{"多个带空格", "school_year_updated, strand_updated", 2, true},
		{"重复", "strand_updated,strand_updated", 1, true},
		{"未知", "school_year_updated,unknown", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, ok := ParseKeys(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Len(t, keys, tt.want)
			}
		})
	}
}

func dialGateway(t *testing.T, g *InvalidationGateway, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(g.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/invalidations" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// 收到 pong 说明服务端已完成订阅
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong map[string]string
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, "pong", pong["type"])
	return conn
}

func TestHandleWebSocket_ForwardsEvents(t *testing.T) {
	bus := eventbus.NewLocalBus()
	g := NewInvalidationGateway(bus)
	conn := dialGateway(t, g, "")
	assert.Equal(t, 1, g.ClientCount())

	eventbus.Notify(context.Background(), bus, eventbus.KeySchoolYearUpdated, "sy-1", "")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt eventbus.Invalidation
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, "invalidate", evt.Type)
	assert.Equal(t, eventbus.KeySchoolYearUpdated, evt.Key)
	assert.Equal(t, "sy-1", evt.YearID)
}

func TestHandleWebSocket_FiltersKeys(t *testing.T) {
	bus := eventbus.NewLocalBus()
	g := NewInvalidationGateway(bus)
	conn := dialGateway(t, g, "?keys=strand_updated")

	ctx := context.Background()
	eventbus.Notify(ctx, bus, eventbus.KeySchoolYearUpdated, "sy-1", "")
	eventbus.Notify(ctx, bus, eventbus.KeyStrandUpdated, "", "college")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt eventbus.Invalidation
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, eventbus.KeyStrandUpdated, evt.Key)
	assert.Equal(t, "college", evt.Department)
}

func TestHandleWebSocket_UnknownKey(t *testing.T) {
	g := NewInvalidationGateway(eventbus.NewLocalBus())
	req := httptest.NewRequest(http.MethodGet, "/ws/invalidations?keys=bogus", nil)
	rec := httptest.NewRecorder()
	g.HandleWebSocket(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWebSocket_NoBus(t *testing.T) {
	g := NewInvalidationGateway(nil)
	req := httptest.NewRequest(http.MethodGet, "/ws/invalidations", nil)
	rec := httptest.NewRecorder()
	g.HandleWebSocket(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleWebSocket_ClientRemovedOnClose(t *testing.T) {
	g := NewInvalidationGateway(eventbus.NewLocalBus())
	conn := dialGateway(t, g, "")
	require.Equal(t, 1, g.ClientCount())

	conn.Close()
	assert.Eventually(t, func() bool { return g.ClientCount() == 0 }, 2*time.Second, 20*time.Millisecond)
}
