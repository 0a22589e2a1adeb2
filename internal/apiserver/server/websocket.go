package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"memoria/internal/apiserver/metrics"
	"memoria/internal/shared/eventbus"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// InvalidationGateway 失效事件 WebSocket 网关
//
// 每个连接单独订阅事件总线，只转发客户端关心的 key。
// 客户端收到 {"type":"invalidate","key":...} 后自行重新拉取对应数据。
type InvalidationGateway struct {
	bus     eventbus.InvalidationBus
	clients map[*websocket.Conn]map[eventbus.Key]bool
	mu      sync.RWMutex
}

// NewInvalidationGateway 创建失效事件网关
func NewInvalidationGateway(bus eventbus.InvalidationBus) *InvalidationGateway {
	return &InvalidationGateway{
		bus:     bus,
		clients: make(map[*websocket.Conn]map[eventbus.Key]bool),
	}
}

// ParseKeys 解析逗号分隔的 key 列表，空表示订阅全部
func ParseKeys(raw string) (map[eventbus.Key]bool, bool) {
	keys := make(map[eventbus.Key]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k := eventbus.Key(part)
		if !k.Valid() {
			return nil, false
		}
		keys[k] = true
	}
	return keys, true
}

// HandleWebSocket 处理 WebSocket 连接请求
//
// 路由: GET /ws/invalidations?keys=school_year_updated,strand_updated
//
// 客户端消息：
//
//	心跳：{"type": "ping"} -> 响应 {"type": "pong"}
func (g *InvalidationGateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if g.bus == nil {
		http.Error(w, "invalidation bus not configured", http.StatusServiceUnavailable)
		return
	}
	keys, ok := ParseKeys(r.URL.Query().Get("keys"))
	if !ok {
		http.Error(w, "unknown invalidation key", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}
	defer conn.Close()

	g.addClient(conn, keys)
	defer g.removeClient(conn)
	metrics.WSConnectionOpened()
	defer metrics.WSConnectionClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := g.bus.Subscribe(ctx)
	if err != nil {
		log.Printf("[WS] Subscribe failed: %v", err)
		return
	}

	// writeMu 保证 readPump 的 pong 与 writePump 不会并发写
	var writeMu sync.Mutex
	go g.readPump(conn, &writeMu, cancel)
	g.writePump(ctx, conn, &writeMu, keys, events)
}

func (g *InvalidationGateway) addClient(conn *websocket.Conn, keys map[eventbus.Key]bool) {
	g.mu.Lock()
	g.clients[conn] = keys
	n := len(g.clients)
	g.mu.Unlock()
	log.Printf("[WS] Client connected, total: %d", n)
}

func (g *InvalidationGateway) removeClient(conn *websocket.Conn) {
	g.mu.Lock()
	delete(g.clients, conn)
	n := len(g.clients)
	g.mu.Unlock()
	log.Printf("[WS] Client disconnected, remaining: %d", n)
}

// ClientCount 当前连接数
func (g *InvalidationGateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// readPump 读取客户端消息，连接断开时取消 ctx
func (g *InvalidationGateway) readPump(conn *websocket.Conn, writeMu *sync.Mutex, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Read error: %v", err)
			}
			return
		}

		var req struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg, &req) == nil && req.Type == "ping" {
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			conn.WriteJSON(map[string]string{"type": "pong"})
			writeMu.Unlock()
		}
	}
}

// writePump 转发匹配的失效事件，并定期发送 ping
func (g *InvalidationGateway) writePump(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex,
	keys map[eventbus.Key]bool, events <-chan *eventbus.Invalidation) {
	pingTicker := time.NewTicker(wsPingPeriod)
	defer pingTicker.Stop()

	write := func(fn func() error) bool {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return fn() == nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			if !write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) }) {
				return
			}
		case evt, ok := <-events:
			if !ok {
				return
			}
			if len(keys) > 0 && !keys[evt.Key] {
				continue
			}
			if !write(func() error { return conn.WriteJSON(evt) }) {
				log.Printf("[WS] Write failed, closing connection")
				return
			}
			metrics.RecordWSMessage(string(evt.Key))
		}
	}
}
