// Package metrics Prometheus 指标导出
//
// 指标在包初始化时注册到默认 Registry，各 handler 包直接调用 Record* 函数。
package metrics

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"memoria/pkg/logging"
)

const namespace = "memoria"

var (
	// HTTP 请求指标
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)

	// 档案指标
	profileSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_submissions_total",
			Help:      "Total profile submissions by type and initial status",
		},
		[]string{"type", "status"},
	)
	moderationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_transitions_total",
			Help:      "Total moderation transitions by target status",
		},
		[]string{"status"},
	)

	// 通知指标
	notificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Total notifications created by category",
		},
		[]string{"category"},
	)

	// WebSocket 指标
	wsConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_active",
			Help:      "Active invalidation WebSocket connections",
		},
	)
	wsMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_messages_total",
			Help:      "Total invalidation messages pushed by key",
		},
		[]string{"key"},
	)

	// 缓存指标
	cacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_cache_requests_total",
			Help:      "Dashboard stats cache lookups by result",
		},
		[]string{"result"},
	)

	// 发件箱指标
	mailOutboxLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mail_outbox_length",
			Help:      "Entries in the mail outbox stream",
		},
	)
	mailOutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mail_outbox_pending",
			Help:      "Outbox mails read but not yet acknowledged",
		},
	)
)

// RequestIDHeader 请求追踪 ID 头，客户端未提供时生成
const RequestIDHeader = "X-Request-ID"

var requestLogger = logging.Default("http")

// Middleware 创建 HTTP 指标中间件
//
// 同时为请求分配追踪 ID 并输出访问日志（/metrics 抓取不记录）。
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		traceID := r.Header.Get(RequestIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, traceID)
		r = r.WithContext(logging.ContextWithTraceID(r.Context(), traceID))

		// 包装 ResponseWriter 以捕获状态码
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		took := time.Since(start)
		path := r.Pattern
		if path == "" {
			path = normalizePath(r.URL.Path)
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(took.Seconds())

		if path != "GET /metrics" {
			requestLogger.WithContext(r.Context()).
				HTTPRequestLog(r.Method, r.URL.Path, wrapped.statusCode, took, clientIP(r))
		}
	})
}

// clientIP 优先取反向代理转发的地址
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath 未匹配路由时按前两级路径聚合，避免高基数
func normalizePath(path string) string {
	parts := strings.SplitN(strings.Trim(path, "/"), "/", 3)
	if len(parts) > 2 {
		return "/" + parts[0] + "/" + parts[1] + "/*"
	}
	return path
}

// Handler 返回 Prometheus HTTP Handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSubmission 记录档案提交
func RecordSubmission(profileType, status string) {
	profileSubmissions.WithLabelValues(profileType, status).Inc()
}

// RecordTransition 记录审核状态变更
func RecordTransition(status string) {
	moderationTransitions.WithLabelValues(status).Inc()
}

// RecordNotification 记录通知创建
func RecordNotification(category string) {
	notificationsCreated.WithLabelValues(category).Inc()
}

// RecordCacheLookup 记录统计缓存命中情况
func RecordCacheLookup(hit bool) {
	if hit {
		cacheRequests.WithLabelValues("hit").Inc()
		return
	}
	cacheRequests.WithLabelValues("miss").Inc()
}

// WSConnectionOpened WebSocket 连接打开
func WSConnectionOpened() {
	wsConnectionsActive.Inc()
}

// WSConnectionClosed WebSocket 连接关闭
func WSConnectionClosed() {
	wsConnectionsActive.Dec()
}

// RecordWSMessage 记录推送的失效消息
func RecordWSMessage(key string) {
	wsMessagesTotal.WithLabelValues(key).Inc()
}

// SetMailOutbox 更新发件箱长度和未确认数量
func SetMailOutbox(length, pending int64) {
	mailOutboxLength.Set(float64(length))
	mailOutboxPending.Set(float64(pending))
}
