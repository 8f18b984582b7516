package handlers

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/vzahanych/weather-timeline/internal/server/middlewares"
	"go.uber.org/zap"
)

// AppMetrics counts provider traffic.
type AppMetrics struct {
	mutex          sync.RWMutex
	providerCalls  map[string]int64
	providerErrors map[string]int64
	quotaExceeded  int64
}

type HTTPMetricsSource interface {
	Snapshot() middlewares.HTTPSnapshot
}

type MetricsHandler struct {
	logger      *zap.Logger
	appMetrics  *AppMetrics
	httpMetrics HTTPMetricsSource
}

func NewMetricsHandler(logger *zap.Logger, httpMetrics HTTPMetricsSource) *MetricsHandler {
	return &MetricsHandler{
		logger: logger,
		appMetrics: &AppMetrics{
			providerCalls:  make(map[string]int64),
			providerErrors: make(map[string]int64),
		},
		httpMetrics: httpMetrics,
	}
}

// RecordProviderCall satisfies gateway.MetricsRecorder.
func (h *MetricsHandler) RecordProviderCall(ctx context.Context, operation string, statusCode int, success bool) {
	h.appMetrics.mutex.Lock()
	defer h.appMetrics.mutex.Unlock()

	h.appMetrics.providerCalls[operation]++
	if !success {
		h.appMetrics.providerErrors[operation]++
	}
	if statusCode == http.StatusTooManyRequests {
		h.appMetrics.quotaExceeded++
	}
}

// ServeMetrics writes the counters in Prometheus text format.
func (h *MetricsHandler) ServeMetrics(c *gin.Context) {
	var b strings.Builder

	if h.httpMetrics != nil {
		snap := h.httpMetrics.Snapshot()

		b.WriteString("# HELP http_requests_total Total number of HTTP requests\n")
		b.WriteString("# TYPE http_requests_total counter\n")
		for _, key := range sortedKeys(snap.RequestsTotal) {
			b.WriteString("http_requests_total{route_status=\"" + key + "\"} " + strconv.FormatInt(snap.RequestsTotal[key], 10) + "\n")
		}

		b.WriteString("\n# HELP http_request_duration_seconds_avg Average duration of HTTP requests\n")
		b.WriteString("# TYPE http_request_duration_seconds_avg gauge\n")
		b.WriteString("http_request_duration_seconds_avg " + strconv.FormatFloat(snap.AvgDurationSeconds, 'f', 6, 64) + "\n")

		b.WriteString("\n# HELP http_active_requests Number of active HTTP requests\n")
		b.WriteString("# TYPE http_active_requests gauge\n")
		b.WriteString("http_active_requests " + strconv.FormatInt(snap.ActiveRequests, 10) + "\n\n")
	}

	h.appMetrics.mutex.RLock()
	defer h.appMetrics.mutex.RUnlock()

	b.WriteString("# HELP provider_calls_total Total weather provider calls\n")
	b.WriteString("# TYPE provider_calls_total counter\n")
	for _, op := range sortedKeys(h.appMetrics.providerCalls) {
		b.WriteString("provider_calls_total{operation=\"" + op + "\"} " + strconv.FormatInt(h.appMetrics.providerCalls[op], 10) + "\n")
	}

	b.WriteString("\n# HELP provider_errors_total Total failed weather provider calls\n")
	b.WriteString("# TYPE provider_errors_total counter\n")
	for _, op := range sortedKeys(h.appMetrics.providerErrors) {
		b.WriteString("provider_errors_total{operation=\"" + op + "\"} " + strconv.FormatInt(h.appMetrics.providerErrors[op], 10) + "\n")
	}

	b.WriteString("\n# HELP provider_quota_exceeded_total Provider calls rejected with 429\n")
	b.WriteString("# TYPE provider_quota_exceeded_total counter\n")
	b.WriteString("provider_quota_exceeded_total " + strconv.FormatInt(h.appMetrics.quotaExceeded, 10) + "\n")

	c.Header("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	c.String(http.StatusOK, b.String())
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
