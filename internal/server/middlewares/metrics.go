package middlewares

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// maxDurations bounds the sample kept for the average latency gauge.
const maxDurations = 1000

// HTTPMetrics counts requests per "METHOD route_status".
type HTTPMetrics struct {
	mutex            sync.RWMutex
	requestsTotal    map[string]int64
	requestDurations []float64
	activeRequests   int64
}

// HTTPSnapshot is a copy of HTTPMetrics safe to read without locks.
type HTTPSnapshot struct {
	RequestsTotal      map[string]int64
	AvgDurationSeconds float64
	ActiveRequests     int64
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requestsTotal:    make(map[string]int64),
		requestDurations: make([]float64, 0, maxDurations),
	}
}

func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		m.mutex.Lock()
		m.activeRequests++
		m.mutex.Unlock()

		c.Next()

		duration := time.Since(start).Seconds()
		key := c.Request.Method + " " + c.FullPath() + "_" + strconv.Itoa(c.Writer.Status())

		m.mutex.Lock()
		m.requestsTotal[key]++
		m.requestDurations = append(m.requestDurations, duration)
		m.activeRequests--
		if len(m.requestDurations) > maxDurations {
			m.requestDurations = m.requestDurations[len(m.requestDurations)-maxDurations:]
		}
		m.mutex.Unlock()
	}
}

func (m *HTTPMetrics) Snapshot() HTTPSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	s := HTTPSnapshot{
		RequestsTotal:  make(map[string]int64, len(m.requestsTotal)),
		ActiveRequests: m.activeRequests,
	}
	for k, v := range m.requestsTotal {
		s.RequestsTotal[k] = v
	}
	if n := len(m.requestDurations); n > 0 {
		sum := 0.0
		for _, d := range m.requestDurations {
			sum += d
		}
		s.AvgDurationSeconds = sum / float64(n)
	}
	return s
}
