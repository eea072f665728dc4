package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry 保存本服务的 Prometheus 指标
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twogether",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "twogether",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	functionCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twogether",
			Subsystem: "functions",
			Name:      "calls_total",
			Help:      "Callable function invocations by name and result code.",
		},
		[]string{"function", "code"},
	)

	functionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "twogether",
			Subsystem: "functions",
			Name:      "call_duration_seconds",
			Help:      "Duration of callable function invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"function"},
	)

	starsCredited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twogether",
			Subsystem: "ledger",
			Name:      "stars_credited_total",
			Help:      "Stars credited to user balances by transaction type.",
		},
		[]string{"type"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twogether",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Scheduled job runs by job name and outcome.",
		},
		[]string{"job", "success"},
	)

	realtimeSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "twogether",
			Subsystem: "realtime",
			Name:      "subscribers",
			Help:      "Currently open realtime subscriptions.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		functionCalls,
		functionDuration,
		starsCredited,
		jobRuns,
		realtimeSubscribers,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler 暴露已注册的指标
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// GinMiddleware 按路由模板记录请求数与耗时
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordFunctionCall 记录一次函数调用结果
func RecordFunctionCall(name, code string, duration time.Duration) {
	functionCalls.WithLabelValues(name, code).Inc()
	functionDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordStarsCredited 记录入账的星星数
func RecordStarsCredited(txType string, amount int) {
	if amount <= 0 {
		return
	}
	starsCredited.WithLabelValues(txType).Add(float64(amount))
}

// RecordJobRun 记录一次定时任务执行
func RecordJobRun(job string, success bool) {
	jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
}

// SubscriberOpened 实时订阅数加一
func SubscriberOpened() { realtimeSubscribers.Inc() }

// SubscriberClosed 实时订阅数减一
func SubscriberClosed() { realtimeSubscribers.Dec() }
