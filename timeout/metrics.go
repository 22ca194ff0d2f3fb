package timeout

// Metrics 指标常量定义
const (
	// MetricRequestsStarted 登记的请求总数 (Counter)
	MetricRequestsStarted = "timeout_requests_started_total"

	// MetricTimeoutsTotal 检测到的超时次数 (Counter)
	MetricTimeoutsTotal = "timeout_exceeded_total"

	// MetricActiveRequests 当前在途请求数 (Gauge)
	MetricActiveRequests = "timeout_active_requests"

	// MetricRequestDuration 请求耗时分布 (Histogram, seconds)
	MetricRequestDuration = "timeout_request_duration_seconds"
)
