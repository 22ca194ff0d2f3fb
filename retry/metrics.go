package retry

// Metrics 指标常量定义
const (
	// MetricEvaluationsTotal ShouldRetry 评估总数 (Counter)
	MetricEvaluationsTotal = "retry_evaluations_total"

	// MetricRetriesTotal 允许重试的决策数 (Counter)
	MetricRetriesTotal = "retry_allowed_total"

	// MetricDeniedTotal 拒绝重试的决策数，带 reason 标签 (Counter)
	MetricDeniedTotal = "retry_denied_total"
)
