package breaker

// Metrics 指标常量定义
const (
	// MetricCallsTotal CanExecute 调用总数 (Counter)
	MetricCallsTotal = "breaker_calls_total"

	// MetricSuccessTotal 成功数 (Counter)
	MetricSuccessTotal = "breaker_success_total"

	// MetricFailuresTotal 失败数 (Counter)
	MetricFailuresTotal = "breaker_failures_total"

	// MetricRejectsTotal 被熔断拒绝数 (Counter)
	MetricRejectsTotal = "breaker_rejects_total"

	// MetricStateChanges 状态变更次数 (Counter)
	MetricStateChanges = "breaker_state_changes_total"

	// MetricFallbackTotal 降级执行次数 (Counter)
	MetricFallbackTotal = "breaker_fallback_total"

	// LabelFromState 源状态标签
	LabelFromState = "from_state"

	// LabelToState 目标状态标签
	LabelToState = "to_state"
)
