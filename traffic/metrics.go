package traffic

// Metrics 指标常量定义
const (
	// MetricDecisionsTotal 路由决策总数，带 routing_type 标签 (Counter)
	MetricDecisionsTotal = "traffic_decisions_total"

	// MetricMirrorsTotal 命中镜像的请求数 (Counter)
	MetricMirrorsTotal = "traffic_mirrors_total"
)
