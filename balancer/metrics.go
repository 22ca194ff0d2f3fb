package balancer

// Metrics 指标常量定义
const (
	// MetricSelectionsTotal 实例被选中次数 (Counter)
	MetricSelectionsTotal = "balancer_selections_total"

	// MetricStickyHits 粘性会话命中次数 (Counter)
	MetricStickyHits = "balancer_sticky_hits_total"

	// MetricActiveConnections 实例当前连接数 (Gauge)
	MetricActiveConnections = "balancer_active_connections"
)
