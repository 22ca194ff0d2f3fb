package mesh

// Metrics 指标常量定义
const (
	// MetricRequestsTotal 路由请求总数，带 status 标签 (Counter)
	MetricRequestsTotal = "mesh_requests_total"

	// MetricResultsTotal 回写的调用结果数，带 result 标签 (Counter)
	MetricResultsTotal = "mesh_results_total"

	// LabelStatus 决策状态标签
	LabelStatus = "status"
)
