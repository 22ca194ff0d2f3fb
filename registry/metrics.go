package registry

// Metrics 指标常量定义
const (
	// MetricInstancesRegistered 实例注册次数 (Counter)
	MetricInstancesRegistered = "registry_instances_registered_total"

	// MetricInstancesDeregistered 实例注销次数 (Counter)
	MetricInstancesDeregistered = "registry_instances_deregistered_total"

	// MetricInstancesExpired TTL 过期被清理的实例数 (Counter)
	MetricInstancesExpired = "registry_instances_expired_total"

	// MetricHeartbeats 心跳次数 (Counter)
	MetricHeartbeats = "registry_heartbeats_total"

	// MetricActiveInstances 当前活跃实例数 (Gauge)
	MetricActiveInstances = "registry_active_instances"
)
