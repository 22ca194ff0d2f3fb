// Package balancer 提供了负载均衡组件，从候选实例集中选出一个实例。
//
// balancer 是 meshkit 控制平面的选路组件，它提供了：
// - 四种全局配置的均衡算法：round_robin、least_connections、weighted、health_aware
// - 粘性会话：同一 session 始终路由到同一实例（不重新校验健康状态）
// - 健康过滤：优先选择 active 实例，全部失活时回退到完整候选列表
// - 连接计数与选择统计，供 least_connections 和观测使用
//
// ## 基本使用
//
//	lb, _ := balancer.New(&balancer.Config{
//		Algorithm: balancer.AlgorithmRoundRobin,
//	}, balancer.WithLogger(logger))
//
//	instances := reg.Instances("pay", true)
//	inst := lb.Select("pay", instances, "")
//	if inst == nil {
//		// 无可用实例
//	}
//
//	// 连接计数由调用方在实际 RPC 前后维护
//	lb.AddConnection("pay", inst.ID)
//	defer lb.RemoveConnection("pay", inst.ID)
//
// ## 粘性会话
//
// 传入 session_id 时会记录 session 到实例的绑定；后续选择若绑定实例仍在
// 候选列表中则直接复用，不再检查健康状态。这是已知的过期风险，由产品
// 决策保留（见 DESIGN.md）。
package balancer

import (
	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/registry"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Algorithm 负载均衡算法
type Algorithm string

const (
	// AlgorithmRoundRobin 按服务维护轮转索引，每次选择后推进
	AlgorithmRoundRobin Algorithm = "round_robin"
	// AlgorithmLeastConnections 选择连接计数最小的实例，平局取先出现者
	AlgorithmLeastConnections Algorithm = "least_connections"
	// AlgorithmWeighted 确定性选择静态权重最高的实例（非概率采样）
	AlgorithmWeighted Algorithm = "weighted"
	// AlgorithmHealthAware 先按健康标记过滤，再应用 least_connections
	AlgorithmHealthAware Algorithm = "health_aware"
)

// Balancer 负载均衡器核心接口
type Balancer interface {
	// Select 从候选实例集中选出一个实例，无可选实例时返回 nil
	// sessionID 非空时启用粘性会话。
	Select(service string, candidates []*registry.Instance, sessionID string) *registry.Instance

	// AddConnection 增加实例的连接计数（调用方在发起 RPC 前调用）
	AddConnection(service, instanceID string)

	// RemoveConnection 减少实例的连接计数（调用方在 RPC 结束后调用）
	RemoveConnection(service, instanceID string)

	// SetWeight 配置实例的静态权重（weighted 算法使用）
	SetWeight(instanceID string, weight int)

	// SetHealthy 标记实例的健康状态（health_aware 算法使用）
	SetHealthy(instanceID string, healthy bool)

	// ReleaseSession 解除粘性会话绑定
	ReleaseSession(service, sessionID string)

	// SelectionCounts 返回服务各实例的累计选择次数
	SelectionCounts(service string) map[string]int64

	// Connections 返回实例当前的连接计数
	Connections(service, instanceID string) int
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 负载均衡配置
type Config struct {
	// Algorithm 均衡算法，全局生效（默认：round_robin）
	Algorithm Algorithm `mapstructure:"algorithm" json:"algorithm" yaml:"algorithm"`
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建负载均衡器实例
func New(cfg *Config, opts ...Option) (Balancer, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmRoundRobin
	}

	switch cfg.Algorithm {
	case AlgorithmRoundRobin, AlgorithmLeastConnections, AlgorithmWeighted, AlgorithmHealthAware:
	default:
		return nil, ErrUnknownAlgorithm
	}

	// 应用选项
	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger == nil {
		logger = clog.Discard()
	}

	logger.Info("load balancer created",
		clog.String("algorithm", string(cfg.Algorithm)))

	return newBalancer(cfg, logger, opt.meter), nil
}
