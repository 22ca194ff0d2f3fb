package balancer

import (
	"context"
	"sync"

	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/metrics"
	"github.com/ceyewan/meshkit/registry"
)

// loadBalancer 负载均衡器实现（非导出）
type loadBalancer struct {
	cfg    *Config
	logger clog.Logger
	meter  metrics.Meter

	mu          sync.Mutex
	rrIndex     map[string]int              // service -> 轮转索引
	connections map[string]map[string]int   // service -> instanceID -> 连接数
	weights     map[string]int              // instanceID -> 静态权重
	health      map[string]bool             // instanceID -> 健康标记
	sticky      map[string]string           // service|session -> instanceID
	selections  map[string]map[string]int64 // service -> instanceID -> 选择次数
}

// newBalancer 创建负载均衡器（内部函数）
func newBalancer(cfg *Config, logger clog.Logger, meter metrics.Meter) Balancer {
	return &loadBalancer{
		cfg:         cfg,
		logger:      logger,
		meter:       meter,
		rrIndex:     make(map[string]int),
		connections: make(map[string]map[string]int),
		weights:     make(map[string]int),
		health:      make(map[string]bool),
		sticky:      make(map[string]string),
		selections:  make(map[string]map[string]int64),
	}
}

// Select 从候选集选出一个实例
func (lb *loadBalancer) Select(service string, candidates []*registry.Instance, sessionID string) *registry.Instance {
	if len(candidates) == 0 {
		return nil
	}

	lb.mu.Lock()
	defer lb.mu.Unlock()

	// 1. 粘性会话：绑定实例仍在候选列表时直接复用，不重新检查健康状态
	if sessionID != "" {
		if boundID, ok := lb.sticky[stickyKey(service, sessionID)]; ok {
			for _, inst := range candidates {
				if inst.ID == boundID {
					lb.recordSelection(service, inst.ID, true)
					return inst
				}
			}
		}
	}

	// 2. 健康过滤：优先 active 实例，全部失活时回退到完整候选列表
	pool := make([]*registry.Instance, 0, len(candidates))
	for _, inst := range candidates {
		if inst.Status == registry.StatusActive {
			pool = append(pool, inst)
		}
	}
	if len(pool) == 0 {
		pool = candidates
	}

	// 3. 按配置的算法选择
	var selected *registry.Instance
	switch lb.cfg.Algorithm {
	case AlgorithmRoundRobin:
		selected = lb.pickRoundRobin(service, pool)
	case AlgorithmLeastConnections:
		selected = lb.pickLeastConnections(service, pool)
	case AlgorithmWeighted:
		selected = lb.pickWeighted(pool)
	case AlgorithmHealthAware:
		selected = lb.pickHealthAware(service, pool)
	default:
		selected = lb.pickRoundRobin(service, pool)
	}

	if selected == nil {
		return nil
	}

	// 4. 副作用：记录选择统计、更新粘性绑定
	lb.recordSelection(service, selected.ID, false)
	if sessionID != "" {
		lb.sticky[stickyKey(service, sessionID)] = selected.ID
	}

	lb.logger.Debug("instance selected",
		clog.String("service", service),
		clog.String("instance", selected.ID),
		clog.String("algorithm", string(lb.cfg.Algorithm)))

	return selected
}

// pickRoundRobin 轮转选择，索引按服务维护并在每次选择后推进
func (lb *loadBalancer) pickRoundRobin(service string, pool []*registry.Instance) *registry.Instance {
	idx := lb.rrIndex[service]
	lb.rrIndex[service] = idx + 1
	return pool[idx%len(pool)]
}

// pickLeastConnections 选择连接计数最小的实例，平局取先出现者
func (lb *loadBalancer) pickLeastConnections(service string, pool []*registry.Instance) *registry.Instance {
	conns := lb.connections[service]

	var best *registry.Instance
	bestCount := 0
	for _, inst := range pool {
		count := 0
		if conns != nil {
			count = conns[inst.ID]
		}
		if best == nil || count < bestCount {
			best = inst
			bestCount = count
		}
	}
	return best
}

// pickWeighted 确定性选择静态权重最高的实例，平局取先出现者
func (lb *loadBalancer) pickWeighted(pool []*registry.Instance) *registry.Instance {
	var best *registry.Instance
	bestWeight := 0
	for _, inst := range pool {
		w := lb.weights[inst.ID]
		if best == nil || w > bestWeight {
			best = inst
			bestWeight = w
		}
	}
	return best
}

// pickHealthAware 过滤出显式标记健康的实例，再应用 least_connections
// 无任何实例被标记健康时回退到完整池，与健康过滤的降级语义一致。
func (lb *loadBalancer) pickHealthAware(service string, pool []*registry.Instance) *registry.Instance {
	healthy := make([]*registry.Instance, 0, len(pool))
	for _, inst := range pool {
		if lb.health[inst.ID] {
			healthy = append(healthy, inst)
		}
	}
	if len(healthy) == 0 {
		healthy = pool
	}
	return lb.pickLeastConnections(service, healthy)
}

// AddConnection 增加实例连接计数
func (lb *loadBalancer) AddConnection(service, instanceID string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	conns := lb.connections[service]
	if conns == nil {
		conns = make(map[string]int)
		lb.connections[service] = conns
	}
	conns[instanceID]++
}

// RemoveConnection 减少实例连接计数，不会降到 0 以下
func (lb *loadBalancer) RemoveConnection(service, instanceID string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if conns := lb.connections[service]; conns != nil {
		if conns[instanceID] > 0 {
			conns[instanceID]--
		}
	}
}

// SetWeight 配置实例静态权重
func (lb *loadBalancer) SetWeight(instanceID string, weight int) {
	lb.mu.Lock()
	lb.weights[instanceID] = weight
	lb.mu.Unlock()
}

// SetHealthy 标记实例健康状态
func (lb *loadBalancer) SetHealthy(instanceID string, healthy bool) {
	lb.mu.Lock()
	lb.health[instanceID] = healthy
	lb.mu.Unlock()
}

// ReleaseSession 解除粘性会话绑定
func (lb *loadBalancer) ReleaseSession(service, sessionID string) {
	lb.mu.Lock()
	delete(lb.sticky, stickyKey(service, sessionID))
	lb.mu.Unlock()
}

// SelectionCounts 返回服务各实例的累计选择次数
func (lb *loadBalancer) SelectionCounts(service string) map[string]int64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	result := make(map[string]int64, len(lb.selections[service]))
	for id, count := range lb.selections[service] {
		result[id] = count
	}
	return result
}

// Connections 返回实例当前连接计数
func (lb *loadBalancer) Connections(service, instanceID string) int {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if conns := lb.connections[service]; conns != nil {
		return conns[instanceID]
	}
	return 0
}

// recordSelection 记录选择统计，调用方需持有锁（内部使用）
func (lb *loadBalancer) recordSelection(service, instanceID string, sticky bool) {
	sel := lb.selections[service]
	if sel == nil {
		sel = make(map[string]int64)
		lb.selections[service] = sel
	}
	sel[instanceID]++

	if lb.meter == nil {
		return
	}
	if counter, err := lb.meter.Counter(MetricSelectionsTotal, "Instance selections"); err == nil && counter != nil {
		counter.Inc(context.Background(),
			metrics.L(metrics.LabelService, service),
			metrics.L(metrics.LabelInstance, instanceID),
			metrics.L(metrics.LabelAlgorithm, string(lb.cfg.Algorithm)))
	}
	if sticky {
		if counter, err := lb.meter.Counter(MetricStickyHits, "Sticky session hits"); err == nil && counter != nil {
			counter.Inc(context.Background(), metrics.L(metrics.LabelService, service))
		}
	}
}

// stickyKey 粘性会话的内部键（内部使用）
func stickyKey(service, sessionID string) string {
	return service + "|" + sessionID
}
