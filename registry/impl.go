package registry

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/metrics"
)

// serviceEntry 单个服务的内部记录（非导出）
type serviceEntry struct {
	name      string
	order     []string // 实例 ID，保持注册顺序
	instances map[string]*Instance
}

// memoryRegistry 注册表实现（非导出）
type memoryRegistry struct {
	cfg    *Config
	logger clog.Logger
	meter  metrics.Meter
	clock  Clock

	mu       sync.RWMutex
	services map[string]*serviceEntry
}

// newRegistry 创建注册表实例（内部函数）
func newRegistry(cfg *Config, logger clog.Logger, meter metrics.Meter, clock Clock) (Registry, error) {
	// 设置默认值
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 30 * time.Second
	}
	if cfg.DefaultTTL < 0 {
		cfg.DefaultTTL = 0
	}
	if clock == nil {
		clock = time.Now
	}

	logger.Info("service registry created",
		clog.Duration("default_ttl", cfg.DefaultTTL))

	return &memoryRegistry{
		cfg:      cfg,
		logger:   logger,
		meter:    meter,
		clock:    clock,
		services: make(map[string]*serviceEntry),
	}, nil
}

// Register 注册服务实例，重复注册整体替换并重置心跳
func (r *memoryRegistry) Register(name, host string, port int, version string, metadata map[string]string, ttl time.Duration) string {
	if ttl == 0 {
		ttl = r.cfg.DefaultTTL
	}
	if ttl < 0 {
		ttl = 0
	}

	id := InstanceID(host, port)
	now := r.clock()

	inst := &Instance{
		ID:            id,
		Name:          name,
		Host:          host,
		Port:          port,
		Version:       version,
		Status:        StatusActive,
		TTL:           ttl,
		LastHeartbeat: now,
		Metadata:      metadata,
	}

	r.mu.Lock()
	entry, ok := r.services[name]
	if !ok {
		entry = &serviceEntry{
			name:      name,
			instances: make(map[string]*Instance),
		}
		r.services[name] = entry
	}
	if _, exists := entry.instances[id]; !exists {
		entry.order = append(entry.order, id)
	}
	entry.instances[id] = inst
	r.mu.Unlock()

	r.logger.Debug("instance registered",
		clog.String("service", name),
		clog.String("instance", id),
		clog.String("version", version),
		clog.Duration("ttl", ttl))
	r.count(MetricInstancesRegistered, name)

	return id
}

// Deregister 注销实例或整个服务
func (r *memoryRegistry) Deregister(name string, instanceID ...string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.services[name]
	if !ok {
		return false
	}

	// 不传实例 ID 时移除整个服务
	if len(instanceID) == 0 || instanceID[0] == "" {
		delete(r.services, name)
		r.logger.Debug("service deregistered", clog.String("service", name))
		r.count(MetricInstancesDeregistered, name)
		return true
	}

	id := instanceID[0]
	if _, exists := entry.instances[id]; !exists {
		return false
	}
	delete(entry.instances, id)
	entry.removeFromOrder(id)
	if len(entry.instances) == 0 {
		delete(r.services, name)
	}

	r.logger.Debug("instance deregistered",
		clog.String("service", name),
		clog.String("instance", id))
	r.count(MetricInstancesDeregistered, name)
	return true
}

// Heartbeat 刷新实例心跳，未知实例返回 false
func (r *memoryRegistry) Heartbeat(name, instanceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.lookup(name, instanceID)
	if !ok {
		return false
	}
	inst.LastHeartbeat = r.clock()
	r.count(MetricHeartbeats, name)
	return true
}

// SetStatus 更新实例状态
func (r *memoryRegistry) SetStatus(name, instanceID string, status Status) bool {
	if status != StatusActive && status != StatusInactive {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.lookup(name, instanceID)
	if !ok {
		return false
	}
	inst.Status = status
	return true
}

// Instances 返回服务实例列表，healthyOnly 时仅返回 active 实例
func (r *memoryRegistry) Instances(name string, healthyOnly bool) []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.services[name]
	if !ok {
		return nil
	}

	result := make([]*Instance, 0, len(entry.order))
	for _, id := range entry.order {
		inst := entry.instances[id]
		if healthyOnly && inst.Status != StatusActive {
			continue
		}
		cp := *inst
		result = append(result, &cp)
	}
	return result
}

// Service 返回服务聚合视图
func (r *memoryRegistry) Service(name string) (*Service, bool) {
	instances := r.Instances(name, false)
	if instances == nil {
		return nil, false
	}

	status := StatusInactive
	for _, inst := range instances {
		if inst.Status == StatusActive {
			status = StatusActive
			break
		}
	}

	return &Service{
		Name:      name,
		Instances: instances,
		Status:    status,
	}, true
}

// Services 返回所有已注册的服务名
func (r *memoryRegistry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}

// CleanupExpired 移除所有 TTL 过期的实例，返回移除数量
func (r *memoryRegistry) CleanupExpired() int {
	now := r.clock()
	count := 0

	r.mu.Lock()
	for name, entry := range r.services {
		for _, id := range append([]string{}, entry.order...) {
			inst := entry.instances[id]
			if inst.TTL <= 0 {
				continue
			}
			if now.Sub(inst.LastHeartbeat) >= inst.TTL {
				delete(entry.instances, id)
				entry.removeFromOrder(id)
				count++
				r.logger.Debug("instance expired",
					clog.String("service", name),
					clog.String("instance", id))
			}
		}
		if len(entry.instances) == 0 {
			delete(r.services, name)
		}
	}
	r.mu.Unlock()

	if count > 0 {
		r.logger.Info("expired instances cleaned up", clog.Int("count", count))
		if r.meter != nil {
			if counter, err := r.meter.Counter(MetricInstancesExpired, "Expired instances removed"); err == nil && counter != nil {
				counter.Add(context.Background(), float64(count))
			}
		}
	}
	return count
}

// lookup 查找实例，调用方需持有锁（内部使用）
func (r *memoryRegistry) lookup(name, instanceID string) (*Instance, bool) {
	entry, ok := r.services[name]
	if !ok {
		return nil, false
	}
	inst, ok := entry.instances[instanceID]
	return inst, ok
}

// count 记录计数指标（内部使用）
func (r *memoryRegistry) count(metricName, service string) {
	if r.meter == nil {
		return
	}
	if counter, err := r.meter.Counter(metricName, "Registry operations"); err == nil && counter != nil {
		counter.Inc(context.Background(), metrics.L(metrics.LabelService, service))
	}
}

// removeFromOrder 从顺序切片中移除实例 ID（内部使用）
func (e *serviceEntry) removeFromOrder(id string) {
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}
