package timeout

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/metrics"
)

// entry 单个在途请求的登记记录
type entry struct {
	service  string
	start    time.Time
	deadline time.Time
}

// serviceTimeouts 服务级超时配置
type serviceTimeouts struct {
	request time.Duration
	connect time.Duration
}

// manager 超时管理器实现（非导出）
type manager struct {
	cfg    *Config
	logger clog.Logger
	meter  metrics.Meter
	clock  Clock

	mu       sync.Mutex
	entries  map[string]*entry
	services map[string]serviceTimeouts
	budgets  map[string]time.Duration
}

// newManager 创建超时管理器实例（内部函数）
func newManager(cfg *Config, logger clog.Logger, meter metrics.Meter, clock Clock) (Manager, error) {
	// 设置默认值
	if cfg.DefaultRequestTimeout <= 0 {
		cfg.DefaultRequestTimeout = 5 * time.Second
	}
	if cfg.DefaultConnectTimeout <= 0 {
		cfg.DefaultConnectTimeout = time.Second
	}
	if clock == nil {
		clock = time.Now
	}

	logger.Info("timeout manager created",
		clog.Duration("default_request_timeout", cfg.DefaultRequestTimeout),
		clog.Duration("default_connect_timeout", cfg.DefaultConnectTimeout))

	return &manager{
		cfg:      cfg,
		logger:   logger,
		meter:    meter,
		clock:    clock,
		entries:  make(map[string]*entry),
		services: make(map[string]serviceTimeouts),
		budgets:  make(map[string]time.Duration),
	}, nil
}

// StartRequest 登记一个在途请求
func (m *manager) StartRequest(requestID, service string, deadline ...time.Time) Entry {
	now := m.clock()

	m.mu.Lock()
	dl := m.deadlineLocked(service, now, deadline...)
	m.entries[requestID] = &entry{service: service, start: now, deadline: dl}
	active := len(m.entries)
	m.mu.Unlock()

	m.count(MetricRequestsStarted, service)
	m.gaugeActive(active)

	m.logger.Debug("request started",
		clog.String("request_id", requestID),
		clog.String("service", service),
		clog.Time("deadline", dl))

	return Entry{Deadline: dl, Remaining: dl.Sub(now)}
}

// CheckTimeout 检测请求是否超时
func (m *manager) CheckTimeout(requestID string) Check {
	now := m.clock()

	m.mu.Lock()
	e, ok := m.entries[requestID]
	m.mu.Unlock()

	if !ok {
		return Check{}
	}

	elapsed := now.Sub(e.start)
	if !now.Before(e.deadline) {
		m.count(MetricTimeoutsTotal, e.service)
		return Check{TimedOut: true, Remaining: 0, Elapsed: elapsed}
	}
	return Check{TimedOut: false, Remaining: e.deadline.Sub(now), Elapsed: elapsed}
}

// EndRequest 结束请求并移除登记
func (m *manager) EndRequest(requestID string) (*Result, bool) {
	now := m.clock()

	m.mu.Lock()
	e, ok := m.entries[requestID]
	if ok {
		delete(m.entries, requestID)
	}
	active := len(m.entries)
	m.mu.Unlock()

	if !ok {
		return nil, false
	}

	elapsed := now.Sub(e.start)
	m.gaugeActive(active)
	m.recordDuration(e.service, elapsed)

	m.logger.Debug("request ended",
		clog.String("request_id", requestID),
		clog.String("service", e.service),
		clog.Duration("elapsed", elapsed))

	return &Result{Service: e.service, Elapsed: elapsed}, true
}

// PropagateDeadline 从父请求向子请求传播截止时间
func (m *manager) PropagateDeadline(parentID, childID, service string, overhead time.Duration) Entry {
	now := m.clock()

	m.mu.Lock()
	parent, ok := m.entries[parentID]
	if !ok {
		// 父请求未知，等价于全新登记
		dl := m.deadlineLocked(service, now)
		m.entries[childID] = &entry{service: service, start: now, deadline: dl}
		m.mu.Unlock()

		m.count(MetricRequestsStarted, service)
		return Entry{Deadline: dl, Remaining: dl.Sub(now)}
	}

	dl := parent.deadline.Add(-overhead)
	m.entries[childID] = &entry{service: service, start: now, deadline: dl}
	m.mu.Unlock()

	m.count(MetricRequestsStarted, service)

	m.logger.Debug("deadline propagated",
		clog.String("parent_id", parentID),
		clog.String("child_id", childID),
		clog.String("service", service),
		clog.Duration("overhead", overhead),
		clog.Time("deadline", dl))

	return Entry{Deadline: dl, Remaining: dl.Sub(now)}
}

// SetServiceTimeout 设置服务级超时配置
func (m *manager) SetServiceTimeout(service string, requestTimeout, connectTimeout time.Duration) {
	m.mu.Lock()
	m.services[service] = serviceTimeouts{request: requestTimeout, connect: connectTimeout}
	m.mu.Unlock()

	m.logger.Info("service timeout configured",
		clog.String("service", service),
		clog.Duration("request_timeout", requestTimeout),
		clog.Duration("connect_timeout", connectTimeout))
}

// ServiceTimeout 返回服务生效的超时配置
func (m *manager) ServiceTimeout(service string) (time.Duration, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.services[service]
	request := st.request
	connect := st.connect
	if !ok || request <= 0 {
		request = m.cfg.DefaultRequestTimeout
	}
	if !ok || connect <= 0 {
		connect = m.cfg.DefaultConnectTimeout
	}
	return request, connect
}

// SetBudget 设置服务的累计超时预算
func (m *manager) SetBudget(service string, total time.Duration) {
	m.mu.Lock()
	m.budgets[service] = total
	m.mu.Unlock()
}

// ConsumeBudget 从服务预算中扣除已消耗的时长
// 未配置预算的服务视为不限额，始终返回未耗尽。
func (m *manager) ConsumeBudget(service string, amount time.Duration) Budget {
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining, ok := m.budgets[service]
	if !ok {
		return Budget{}
	}

	remaining -= amount
	if remaining <= 0 {
		m.budgets[service] = 0
		return Budget{Remaining: 0, Exhausted: true}
	}
	m.budgets[service] = remaining
	return Budget{Remaining: remaining, Exhausted: false}
}

// ActiveCount 返回当前在途请求数
func (m *manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// deadlineLocked 计算请求的截止时间，调用方需持有锁（内部函数）
func (m *manager) deadlineLocked(service string, now time.Time, deadline ...time.Time) time.Time {
	if len(deadline) > 0 && !deadline[0].IsZero() {
		return deadline[0]
	}

	request := m.cfg.DefaultRequestTimeout
	if st, ok := m.services[service]; ok && st.request > 0 {
		request = st.request
	}
	return now.Add(request)
}

// count 记录计数指标（内部函数）
func (m *manager) count(metricName, service string) {
	if m.meter == nil {
		return
	}
	if counter, err := m.meter.Counter(metricName, "Timeout manager requests"); err == nil && counter != nil {
		counter.Inc(context.Background(), metrics.L(metrics.LabelService, service))
	}
}

// gaugeActive 更新在途请求数指标（内部函数）
func (m *manager) gaugeActive(active int) {
	if m.meter == nil {
		return
	}
	if gauge, err := m.meter.Gauge(MetricActiveRequests, "In-flight requests"); err == nil && gauge != nil {
		gauge.Set(context.Background(), float64(active))
	}
}

// recordDuration 记录请求耗时分布（内部函数）
func (m *manager) recordDuration(service string, elapsed time.Duration) {
	if m.meter == nil {
		return
	}
	if hist, err := m.meter.Histogram(MetricRequestDuration, "Request duration", metrics.WithUnit("seconds")); err == nil && hist != nil {
		hist.Record(context.Background(), elapsed.Seconds(), metrics.L(metrics.LabelService, service))
	}
}
