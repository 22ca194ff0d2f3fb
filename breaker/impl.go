package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/metrics"
)

// circuit 单个服务的熔断记录，由自身的互斥锁保护（单写者）
type circuit struct {
	mu sync.Mutex

	state            State
	failureCount     int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	halfOpenAttempts int

	stats Stats
}

// circuitBreaker 熔断器实现（非导出）
type circuitBreaker struct {
	cfg    *Config
	logger clog.Logger
	meter  metrics.Meter
	clock  Clock

	// 服务级熔断记录，首次查询时惰性创建
	circuits  sync.Map // map[string]*circuit
	fallbacks sync.Map // map[string]FallbackFunc
}

// newBreaker 创建熔断器实例（内部函数）
func newBreaker(cfg *Config, logger clog.Logger, meter metrics.Meter, clock Clock) (Breaker, error) {
	// 设置默认值
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if clock == nil {
		clock = time.Now
	}

	logger.Info("circuit breaker created",
		clog.Int("failure_threshold", cfg.FailureThreshold),
		clog.Duration("recovery_timeout", cfg.RecoveryTimeout),
		clog.Int("half_open_max", cfg.HalfOpenMax))

	return &circuitBreaker{
		cfg:    cfg,
		logger: logger,
		meter:  meter,
		clock:  clock,
	}, nil
}

// CanExecute 判断调用是否允许通过
func (cb *circuitBreaker) CanExecute(service string) bool {
	c := cb.getOrCreate(service)
	now := cb.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.TotalCalls++
	cb.count(MetricCallsTotal, service)

	switch c.state {
	case StateClosed:
		return true

	case StateOpen:
		// 恢复超时已过，转入半开并占用一个探测槽位
		if now.Sub(c.lastFailureTime) >= cb.cfg.RecoveryTimeout {
			cb.transition(service, c, StateHalfOpen, now)
			c.halfOpenAttempts = 1
			return true
		}
		c.stats.Rejected++
		cb.count(MetricRejectsTotal, service)
		return false

	case StateHalfOpen:
		if c.halfOpenAttempts < cb.cfg.HalfOpenMax {
			c.halfOpenAttempts++
			return true
		}
		c.stats.Rejected++
		cb.count(MetricRejectsTotal, service)
		return false

	default:
		return false
	}
}

// RecordSuccess 记录调用成功
func (cb *circuitBreaker) RecordSuccess(service string) {
	c := cb.getOrCreate(service)
	now := cb.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Successes++
	cb.count(MetricSuccessTotal, service)

	if c.state == StateHalfOpen {
		cb.transition(service, c, StateClosed, now)
		c.failureCount = 0
		c.halfOpenAttempts = 0
	}
}

// RecordFailure 记录调用失败
func (cb *circuitBreaker) RecordFailure(service string) {
	c := cb.getOrCreate(service)
	now := cb.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.failureCount++
	c.lastFailureTime = now
	c.stats.Failures++
	cb.count(MetricFailuresTotal, service)

	switch c.state {
	case StateHalfOpen:
		// 探测失败，重新打开
		cb.transition(service, c, StateOpen, now)
		c.halfOpenAttempts = 0

	case StateClosed:
		if c.failureCount >= cb.cfg.FailureThreshold {
			cb.transition(service, c, StateOpen, now)
		}
	}
}

// State 返回服务当前的熔断状态
func (cb *circuitBreaker) State(service string) State {
	val, ok := cb.circuits.Load(service)
	if !ok {
		return StateClosed
	}

	c := val.(*circuit)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ForceOpen 手动打开熔断器
func (cb *circuitBreaker) ForceOpen(service string) {
	c := cb.getOrCreate(service)
	now := cb.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		cb.transition(service, c, StateOpen, now)
	}
	// 让恢复超时从当前时刻重新计时
	c.lastFailureTime = now
}

// ForceClose 手动关闭熔断器
func (cb *circuitBreaker) ForceClose(service string) {
	c := cb.getOrCreate(service)
	now := cb.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateClosed {
		cb.transition(service, c, StateClosed, now)
	}
	c.failureCount = 0
	c.halfOpenAttempts = 0
}

// Reset 清空服务的熔断记录
func (cb *circuitBreaker) Reset(service string) {
	cb.circuits.Delete(service)
	cb.logger.Info("circuit reset", clog.String("service", service))
}

// RegisterFallback 注册服务的降级函数
func (cb *circuitBreaker) RegisterFallback(service string, fn FallbackFunc) {
	if fn == nil {
		cb.fallbacks.Delete(service)
		return
	}
	cb.fallbacks.Store(service, fn)
}

// Fallback 执行服务的降级函数
// 降级函数自身的错误不会被静默吞掉：记录日志后返回 ErrNoFallback。
func (cb *circuitBreaker) Fallback(ctx context.Context, service string) (any, error) {
	val, ok := cb.fallbacks.Load(service)
	if !ok {
		return nil, ErrNoFallback
	}

	cb.count(MetricFallbackTotal, service)

	result, err := val.(FallbackFunc)(ctx, service)
	if err != nil {
		cb.logger.Warn("fallback failed",
			clog.String("service", service),
			clog.Error(err))
		return nil, ErrNoFallback
	}
	return result, nil
}

// Stats 返回服务的调用统计
func (cb *circuitBreaker) Stats(service string) Stats {
	val, ok := cb.circuits.Load(service)
	if !ok {
		return Stats{}
	}

	c := val.(*circuit)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// getOrCreate 获取或惰性创建服务的熔断记录
func (cb *circuitBreaker) getOrCreate(service string) *circuit {
	if val, ok := cb.circuits.Load(service); ok {
		return val.(*circuit)
	}

	c := &circuit{
		state:           StateClosed,
		lastStateChange: cb.clock(),
	}

	// 并发创建时使用 LoadOrStore 保证唯一
	actual, _ := cb.circuits.LoadOrStore(service, c)
	return actual.(*circuit)
}

// transition 执行状态转换，调用方需持有记录锁（内部使用）
func (cb *circuitBreaker) transition(service string, c *circuit, to State, now time.Time) {
	from := c.state
	c.state = to
	c.lastStateChange = now

	cb.logger.Info("circuit state changed",
		clog.String("service", service),
		clog.String("from", from.String()),
		clog.String("to", to.String()))

	if cb.meter != nil {
		if counter, err := cb.meter.Counter(MetricStateChanges, "Circuit breaker state changes"); err == nil && counter != nil {
			counter.Inc(context.Background(),
				metrics.L(metrics.LabelService, service),
				metrics.L(LabelFromState, from.String()),
				metrics.L(LabelToState, to.String()))
		}
	}
}

// count 记录计数指标（内部使用）
func (cb *circuitBreaker) count(metricName, service string) {
	if cb.meter == nil {
		return
	}
	if counter, err := cb.meter.Counter(metricName, "Circuit breaker calls"); err == nil && counter != nil {
		counter.Inc(context.Background(), metrics.L(metrics.LabelService, service))
	}
}
