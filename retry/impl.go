package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/metrics"
)

// servicePolicy 服务级策略覆盖
type servicePolicy struct {
	maxAttempts int
	strategy    string
}

// budget 服务级重试预算
type budget struct {
	remaining int
	max       int
	window    time.Duration
	resetAt   time.Time
}

// retryPolicy 重试策略实现（非导出）
type retryPolicy struct {
	cfg    *Config
	logger clog.Logger
	meter  metrics.Meter
	clock  Clock
	rand   Rand

	mu       sync.Mutex
	policies map[string]servicePolicy
	budgets  map[string]*budget

	idempotent sync.Map // map[string]struct{}
}

// newPolicy 创建重试策略实例（内部函数）
func newPolicy(cfg *Config, logger clog.Logger, meter metrics.Meter, clock Clock, r Rand) (Policy, error) {
	// 设置默认值
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyExponential
	}
	if !validStrategy(cfg.Strategy) {
		return nil, ErrUnknownStrategy
	}
	if clock == nil {
		clock = time.Now
	}
	if r == nil {
		r = rand.Float64
	}

	logger.Info("retry policy created",
		clog.Int("max_attempts", cfg.MaxAttempts),
		clog.Duration("base_delay", cfg.BaseDelay),
		clog.Duration("max_delay", cfg.MaxDelay),
		clog.String("strategy", cfg.Strategy))

	return &retryPolicy{
		cfg:      cfg,
		logger:   logger,
		meter:    meter,
		clock:    clock,
		rand:     r,
		policies: make(map[string]servicePolicy),
		budgets:  make(map[string]*budget),
	}, nil
}

func validStrategy(s string) bool {
	switch s {
	case StrategyFixed, StrategyExponential, StrategyLinear, StrategyJitter, StrategyFibonacci:
		return true
	}
	return false
}

// ShouldRetry 评估是否应当重试
func (p *retryPolicy) ShouldRetry(service string, attempt int, callErr error) Decision {
	now := p.clock()

	p.mu.Lock()

	maxAttempts := p.cfg.MaxAttempts
	strategy := p.cfg.Strategy
	if sp, ok := p.policies[service]; ok {
		maxAttempts = sp.maxAttempts
		strategy = sp.strategy
	}

	// 预算检查先于次数检查：每次评估都消耗一个预算单位
	if b, ok := p.budgets[service]; ok {
		if !now.Before(b.resetAt) {
			b.remaining = b.max
			b.resetAt = now.Add(b.window)
		}
		if b.remaining <= 0 {
			p.mu.Unlock()
			return p.deny(service, attempt, ReasonBudgetExhausted)
		}
		b.remaining--
	}
	p.mu.Unlock()

	if attempt >= maxAttempts {
		return p.deny(service, attempt, ReasonMaxAttempts)
	}

	delay := p.computeDelay(strategy, attempt)

	p.count(MetricEvaluationsTotal, service, "")
	p.count(MetricRetriesTotal, service, "")

	p.logger.Debug("retry allowed",
		clog.String("service", service),
		clog.Int("attempt", attempt),
		clog.String("strategy", strategy),
		clog.Duration("delay", delay),
		clog.Error(callErr))

	return Decision{
		Retry:       true,
		Delay:       delay,
		NextAttempt: attempt + 1,
	}
}

// SetPolicy 设置服务级策略覆盖
func (p *retryPolicy) SetPolicy(service string, maxAttempts int, strategy string) error {
	if !validStrategy(strategy) {
		return ErrUnknownStrategy
	}
	if maxAttempts <= 0 {
		maxAttempts = p.cfg.MaxAttempts
	}

	p.mu.Lock()
	p.policies[service] = servicePolicy{maxAttempts: maxAttempts, strategy: strategy}
	p.mu.Unlock()

	p.logger.Info("retry policy overridden",
		clog.String("service", service),
		clog.Int("max_attempts", maxAttempts),
		clog.String("strategy", strategy))
	return nil
}

// SetBudget 设置服务的重试预算
func (p *retryPolicy) SetBudget(service string, max int, window time.Duration) {
	now := p.clock()

	p.mu.Lock()
	p.budgets[service] = &budget{
		remaining: max,
		max:       max,
		window:    window,
		resetAt:   now.Add(window),
	}
	p.mu.Unlock()

	p.logger.Info("retry budget set",
		clog.String("service", service),
		clog.Int("max", max),
		clog.Duration("window", window))
}

// ResetBudget 立即重置服务的重试预算
func (p *retryPolicy) ResetBudget(service string) {
	now := p.clock()

	p.mu.Lock()
	if b, ok := p.budgets[service]; ok {
		b.remaining = b.max
		b.resetAt = now.Add(b.window)
	}
	p.mu.Unlock()
}

// MarkIdempotent 标记幂等键，仅首次返回 true
func (p *retryPolicy) MarkIdempotent(key string) bool {
	_, loaded := p.idempotent.LoadOrStore(key, struct{}{})
	return !loaded
}

// computeDelay 按策略计算退避时长，结果不超过 MaxDelay（内部函数）
func (p *retryPolicy) computeDelay(strategy string, attempt int) time.Duration {
	base := p.cfg.BaseDelay

	var delay time.Duration
	switch strategy {
	case StrategyFixed:
		delay = base
	case StrategyExponential:
		delay = base << uint(attempt)
	case StrategyLinear:
		delay = base * time.Duration(attempt+1)
	case StrategyJitter:
		// uniform(0.5, 1.5) 抖动
		factor := 0.5 + p.rand()
		delay = time.Duration(float64(base<<uint(attempt)) * factor)
	case StrategyFibonacci:
		delay = base * time.Duration(fib(attempt+1))
	default:
		delay = base
	}

	if delay > p.cfg.MaxDelay || delay < 0 {
		delay = p.cfg.MaxDelay
	}
	return delay
}

// fib 返回第 n 个斐波那契数，fib(1) = fib(2) = 1
func fib(n int) int64 {
	if n <= 2 {
		return 1
	}
	var a, b int64 = 1, 1
	for i := 3; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}

// deny 构造拒绝决策并记录指标（内部函数）
func (p *retryPolicy) deny(service string, attempt int, reason string) Decision {
	p.count(MetricEvaluationsTotal, service, "")
	p.count(MetricDeniedTotal, service, reason)

	p.logger.Debug("retry denied",
		clog.String("service", service),
		clog.Int("attempt", attempt),
		clog.String("reason", reason))

	return Decision{
		Retry:       false,
		NextAttempt: attempt,
		Reason:      reason,
	}
}

// count 记录计数指标（内部函数）
func (p *retryPolicy) count(metricName, service, reason string) {
	if p.meter == nil {
		return
	}
	counter, err := p.meter.Counter(metricName, "Retry decisions")
	if err != nil || counter == nil {
		return
	}
	labels := []metrics.Label{metrics.L(metrics.LabelService, service)}
	if reason != "" {
		labels = append(labels, metrics.L(metrics.LabelReason, reason))
	}
	counter.Inc(context.Background(), labels...)
}
