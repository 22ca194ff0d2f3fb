package policy

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/metrics"
)

// MetricRateChecks 限流检查总数，带 result 标签 (Counter)
const MetricRateChecks = "policy_rate_checks_total"

// standaloneStore 单机策略存储实现（非导出）
type standaloneStore struct {
	cfg    *Config
	logger clog.Logger
	meter  metrics.Meter

	limiters sync.Map // map[string]*rate.Limiter
}

// newStandalone 创建单机策略存储（内部函数）
func newStandalone(cfg *Config, logger clog.Logger, meter metrics.Meter) (Store, error) {
	if cfg.DefaultRate > 0 && cfg.DefaultBurst <= 0 {
		cfg.DefaultBurst = int(cfg.DefaultRate)
	}

	logger.Info("standalone policy store created",
		clog.Float64("default_rate", cfg.DefaultRate),
		clog.Int("default_burst", cfg.DefaultBurst))

	return &standaloneStore{
		cfg:    cfg,
		logger: logger,
		meter:  meter,
	}, nil
}

// CheckRateLimit 检查服务当前是否被限流
func (s *standaloneStore) CheckRateLimit(ctx context.Context, service string) (RateDecision, error) {
	limiter := s.getLimiter(service)
	if limiter == nil {
		// 未配置规则，默认放行
		return RateDecision{Allowed: true}, nil
	}

	allowed := limiter.Allow()

	s.count(service, allowed)
	s.logger.Debug("rate limit check",
		clog.String("service", service),
		clog.Bool("allowed", allowed))

	return RateDecision{Allowed: allowed, Limited: !allowed}, nil
}

// SetLimit 设置服务的限流规则
func (s *standaloneStore) SetLimit(service string, r float64, burst int) error {
	if r <= 0 || burst <= 0 {
		return ErrInvalidLimit
	}

	s.limiters.Store(service, rate.NewLimiter(rate.Limit(r), burst))

	s.logger.Info("rate limit configured",
		clog.String("service", service),
		clog.Float64("rate", r),
		clog.Int("burst", burst))
	return nil
}

// RemoveLimit 移除服务的限流规则
func (s *standaloneStore) RemoveLimit(service string) {
	s.limiters.Delete(service)
	s.logger.Info("rate limit removed", clog.String("service", service))
}

// getLimiter 获取服务的限流器，未配置且无进程默认值时返回 nil（内部函数）
func (s *standaloneStore) getLimiter(service string) *rate.Limiter {
	if v, ok := s.limiters.Load(service); ok {
		return v.(*rate.Limiter)
	}
	if s.cfg.DefaultRate <= 0 {
		return nil
	}

	limiter := rate.NewLimiter(rate.Limit(s.cfg.DefaultRate), s.cfg.DefaultBurst)
	actual, _ := s.limiters.LoadOrStore(service, limiter)
	return actual.(*rate.Limiter)
}

// count 记录限流检查指标（内部函数）
func (s *standaloneStore) count(service string, allowed bool) {
	if s.meter == nil {
		return
	}
	counter, err := s.meter.Counter(MetricRateChecks, "Rate limit checks")
	if err != nil || counter == nil {
		return
	}

	result := metrics.ResultSuccess
	if !allowed {
		result = "limited"
	}
	counter.Inc(context.Background(),
		metrics.L(metrics.LabelService, service),
		metrics.L(metrics.LabelResult, result))
}
