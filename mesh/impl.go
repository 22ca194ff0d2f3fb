package mesh

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/meshkit/breaker"
	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/metrics"
)

// inflight 一次已路由请求的回写上下文
type inflight struct {
	service    string
	instanceID string
}

// orchestrator 网格编排器实现（非导出）
type orchestrator struct {
	cfg         *Config
	c           *Components
	logger      clog.Logger
	meter       metrics.Meter
	interceptor Interceptor

	inflight sync.Map // map[string]inflight

	logMu   sync.Mutex
	log     []*RouteResult
	logNext int
	logFull bool
}

// newOrchestrator 创建编排器实例（内部函数）
func newOrchestrator(cfg *Config, c *Components, logger clog.Logger, meter metrics.Meter, interceptor Interceptor) (Orchestrator, error) {
	// 设置默认值
	if cfg.LogSize <= 0 {
		cfg.LogSize = 1000
	}

	logger.Info("mesh orchestrator created",
		clog.Int("log_size", cfg.LogSize),
		clog.Bool("mtls_enabled", cfg.MTLSEnabled))

	return &orchestrator{
		cfg:         cfg,
		c:           c,
		logger:      logger,
		meter:       meter,
		interceptor: interceptor,
		log:         make([]*RouteResult, cfg.LogSize),
	}, nil
}

// RouteRequest 为一次出站调用执行完整的决策管线
func (o *orchestrator) RouteRequest(ctx context.Context, service string, req *Request, sessionID string) *RouteResult {
	if req == nil {
		req = &Request{}
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	// 1. 熔断检查
	if !o.c.Breaker.CanExecute(service) {
		result := &RouteResult{
			Status:    StatusCircuitOpen,
			RequestID: req.RequestID,
			Timestamp: time.Now(),
		}
		if fallback, err := o.c.Breaker.Fallback(ctx, service); err == nil {
			result.FallbackResult = fallback
		}
		return o.finish(service, result)
	}

	// 2. 外部策略限流检查
	if o.c.Policy != nil {
		decision, err := o.c.Policy.CheckRateLimit(ctx, service)
		if err != nil {
			// 策略存储不可用时放行，避免外部故障放大
			o.logger.Warn("rate limit check failed",
				clog.String("service", service),
				clog.Error(err))
		} else if decision.Limited {
			return o.finish(service, &RouteResult{
				Status:    StatusRateLimited,
				RequestID: req.RequestID,
				Timestamp: time.Now(),
			})
		}
	}

	// 3. 流量规则
	routing := o.c.Traffic.RouteRequest(service, req.RequestID, req.Headers)

	// 4. 服务发现 + 负载均衡
	candidates := o.c.Registry.Instances(service, true)
	instance := o.c.Balancer.Select(service, candidates, sessionID)
	if instance == nil {
		return o.finish(service, &RouteResult{
			Status:    StatusNoInstances,
			RequestID: req.RequestID,
			Timestamp: time.Now(),
		})
	}
	o.c.Balancer.AddConnection(service, instance.ID)

	// 5. 边车拦截，错误仅记录，管线继续
	if err := o.interceptor.Intercept(ctx, service, routing.Version, req); err != nil {
		o.logger.Warn("interceptor failed",
			clog.String("service", service),
			clog.String("request_id", req.RequestID),
			clog.Error(err))
	}

	// 6. 超时登记
	entry := o.c.Timeout.StartRequest(req.RequestID, service)

	o.inflight.Store(req.RequestID, inflight{service: service, instanceID: instance.ID})

	result := &RouteResult{
		Status:      StatusRouted,
		RequestID:   req.RequestID,
		Instance:    instance,
		Version:     routing.Version,
		RoutingType: routing.RoutingType,
		Deadline:    entry.Deadline,
		Timestamp:   time.Now(),
	}

	o.logger.Info("request routed",
		clog.String("service", service),
		clog.String("request_id", req.RequestID),
		clog.String("instance", instance.ID),
		clog.String("version", routing.Version),
		clog.String("routing_type", routing.RoutingType))

	return o.finish(service, result)
}

// RecordResult 回写下游调用结果
func (o *orchestrator) RecordResult(ctx context.Context, service, requestID string, success bool) breaker.State {
	o.c.Timeout.EndRequest(requestID)

	if v, ok := o.inflight.LoadAndDelete(requestID); ok {
		fl := v.(inflight)
		o.c.Balancer.RemoveConnection(fl.service, fl.instanceID)
	}

	if success {
		o.c.Breaker.RecordSuccess(service)
	} else {
		o.c.Breaker.RecordFailure(service)
	}
	state := o.c.Breaker.State(service)

	o.countResult(service, success)
	o.logger.Debug("result recorded",
		clog.String("service", service),
		clog.String("request_id", requestID),
		clog.Bool("success", success),
		clog.String("circuit_state", state.String()))

	return state
}

// ShouldMirror 判断请求是否应镜像到暗发布版本
func (o *orchestrator) ShouldMirror(service, requestID string) bool {
	return o.c.Traffic.ShouldMirror(service, requestID)
}

// RequestLog 返回最近 n 条路由结果
func (o *orchestrator) RequestLog(n int) []*RouteResult {
	o.logMu.Lock()
	defer o.logMu.Unlock()

	size := o.logNext
	if o.logFull {
		size = len(o.log)
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}

	out := make([]*RouteResult, 0, n)
	for i := 1; i <= n; i++ {
		idx := (o.logNext - i + len(o.log)) % len(o.log)
		out = append(out, o.log[idx])
	}
	return out
}

// finish 追加请求日志并记录指标（内部函数）
func (o *orchestrator) finish(service string, result *RouteResult) *RouteResult {
	o.logMu.Lock()
	o.log[o.logNext] = result
	o.logNext = (o.logNext + 1) % len(o.log)
	if o.logNext == 0 {
		o.logFull = true
	}
	o.logMu.Unlock()

	if o.meter != nil {
		if counter, err := o.meter.Counter(MetricRequestsTotal, "Routing requests"); err == nil && counter != nil {
			counter.Inc(context.Background(),
				metrics.L(metrics.LabelService, service),
				metrics.L(LabelStatus, result.Status))
		}
	}
	return result
}

// countResult 记录结果回写指标（内部函数）
func (o *orchestrator) countResult(service string, success bool) {
	if o.meter == nil {
		return
	}
	counter, err := o.meter.Counter(MetricResultsTotal, "Call results")
	if err != nil || counter == nil {
		return
	}

	result := metrics.ResultSuccess
	if !success {
		result = metrics.ResultError
	}
	counter.Inc(context.Background(),
		metrics.L(metrics.LabelService, service),
		metrics.L(metrics.LabelResult, result))
}
