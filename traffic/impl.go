package traffic

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/metrics"
)

// mirrorSalt 镜像分桶的盐值，保证与路由分桶相互独立
const mirrorSalt = "|mirror"

// canaryRule 金丝雀规则
type canaryRule struct {
	version string
	pct     int
}

// abTestRule A/B 测试规则
type abTestRule struct {
	variantA string
	variantB string
	splitPct int
}

// splitRange 加权分流的累计区间，bucket 落在 [from, to) 时命中
type splitRange struct {
	version string
	from    int
	to      int
}

// darkRule 暗发布规则
type darkRule struct {
	version   string
	mirrorPct int
}

// serviceRules 单个服务的全部流量规则
type serviceRules struct {
	canary         *canaryRule
	abtest         *abTestRule
	split          []splitRange
	dark           *darkRule
	defaultVersion string
}

// ring 容量有界的决策历史环形缓冲
type ring struct {
	records []Record
	next    int
	full    bool
}

func (r *ring) append(rec Record) {
	r.records[r.next] = rec
	r.next = (r.next + 1) % len(r.records)
	if r.next == 0 {
		r.full = true
	}
}

// latest 返回最近 n 条记录，最新的在前
func (r *ring) latest(n int) []Record {
	size := r.next
	if r.full {
		size = len(r.records)
	}
	if n > size {
		n = size
	}

	out := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.records)) % len(r.records)
		out = append(out, r.records[idx])
	}
	return out
}

// trafficManager 流量管理器实现（非导出）
type trafficManager struct {
	cfg    *Config
	logger clog.Logger
	meter  metrics.Meter
	hasher Hasher

	mu      sync.Mutex
	rules   map[string]*serviceRules
	history map[string]*ring
}

// newManager 创建流量管理器实例（内部函数）
func newManager(cfg *Config, logger clog.Logger, meter metrics.Meter, hasher Hasher) (Manager, error) {
	// 设置默认值
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	if hasher == nil {
		hasher = xxhash.Sum64String
	}

	logger.Info("traffic manager created", clog.Int("history_size", cfg.HistorySize))

	return &trafficManager{
		cfg:     cfg,
		logger:  logger,
		meter:   meter,
		hasher:  hasher,
		rules:   make(map[string]*serviceRules),
		history: make(map[string]*ring),
	}, nil
}

// RouteRequest 为请求计算路由决策
func (m *trafficManager) RouteRequest(service, requestID string, headers map[string]string) Decision {
	bucket := int(m.hasher(requestID) % 100)

	m.mu.Lock()
	r := m.rules[service]

	var decision Decision
	switch {
	case r != nil && r.canary != nil && bucket < r.canary.pct:
		decision = Decision{Version: r.canary.version, RoutingType: RoutingCanary}

	case r != nil && r.abtest != nil:
		if bucket < r.abtest.splitPct {
			decision = Decision{Version: r.abtest.variantB, RoutingType: RoutingABTest}
		} else {
			decision = Decision{Version: r.abtest.variantA, RoutingType: RoutingABTest}
		}

	case r != nil && len(r.split) > 0:
		decision = Decision{Version: splitVersion(r.split, bucket), RoutingType: RoutingSplit}

	default:
		version := DefaultVersion
		if r != nil && r.defaultVersion != "" {
			version = r.defaultVersion
		}
		decision = Decision{Version: version, RoutingType: RoutingDefault}
	}

	m.recordLocked(service, Record{
		RequestID:   requestID,
		Version:     decision.Version,
		RoutingType: decision.RoutingType,
		Timestamp:   time.Now(),
	})
	m.mu.Unlock()

	m.countDecision(service, decision.RoutingType)

	m.logger.Debug("request routed",
		clog.String("service", service),
		clog.String("request_id", requestID),
		clog.Int("bucket", bucket),
		clog.String("version", decision.Version),
		clog.String("routing_type", decision.RoutingType))

	return decision
}

// splitVersion 在累计区间中定位 bucket 对应的版本
func splitVersion(ranges []splitRange, bucket int) string {
	for _, sr := range ranges {
		if bucket >= sr.from && bucket < sr.to {
			return sr.version
		}
	}
	// 区间覆盖 [0, 100)，不应到达此处
	return ranges[len(ranges)-1].version
}

// ShouldMirror 判断请求是否应镜像到暗发布版本
func (m *trafficManager) ShouldMirror(service, requestID string) bool {
	m.mu.Lock()
	r := m.rules[service]
	var pct int
	if r != nil && r.dark != nil {
		pct = r.dark.mirrorPct
	}
	m.mu.Unlock()

	if pct <= 0 {
		return false
	}

	bucket := int(m.hasher(requestID+mirrorSalt) % 100)
	if bucket >= pct {
		return false
	}

	m.count(MetricMirrorsTotal, service)
	return true
}

// MirrorVersion 返回服务当前暗发布的目标版本
func (m *trafficManager) MirrorVersion(service string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r := m.rules[service]; r != nil && r.dark != nil {
		return r.dark.version, true
	}
	return "", false
}

// SetupCanary 配置金丝雀发布
func (m *trafficManager) SetupCanary(service, version string, pct int) error {
	if pct < 0 || pct > 100 {
		return ErrInvalidPercentage
	}

	m.mu.Lock()
	m.rulesLocked(service).canary = &canaryRule{version: version, pct: pct}
	m.mu.Unlock()

	m.logger.Info("canary configured",
		clog.String("service", service),
		clog.String("version", version),
		clog.Int("pct", pct))
	return nil
}

// PromoteCanary 将金丝雀流量提升到 100%
func (m *trafficManager) PromoteCanary(service string) error {
	m.mu.Lock()
	r := m.rules[service]
	if r == nil || r.canary == nil {
		m.mu.Unlock()
		return ErrRuleNotFound
	}
	r.canary.pct = 100
	version := r.canary.version
	m.mu.Unlock()

	m.logger.Info("canary promoted",
		clog.String("service", service),
		clog.String("version", version))
	return nil
}

// RollbackCanary 移除金丝雀规则
func (m *trafficManager) RollbackCanary(service string) {
	m.mu.Lock()
	if r := m.rules[service]; r != nil {
		r.canary = nil
	}
	m.mu.Unlock()

	m.logger.Info("canary rolled back", clog.String("service", service))
}

// SetupABTest 配置 A/B 测试
func (m *trafficManager) SetupABTest(service, variantA, variantB string, splitPct int) error {
	if splitPct < 0 || splitPct > 100 {
		return ErrInvalidPercentage
	}

	m.mu.Lock()
	m.rulesLocked(service).abtest = &abTestRule{variantA: variantA, variantB: variantB, splitPct: splitPct}
	m.mu.Unlock()

	m.logger.Info("ab test configured",
		clog.String("service", service),
		clog.String("variant_a", variantA),
		clog.String("variant_b", variantB),
		clog.Int("split_pct", splitPct))
	return nil
}

// EndABTest 移除 A/B 测试规则
func (m *trafficManager) EndABTest(service string) {
	m.mu.Lock()
	if r := m.rules[service]; r != nil {
		r.abtest = nil
	}
	m.mu.Unlock()

	m.logger.Info("ab test ended", clog.String("service", service))
}

// SetupWeightedSplit 配置加权分流
// 权重归一化到总和 100，保持插入顺序；取整产生的余数归入最后一个版本。
func (m *trafficManager) SetupWeightedSplit(service string, weights []Weight) error {
	total := 0
	for _, w := range weights {
		if w.Weight < 0 {
			return ErrInvalidWeights
		}
		total += w.Weight
	}
	if len(weights) == 0 || total <= 0 {
		return ErrInvalidWeights
	}

	ranges := make([]splitRange, 0, len(weights))
	cursor := 0
	for i, w := range weights {
		norm := w.Weight * 100 / total
		if i == len(weights)-1 {
			norm = 100 - cursor
		}
		ranges = append(ranges, splitRange{version: w.Version, from: cursor, to: cursor + norm})
		cursor += norm
	}

	m.mu.Lock()
	m.rulesLocked(service).split = ranges
	m.mu.Unlock()

	m.logger.Info("weighted split configured",
		clog.String("service", service),
		clog.Int("versions", len(weights)))
	return nil
}

// ClearWeightedSplit 移除加权分流规则
func (m *trafficManager) ClearWeightedSplit(service string) {
	m.mu.Lock()
	if r := m.rules[service]; r != nil {
		r.split = nil
	}
	m.mu.Unlock()
}

// SetupDarkLaunch 配置暗发布
func (m *trafficManager) SetupDarkLaunch(service, version string, mirrorPct int) error {
	if mirrorPct < 0 || mirrorPct > 100 {
		return ErrInvalidPercentage
	}

	m.mu.Lock()
	m.rulesLocked(service).dark = &darkRule{version: version, mirrorPct: mirrorPct}
	m.mu.Unlock()

	m.logger.Info("dark launch configured",
		clog.String("service", service),
		clog.String("version", version),
		clog.Int("mirror_pct", mirrorPct))
	return nil
}

// EndDarkLaunch 移除暗发布规则
func (m *trafficManager) EndDarkLaunch(service string) {
	m.mu.Lock()
	if r := m.rules[service]; r != nil {
		r.dark = nil
	}
	m.mu.Unlock()

	m.logger.Info("dark launch ended", clog.String("service", service))
}

// SetDefaultVersion 设置服务的默认版本
func (m *trafficManager) SetDefaultVersion(service, version string) {
	m.mu.Lock()
	m.rulesLocked(service).defaultVersion = version
	m.mu.Unlock()
}

// History 返回服务最近 n 条路由决策
func (m *trafficManager) History(service string, n int) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.history[service]
	if !ok || n <= 0 {
		return nil
	}
	return h.latest(n)
}

// rulesLocked 获取或创建服务的规则集，调用方需持有锁（内部函数）
func (m *trafficManager) rulesLocked(service string) *serviceRules {
	r, ok := m.rules[service]
	if !ok {
		r = &serviceRules{}
		m.rules[service] = r
	}
	return r
}

// recordLocked 追加决策历史，调用方需持有锁（内部函数）
func (m *trafficManager) recordLocked(service string, rec Record) {
	h, ok := m.history[service]
	if !ok {
		h = &ring{records: make([]Record, m.cfg.HistorySize)}
		m.history[service] = h
	}
	h.append(rec)
}

// countDecision 记录路由决策指标（内部函数）
func (m *trafficManager) countDecision(service, routingType string) {
	if m.meter == nil {
		return
	}
	if counter, err := m.meter.Counter(MetricDecisionsTotal, "Routing decisions"); err == nil && counter != nil {
		counter.Inc(context.Background(),
			metrics.L(metrics.LabelService, service),
			metrics.L(metrics.LabelRoutingType, routingType))
	}
}

// count 记录计数指标（内部函数）
func (m *trafficManager) count(metricName, service string) {
	if m.meter == nil {
		return
	}
	if counter, err := m.meter.Counter(metricName, "Traffic manager events"); err == nil && counter != nil {
		counter.Inc(context.Background(), metrics.L(metrics.LabelService, service))
	}
}
