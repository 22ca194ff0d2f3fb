// Package traffic 提供了流量管理组件，决定请求应路由到服务的哪个版本。
//
// traffic 是 meshkit 治理层组件之一，它提供了：
// - 金丝雀发布：按百分比将请求分流到新版本，支持一键全量与回滚
// - A/B 测试：在两个变体之间按比例分流
// - 加权分流：多版本按权重分配流量，权重归一化到 100 且保持插入顺序
// - 暗发布：按比例镜像（复制而非转移）流量到影子版本
// - 路由决策历史，容量有界
//
// ## 确定性
//
// 所有分桶都基于 requestID 的 xxhash 映射到 [0, 100) 区间：
// 同一 requestID 在规则不变时永远得到同一决策，保证可复现测试与请求亲和。
// 镜像决策使用独立加盐的分桶计算，与路由决策互不干扰。
//
// ## 规则优先级
//
// RouteRequest 按 金丝雀 → A/B 测试 → 加权分流 → 默认 的严格顺序评估，
// 命中即返回。
//
// ## 基本使用
//
//	mgr, _ := traffic.New(&traffic.Config{}, traffic.WithLogger(logger))
//
//	mgr.SetupCanary("search", "v2", 20)
//	decision := mgr.RouteRequest("search", requestID, headers)
//	// decision.Version 为 "v2"（20% 的请求）或默认版本
package traffic

import (
	"time"

	"github.com/ceyewan/meshkit/clog"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Manager 流量管理核心接口
type Manager interface {
	// RouteRequest 为请求计算路由决策
	// 按金丝雀 → A/B 测试 → 加权分流 → 默认的优先级评估，
	// 同一 requestID 在规则不变时决策确定。
	RouteRequest(service, requestID string, headers map[string]string) Decision

	// ShouldMirror 判断请求是否应镜像到暗发布版本
	// 使用独立加盐的分桶计算，与路由决策无关。
	ShouldMirror(service, requestID string) bool

	// MirrorVersion 返回服务当前暗发布的目标版本，未配置时返回 ("", false)
	MirrorVersion(service string) (string, bool)

	// SetupCanary 配置金丝雀发布，pct 为新版本流量百分比 [0, 100]
	SetupCanary(service, version string, pct int) error

	// PromoteCanary 将金丝雀流量提升到 100%
	PromoteCanary(service string) error

	// RollbackCanary 移除金丝雀规则
	RollbackCanary(service string)

	// SetupABTest 配置 A/B 测试，splitPct 为变体 B 的流量百分比 [0, 100]
	SetupABTest(service, variantA, variantB string, splitPct int) error

	// EndABTest 移除 A/B 测试规则
	EndABTest(service string)

	// SetupWeightedSplit 配置加权分流
	// 权重归一化到总和 100，保持传入的插入顺序。
	SetupWeightedSplit(service string, weights []Weight) error

	// ClearWeightedSplit 移除加权分流规则
	ClearWeightedSplit(service string)

	// SetupDarkLaunch 配置暗发布，mirrorPct 为镜像流量百分比 [0, 100]
	SetupDarkLaunch(service, version string, mirrorPct int) error

	// EndDarkLaunch 移除暗发布规则
	EndDarkLaunch(service string)

	// SetDefaultVersion 设置服务的默认版本（未命中任何规则时返回）
	SetDefaultVersion(service, version string)

	// History 返回服务最近 n 条路由决策，最新的在前
	History(service string, n int) []Record
}

// Decision 路由决策结果
type Decision struct {
	// Version 应路由到的服务版本
	Version string `json:"version"`

	// RoutingType 命中的规则类型：canary / ab_test / split / default
	RoutingType string `json:"routing_type"`
}

// Weight 加权分流中单个版本的权重
type Weight struct {
	// Version 版本名
	Version string `json:"version"`

	// Weight 权重值，归一化前无需总和为 100
	Weight int `json:"weight"`
}

// Record 路由决策历史记录
type Record struct {
	RequestID   string    `json:"request_id"`
	Version     string    `json:"version"`
	RoutingType string    `json:"routing_type"`
	Timestamp   time.Time `json:"timestamp"`
}

// 路由类型常量
const (
	// RoutingCanary 金丝雀命中
	RoutingCanary = "canary"
	// RoutingABTest A/B 测试命中
	RoutingABTest = "ab_test"
	// RoutingSplit 加权分流命中
	RoutingSplit = "split"
	// RoutingDefault 未命中任何规则
	RoutingDefault = "default"
)

// DefaultVersion 服务未配置默认版本时使用的版本名
const DefaultVersion = "stable"

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 流量管理配置
type Config struct {
	// HistorySize 每个服务保留的决策历史条数上限（默认：1000）
	HistorySize int `mapstructure:"history_size" json:"history_size" yaml:"history_size"`
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建流量管理器实例
// 这是标准的工厂函数，支持在不依赖其他容器的情况下独立实例化
func New(cfg *Config, opts ...Option) (Manager, error) {
	if cfg == nil {
		return nil, ErrConfigNil
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

	return newManager(cfg, logger, opt.meter, opt.hasher)
}
