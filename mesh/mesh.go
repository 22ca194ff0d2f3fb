// Package mesh 提供了服务网格编排器，将治理组件串联为单次出站调用的决策管线。
//
// mesh 是 meshkit 的顶层组件，RouteRequest 按以下顺序决策：
//
//  1. 熔断检查（breaker.CanExecute）——熔断中返回 circuit_open，附带降级结果
//  2. 外部策略限流检查（policy.CheckRateLimit）——被限流返回 rate_limited
//  3. 流量规则（traffic.RouteRequest）——得到目标版本与路由类型
//  4. 服务发现 + 负载均衡（registry.Instances + balancer.Select）——无可用实例返回 no_instances
//  5. 边车拦截（header 注入、mTLS 标记）——拦截器错误仅记录日志，管线继续
//  6. 超时登记（timeout.StartRequest）
//  7. 返回 routed 决策并追加到请求日志
//
// RecordResult 是下游调用结果回流熔断器的唯一入口：它结束超时登记、
// 释放连接计数，再将成功/失败喂给熔断器并返回熔断状态。
//
// ## 基本使用
//
//	orch, _ := mesh.New(&mesh.Config{}, &mesh.Components{
//		Registry: reg, Balancer: lb, Breaker: brk,
//		Timeout: tm, Traffic: tf, Policy: store,
//	}, mesh.WithLogger(logger))
//
//	result := orch.RouteRequest(ctx, "pay", &mesh.Request{Path: "/charge"}, sessionID)
//	if result.Status != mesh.StatusRouted {
//		return errUnavailable
//	}
//	err := call(result.Instance)
//	orch.RecordResult(ctx, "pay", result.RequestID, err == nil)
package mesh

import (
	"context"
	"time"

	"github.com/ceyewan/meshkit/balancer"
	"github.com/ceyewan/meshkit/breaker"
	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/policy"
	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/timeout"
	"github.com/ceyewan/meshkit/traffic"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Orchestrator 网格编排核心接口
type Orchestrator interface {
	// RouteRequest 为一次出站调用执行完整的决策管线
	// req.RequestID 为空时自动生成 UUID；sessionID 非空时启用粘性会话。
	RouteRequest(ctx context.Context, service string, req *Request, sessionID string) *RouteResult

	// RecordResult 回写下游调用结果
	// 结束超时登记、释放连接计数，并将结果喂给熔断器，返回熔断状态。
	RecordResult(ctx context.Context, service, requestID string, success bool) breaker.State

	// ShouldMirror 判断请求是否应镜像到暗发布版本（traffic 透传）
	ShouldMirror(service, requestID string) bool

	// RequestLog 返回最近 n 条路由结果，最新的在前
	RequestLog(n int) []*RouteResult
}

// Request 一次出站调用的请求描述
type Request struct {
	// RequestID 请求唯一标识，为空时由编排器生成
	RequestID string `json:"request_id"`

	// Path 请求路径
	Path string `json:"path"`

	// Headers 请求头，拦截器可向其中注入条目
	Headers map[string]string `json:"headers"`
}

// RouteResult 路由决策结果
type RouteResult struct {
	// Status 决策状态：routed / circuit_open / rate_limited / no_instances
	Status string `json:"status"`

	// RequestID 请求唯一标识（可能由编排器生成）
	RequestID string `json:"request_id"`

	// Instance 选中的目标实例，仅 routed 时非空
	Instance *registry.Instance `json:"instance,omitempty"`

	// Version 目标版本，仅 routed 时有效
	Version string `json:"version,omitempty"`

	// RoutingType 流量规则类型，仅 routed 时有效
	RoutingType string `json:"routing_type,omitempty"`

	// Deadline 请求截止时间，仅 routed 时有效
	Deadline time.Time `json:"deadline,omitempty"`

	// FallbackResult 熔断降级结果，仅 circuit_open 且注册了降级时非空
	FallbackResult any `json:"fallback_result,omitempty"`

	// Timestamp 决策时刻
	Timestamp time.Time `json:"timestamp"`
}

// 决策状态常量
const (
	// StatusRouted 决策成功，已选中实例
	StatusRouted = "routed"
	// StatusCircuitOpen 目标服务熔断中
	StatusCircuitOpen = "circuit_open"
	// StatusRateLimited 请求被策略限流
	StatusRateLimited = "rate_limited"
	// StatusNoInstances 无可用实例
	StatusNoInstances = "no_instances"
)

// Components 编排器依赖的治理组件
type Components struct {
	Registry registry.Registry
	Balancer balancer.Balancer
	Breaker  breaker.Breaker
	Timeout  timeout.Manager
	Traffic  traffic.Manager

	// Policy 外部策略存储，nil 时跳过限流检查
	Policy policy.Store
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 编排器配置
type Config struct {
	// LogSize 请求日志保留条数上限（默认：1000）
	LogSize int `mapstructure:"log_size" json:"log_size" yaml:"log_size"`

	// MTLSEnabled 边车拦截器是否标记 mTLS（默认：false）
	MTLSEnabled bool `mapstructure:"mtls_enabled" json:"mtls_enabled" yaml:"mtls_enabled"`
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建网格编排器实例
// 这是标准的工厂函数，Components 中除 Policy 外均为必填
func New(cfg *Config, components *Components, opts ...Option) (Orchestrator, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if components == nil ||
		components.Registry == nil ||
		components.Balancer == nil ||
		components.Breaker == nil ||
		components.Timeout == nil ||
		components.Traffic == nil {
		return nil, ErrComponentsMissing
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

	interceptor := opt.interceptor
	if interceptor == nil {
		interceptor = NewSidecarInterceptor(cfg.MTLSEnabled)
	}

	return newOrchestrator(cfg, components, logger, opt.meter, interceptor)
}
