// Package policy 提供了外部策略存储的访问边界，当前承载服务级限流决策。
//
// policy 是 meshkit 与外部策略系统之间的隔离层：编排器只依赖 Store 接口，
// 不关心策略来自本地内存还是远端控制面。包内提供基于令牌桶的单机实现，
// 未配置限流规则的服务默认放行。
//
// ## 基本使用
//
//	store, _ := policy.NewStandalone(&policy.Config{}, policy.WithLogger(logger))
//	store.SetLimit("pay", 100, 200)
//
//	decision, err := store.CheckRateLimit(ctx, "pay")
//	if err == nil && decision.Limited {
//		return errRateLimited
//	}
package policy

import (
	"context"

	"github.com/ceyewan/meshkit/clog"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Store 外部策略存储接口
type Store interface {
	// CheckRateLimit 检查服务当前是否被限流
	// 未配置限流规则的服务默认放行。
	CheckRateLimit(ctx context.Context, service string) (RateDecision, error)

	// SetLimit 设置服务的限流规则，rate 为每秒令牌数，burst 为桶容量
	SetLimit(service string, rate float64, burst int) error

	// RemoveLimit 移除服务的限流规则，之后该服务默认放行
	RemoveLimit(service string)
}

// RateDecision 限流决策结果
type RateDecision struct {
	// Allowed 请求是否放行
	Allowed bool `json:"allowed"`

	// Limited 请求是否因限流被拒绝
	Limited bool `json:"limited"`
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 单机策略存储配置
type Config struct {
	// DefaultRate 进程级默认限流速率（每秒令牌数），0 表示未配置的服务不限流
	DefaultRate float64 `mapstructure:"default_rate" json:"default_rate" yaml:"default_rate"`

	// DefaultBurst 进程级默认桶容量，DefaultRate > 0 时生效（默认：等于 DefaultRate）
	DefaultBurst int `mapstructure:"default_burst" json:"default_burst" yaml:"default_burst"`
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// NewStandalone 创建基于内存令牌桶的单机策略存储
// 这是标准的工厂函数，支持在不依赖其他容器的情况下独立实例化
func NewStandalone(cfg *Config, opts ...Option) (Store, error) {
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

	return newStandalone(cfg, logger, opt.meter)
}
