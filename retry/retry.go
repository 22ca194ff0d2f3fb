// Package retry 提供了重试策略组件，按服务粒度决策失败调用是否以及何时重试。
//
// retry 是 meshkit 治理层组件之一，它提供了：
// - 五种退避策略：fixed、exponential、linear、jitter、fibonacci
// - 服务级策略覆盖（最大重试次数、退避策略）
// - 带时间窗口的重试预算，防止重试风暴放大故障
// - 幂等键跟踪，避免重试时重复执行非幂等副作用
//
// ## 预算语义
//
// 每次 ShouldRetry 评估都会先消耗一个预算单位，再做次数判断：
// 即使该次评估最终因 attempt 达到上限被拒绝，预算仍然被消耗。
// 预算耗尽时无论 attempt 为何值都返回 ReasonBudgetExhausted。
// 窗口到期后预算自动重置。
//
// ## 基本使用
//
//	pol, _ := retry.New(&retry.Config{
//		MaxAttempts: 3,
//		BaseDelay:   time.Second,
//		MaxDelay:    30 * time.Second,
//		Strategy:    retry.StrategyExponential,
//	}, retry.WithLogger(logger))
//
//	decision := pol.ShouldRetry("pay", attempt, err)
//	if decision.Retry {
//		time.Sleep(decision.Delay)
//	}
package retry

import (
	"time"

	"github.com/ceyewan/meshkit/clog"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Policy 重试策略核心接口
type Policy interface {
	// ShouldRetry 评估指定服务第 attempt 次尝试失败后是否应当重试
	// 每次评估都会先消耗一个预算单位（若配置了预算），即使最终决策为不重试。
	ShouldRetry(service string, attempt int, callErr error) Decision

	// SetPolicy 设置服务级策略覆盖，未设置的服务使用进程默认值
	SetPolicy(service string, maxAttempts int, strategy string) error

	// SetBudget 设置服务的重试预算，窗口到期后自动重置
	SetBudget(service string, max int, window time.Duration)

	// ResetBudget 立即重置服务的重试预算
	ResetBudget(service string)

	// MarkIdempotent 标记幂等键，仅首次标记返回 true（集合插入语义）
	MarkIdempotent(key string) bool
}

// Decision 重试决策结果
type Decision struct {
	// Retry 是否应当重试
	Retry bool `json:"retry"`

	// Delay 重试前应等待的时长
	Delay time.Duration `json:"delay"`

	// NextAttempt 下一次尝试的序号
	NextAttempt int `json:"next_attempt"`

	// Reason 拒绝重试的原因，允许重试时为空
	Reason string `json:"reason,omitempty"`
}

// 退避策略常量
const (
	// StrategyFixed 固定间隔：base
	StrategyFixed = "fixed"
	// StrategyExponential 指数退避：base * 2^attempt
	StrategyExponential = "exponential"
	// StrategyLinear 线性退避：base * (attempt+1)
	StrategyLinear = "linear"
	// StrategyJitter 带抖动的指数退避：exponential * uniform(0.5, 1.5)
	StrategyJitter = "jitter"
	// StrategyFibonacci 斐波那契退避：base * fib(attempt+1)
	StrategyFibonacci = "fibonacci"
)

// 拒绝原因常量
const (
	// ReasonBudgetExhausted 重试预算已耗尽
	ReasonBudgetExhausted = "budget_exhausted"
	// ReasonMaxAttempts 已达最大重试次数
	ReasonMaxAttempts = "max_attempts"
)

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 重试策略配置（进程级默认值）
type Config struct {
	// MaxAttempts 最大尝试次数（默认：3）
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts"`

	// BaseDelay 退避基准时长（默认：1s）
	BaseDelay time.Duration `mapstructure:"base_delay" json:"base_delay" yaml:"base_delay"`

	// MaxDelay 退避时长上限，所有策略计算结果都不超过该值（默认：30s）
	MaxDelay time.Duration `mapstructure:"max_delay" json:"max_delay" yaml:"max_delay"`

	// Strategy 默认退避策略（默认：exponential）
	Strategy string `mapstructure:"strategy" json:"strategy" yaml:"strategy"`
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建重试策略实例
// 这是标准的工厂函数，支持在不依赖其他容器的情况下独立实例化
func New(cfg *Config, opts ...Option) (Policy, error) {
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

	return newPolicy(cfg, logger, opt.meter, opt.clock, opt.rand)
}
