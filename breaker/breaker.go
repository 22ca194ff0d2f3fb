// Package breaker 提供了熔断器组件，按服务粒度进行故障隔离与自动恢复。
//
// breaker 是 meshkit 治理层的核心组件，它提供了：
// - 服务级粒度的熔断状态机（closed / open / half_open）
// - 基于连续失败阈值的熔断触发与基于恢复超时的半开探测
// - 半开状态下受限并发的探测槽位（half_open_max）
// - 运维手动干预：ForceOpen / ForceClose / Reset
// - 显式错误返回的降级策略（降级函数的错误不会被吞掉，而是记录并视为无降级）
//
// ## 状态机
//
// 状态转换只沿以下边发生：
//
//	closed    → open       连续失败数达到 FailureThreshold
//	open      → half_open  距最近一次失败超过 RecoveryTimeout 后的首次 CanExecute
//	half_open → closed     任一探测成功
//	half_open → open       任一探测失败
//
// ## 基本使用
//
//	brk, _ := breaker.New(&breaker.Config{
//		FailureThreshold: 5,
//		RecoveryTimeout:  30 * time.Second,
//		HalfOpenMax:      1,
//	}, breaker.WithLogger(logger))
//
//	if !brk.CanExecute("pay") {
//		if result, err := brk.Fallback(ctx, "pay"); err == nil {
//			return result
//		}
//		return errCircuitOpen
//	}
//	err := doCall()
//	if err != nil {
//		brk.RecordFailure("pay")
//	} else {
//		brk.RecordSuccess("pay")
//	}
package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/meshkit/clog"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Breaker 熔断器核心接口
type Breaker interface {
	// CanExecute 判断对指定服务的调用是否允许通过
	// closed 永远放行；open 在恢复超时后转入 half_open 并占用一个探测槽位；
	// half_open 允许至多 HalfOpenMax 个并发探测，超出的调用被拒绝。
	CanExecute(service string) bool

	// RecordSuccess 记录调用成功
	// half_open 状态下的成功会关闭熔断器并清零失败计数。
	RecordSuccess(service string)

	// RecordFailure 记录调用失败
	// closed 状态下失败数达到阈值时打开熔断器；half_open 状态下立即重新打开。
	RecordFailure(service string)

	// State 返回服务当前的熔断状态，未知服务视为 closed
	State(service string) State

	// ForceOpen 手动打开熔断器（运维干预）
	ForceOpen(service string)

	// ForceClose 手动关闭熔断器（运维干预）
	ForceClose(service string)

	// Reset 清空服务的熔断记录，恢复到初始 closed 状态
	Reset(service string)

	// RegisterFallback 注册服务的降级函数，在调用被拒绝时使用
	RegisterFallback(service string, fn FallbackFunc)

	// Fallback 执行服务的降级函数
	// 未注册降级或降级自身出错时返回 ErrNoFallback，降级错误会被记录。
	Fallback(ctx context.Context, service string) (any, error)

	// Stats 返回服务的调用统计
	Stats(service string) Stats
}

// FallbackFunc 降级函数类型
// 当熔断器拒绝调用时执行，返回可用的降级结果或错误。
// 返回错误时视为"无可用降级"，错误会被记录而不是静默吞掉。
type FallbackFunc func(ctx context.Context, service string) (any, error)

// State 熔断器状态
type State int

const (
	// StateClosed 闭合状态（正常放行）
	StateClosed State = iota
	// StateHalfOpen 半开状态（受限探测恢复）
	StateHalfOpen
	// StateOpen 打开状态（熔断中）
	StateOpen
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Stats 服务级调用统计
type Stats struct {
	TotalCalls int64 `json:"total_calls"` // CanExecute 调用总数
	Successes  int64 `json:"successes"`   // 成功数
	Failures   int64 `json:"failures"`    // 失败数
	Rejected   int64 `json:"rejected"`    // 被熔断拒绝数
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 熔断器配置
type Config struct {
	// FailureThreshold 触发熔断的失败次数阈值（默认：5）
	FailureThreshold int `mapstructure:"failure_threshold" json:"failure_threshold" yaml:"failure_threshold"`

	// RecoveryTimeout 打开状态持续时间（默认：60s）
	// 距最近一次失败超过该时长后，下一次 CanExecute 进入半开探测。
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout" json:"recovery_timeout" yaml:"recovery_timeout"`

	// HalfOpenMax 半开状态下允许的最大并发探测数（默认：1）
	HalfOpenMax int `mapstructure:"half_open_max" json:"half_open_max" yaml:"half_open_max"`
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建熔断器实例
// 这是标准的工厂函数，支持在不依赖其他容器的情况下独立实例化
func New(cfg *Config, opts ...Option) (Breaker, error) {
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

	return newBreaker(cfg, logger, opt.meter, opt.clock)
}
