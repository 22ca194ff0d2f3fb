package retry

import (
	"time"

	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// Clock 时钟函数类型，用于测试注入固定时间
type Clock func() time.Time

// Rand 随机数函数类型，返回 [0.0, 1.0) 区间的值，用于抖动策略测试注入
type Rand func() float64

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger clog.Logger
	meter  metrics.Meter
	clock  Clock
	rand   Rand
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "retry"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("retry")
		}
	}
}

// WithMeter 设置指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithClock 注入时钟函数，用于预算窗口测试
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithRand 注入随机数函数，用于抖动策略的确定性测试
func WithRand(r Rand) Option {
	return func(o *options) {
		o.rand = r
	}
}
