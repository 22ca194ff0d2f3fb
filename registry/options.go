package registry

import (
	"time"

	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// Clock 时钟函数类型，用于测试注入固定时间
type Clock func() time.Time

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger clog.Logger
	meter  metrics.Meter
	clock  Clock
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "registry"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("registry")
		}
	}
}

// WithMeter 设置指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithClock 注入时钟函数，用于 TTL 过期测试
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}
