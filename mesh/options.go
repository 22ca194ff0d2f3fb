package mesh

import (
	"github.com/ceyewan/meshkit/clog"
	"github.com/ceyewan/meshkit/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger      clog.Logger
	meter       metrics.Meter
	interceptor Interceptor
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "mesh"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("mesh")
		}
	}
}

// WithMeter 设置指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithInterceptor 替换默认的边车拦截器
func WithInterceptor(i Interceptor) Option {
	return func(o *options) {
		o.interceptor = i
	}
}
