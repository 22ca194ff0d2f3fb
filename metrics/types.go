// Package metrics 为 meshkit 提供统一的指标收集能力。
// 基于 OpenTelemetry 标准构建，提供简洁的 Counter、Gauge、Histogram 指标接口。
//
// 架构说明：
//   - 属于 meshkit 基础层，与 clog、xerrors 同级
//   - 完全扁平化设计，无 types/ 子包
//   - 基于 OpenTelemetry 标准，内置 Prometheus HTTP 服务器暴露指标
//
// 快速开始：
//
//	cfg := &metrics.Config{
//	    Enabled:     true,
//	    ServiceName: "mesh-control-plane",
//	    Version:     "v1.0.0",
//	    Port:        9090,
//	    Path:        "/metrics",
//	}
//
//	meter, err := metrics.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer meter.Shutdown(ctx)
//
//	counter, _ := meter.Counter("mesh_requests_total", "路由请求总数")
//	counter.Inc(ctx, metrics.L("service", "pay"), metrics.L("status", "routed"))
package metrics

import "context"

// Counter 计数器接口
// 用于记录只能增加的累计值，例如路由请求数、熔断拒绝数、重试次数等
type Counter interface {
	// Inc 将计数器增加 1
	Inc(ctx context.Context, labels ...Label)

	// Add 将计数器增加给定的值
	// 注意：如果传入负数，大部分监控系统会忽略或报错
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 仪表盘接口
// 用于记录可以任意增减的瞬时值，例如在途请求数、活跃实例数等
type Gauge interface {
	// Set 设置仪表盘的当前值
	Set(ctx context.Context, val float64, labels ...Label)

	// Inc 将仪表盘的值增加 1
	Inc(ctx context.Context, labels ...Label)

	// Dec 将仪表盘的值减少 1
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 直方图接口
// 用于记录值的分布情况，例如请求耗时、重试延迟等
type Histogram interface {
	// Record 记录一个观测值
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标系统的核心接口
// 负责创建各类指标并管理底层 Provider 的生命周期
type Meter interface {
	// Counter 创建计数器
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)

	// Gauge 创建仪表盘
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)

	// Histogram 创建直方图
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Shutdown 关闭 Meter，刷新所有指标
	Shutdown(ctx context.Context) error
}

// MetricOption 单个指标的选项函数类型
type MetricOption func(*MetricOptions)

// MetricOptions 单个指标的选项集合
type MetricOptions struct {
	// Unit 指标单位，如 "seconds"、"bytes"
	Unit string
}

// WithUnit 设置指标单位
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}
