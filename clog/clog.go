// Package clog 为 meshkit 提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象接口，不暴露底层实现（slog）
//   - 支持层级命名空间，便于区分 registry/breaker/balancer 等组件日志
//   - 零外部依赖（仅依赖 Go 标准库）
//   - 采用函数式选项模式，符合 meshkit 标准
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{
//	    Level:  "info",
//	    Format: "console",
//	    Output: "stdout",
//	})
//	logger.Info("instance registered", clog.String("service", "pay"))
//
// 组件注入：
//
//	reg, _ := registry.New(cfg, registry.WithLogger(logger))
//	// 组件内部会派生命名空间，如 namespace=registry
package clog

import "fmt"

// New 创建一个新的 Logger 实例
//
// config - 日志配置，如果为 nil 会使用默认配置
// opts   - 函数式选项列表，用于命名空间、Context 字段等配置
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = &Config{}
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// 应用选项
	options := applyOptions(opts...)

	return newLogger(config, options)
}
