package breaker

import "github.com/ceyewan/meshkit/xerrors"

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("breaker: config is nil")

	// ErrNoFallback 未注册降级函数或降级自身失败
	ErrNoFallback = xerrors.New("breaker: no fallback available")
)
