package retry

import "github.com/ceyewan/meshkit/xerrors"

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("retry: config is nil")

	// ErrUnknownStrategy 未知的退避策略
	ErrUnknownStrategy = xerrors.New("retry: unknown strategy")
)
