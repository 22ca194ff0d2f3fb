package policy

import "github.com/ceyewan/meshkit/xerrors"

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("policy: config is nil")

	// ErrInvalidLimit 非法的限流参数
	ErrInvalidLimit = xerrors.New("policy: rate and burst must be positive")
)
