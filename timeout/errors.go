package timeout

import "github.com/ceyewan/meshkit/xerrors"

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("timeout: config is nil")
)
