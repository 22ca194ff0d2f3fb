package mesh

import "github.com/ceyewan/meshkit/xerrors"

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("mesh: config is nil")

	// ErrComponentsMissing 必填组件缺失
	ErrComponentsMissing = xerrors.New("mesh: required components missing")

	// ErrNotRouted 请求未被成功路由
	ErrNotRouted = xerrors.New("mesh: request not routed")
)
