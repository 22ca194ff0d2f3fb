package balancer

import "github.com/ceyewan/meshkit/xerrors"

// 错误定义
var (
	// ErrUnknownAlgorithm 未知的负载均衡算法
	ErrUnknownAlgorithm = xerrors.New("balancer: unknown algorithm")
)
