package traffic

import "github.com/ceyewan/meshkit/xerrors"

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("traffic: config is nil")

	// ErrInvalidPercentage 百分比不在 [0, 100] 区间
	ErrInvalidPercentage = xerrors.New("traffic: percentage out of range [0, 100]")

	// ErrInvalidWeights 权重列表为空或总和非正
	ErrInvalidWeights = xerrors.New("traffic: weights empty or non-positive")

	// ErrRuleNotFound 服务未配置对应规则
	ErrRuleNotFound = xerrors.New("traffic: rule not found")
)
