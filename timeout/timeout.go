// Package timeout 提供了超时管理组件，按请求粒度跟踪截止时间并支持级联传播。
//
// timeout 是 meshkit 治理层组件之一，它提供了：
// - 服务级超时配置（请求超时 / 连接超时），未配置时回退进程默认值
// - 请求级截止时间登记与轮询式超时检测（CheckTimeout）
// - 父子请求间的截止时间传播（扣除网络开销）
// - 服务级累计超时预算，独立于单请求截止时间的粗粒度开销跟踪
//
// ## 超时检测语义
//
// 检测是轮询式的：超过截止时间的请求在其后每一次 CheckTimeout 都报告
// TimedOut=true，调用方需自行记录是否已对某次超时做过处理，避免在
// 历史或指标中重复计数。RequestID 必须在并发在途请求间唯一。
//
// ## 基本使用
//
//	mgr, _ := timeout.New(&timeout.Config{
//		DefaultRequestTimeout: 5 * time.Second,
//		DefaultConnectTimeout: time.Second,
//	}, timeout.WithLogger(logger))
//
//	entry := mgr.StartRequest("req-1", "pay")
//	defer mgr.EndRequest("req-1")
//
//	if check := mgr.CheckTimeout("req-1"); check.TimedOut {
//		return errDeadlineExceeded
//	}
package timeout

import (
	"time"

	"github.com/ceyewan/meshkit/clog"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Manager 超时管理核心接口
type Manager interface {
	// StartRequest 登记一个在途请求
	// 未显式指定 deadline 时使用 now + 服务的请求超时。
	// requestID 必须在并发在途请求间唯一，复用属于未定义行为。
	StartRequest(requestID, service string, deadline ...time.Time) Entry

	// CheckTimeout 检测请求是否超时
	// 截止时间已过的请求在之后的每一次检测中都报告 TimedOut=true。
	// 未知请求返回零值 Check。
	CheckTimeout(requestID string) Check

	// EndRequest 结束请求并移除登记，返回耗时结果
	// 请求未知或已结束时返回 (nil, false)。
	EndRequest(requestID string) (*Result, bool)

	// PropagateDeadline 从父请求向子请求传播截止时间
	// 子请求的截止时间 = 父请求截止时间 - overhead。
	// 父请求未知时等价于对子请求执行一次全新的 StartRequest。
	PropagateDeadline(parentID, childID, service string, overhead time.Duration) Entry

	// SetServiceTimeout 设置服务级超时配置
	SetServiceTimeout(service string, requestTimeout, connectTimeout time.Duration)

	// ServiceTimeout 返回服务生效的超时配置（含默认值回退）
	ServiceTimeout(service string) (requestTimeout, connectTimeout time.Duration)

	// SetBudget 设置服务的累计超时预算
	SetBudget(service string, total time.Duration)

	// ConsumeBudget 从服务预算中扣除已消耗的时长
	ConsumeBudget(service string, amount time.Duration) Budget

	// ActiveCount 返回当前在途请求数
	ActiveCount() int
}

// Entry 请求登记结果
type Entry struct {
	// Deadline 请求的截止时间
	Deadline time.Time `json:"deadline"`

	// Remaining 距截止时间的剩余时长
	Remaining time.Duration `json:"remaining"`
}

// Check 超时检测结果
type Check struct {
	// TimedOut 是否已超过截止时间
	TimedOut bool `json:"timed_out"`

	// Remaining 距截止时间的剩余时长，已超时为 0
	Remaining time.Duration `json:"remaining"`

	// Elapsed 自请求开始以来的耗时
	Elapsed time.Duration `json:"elapsed"`
}

// Result 请求结束结果
type Result struct {
	// Service 请求所属服务
	Service string `json:"service"`

	// Elapsed 请求总耗时
	Elapsed time.Duration `json:"elapsed"`
}

// Budget 服务级累计预算状态
type Budget struct {
	// Remaining 剩余预算，耗尽后为 0
	Remaining time.Duration `json:"remaining"`

	// Exhausted 预算是否已耗尽
	Exhausted bool `json:"exhausted"`
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 超时管理配置（进程级默认值）
type Config struct {
	// DefaultRequestTimeout 默认请求超时（默认：5s）
	DefaultRequestTimeout time.Duration `mapstructure:"default_request_timeout" json:"default_request_timeout" yaml:"default_request_timeout"`

	// DefaultConnectTimeout 默认连接超时（默认：1s）
	DefaultConnectTimeout time.Duration `mapstructure:"default_connect_timeout" json:"default_connect_timeout" yaml:"default_connect_timeout"`
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建超时管理器实例
// 这是标准的工厂函数，支持在不依赖其他容器的情况下独立实例化
func New(cfg *Config, opts ...Option) (Manager, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	// 应用选项
	opt := options{}
	for _, o := range opts {
		o(&opt)
	}

	logger := opt.logger
	if logger == nil {
		logger = clog.Discard()
	}

	return newManager(cfg, logger, opt.meter, opt.clock)
}
