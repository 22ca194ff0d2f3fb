// Package registry 提供了进程内服务注册表组件，负责跟踪服务、实例、
// 健康状态与 TTL 过期。
//
// registry 是 meshkit 控制平面的最底层组件，它提供了：
// - 服务实例的注册、注销与心跳续约
// - 实例 ID 由 host:port 派生，重复注册整体替换并重置心跳时钟
// - 基于 TTL 的过期清理（由外部调度器周期性调用，组件自身无后台任务）
// - 按健康状态过滤的实例查询
//
// ## 基本使用
//
//	reg, _ := registry.New(&registry.Config{
//		DefaultTTL: 30 * time.Second,
//	}, registry.WithLogger(logger))
//
//	id := reg.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
//	reg.Heartbeat("pay", id)
//
//	instances := reg.Instances("pay", true)
//
// ## 过期清理
//
// 注册表不启动任何 goroutine，过期扫描由调用方的调度器驱动：
//
//	ticker := time.NewTicker(10 * time.Second)
//	for range ticker.C {
//		reg.CleanupExpired()
//	}
//
// ## 失败语义
//
// 未知服务或实例的操作返回 false/空切片，绝不 panic，也不返回 error。
package registry

import (
	"time"

	"github.com/ceyewan/meshkit/clog"
)

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Registry 服务注册表核心接口
type Registry interface {
	// Register 注册服务实例，返回实例 ID（host:port 派生）
	// 重复注册同一实例 ID 会整体替换实例记录，并重置心跳时钟。
	// ttl 为 0 时使用 Config.DefaultTTL；TTL 为 0 的实例永不过期。
	Register(name, host string, port int, version string, metadata map[string]string, ttl time.Duration) string

	// Deregister 注销实例；不传 instanceID 时注销整个服务
	// 返回是否确实移除了记录。
	Deregister(name string, instanceID ...string) bool

	// Heartbeat 刷新实例心跳时间
	// 未知服务或实例时静默失败，返回 false。
	Heartbeat(name, instanceID string) bool

	// SetStatus 更新实例状态（active/inactive）
	SetStatus(name, instanceID string, status Status) bool

	// Instances 返回服务的实例列表
	// healthyOnly 为 true 时仅返回 status == active 的实例。
	Instances(name string, healthyOnly bool) []*Instance

	// Service 返回服务的聚合视图
	Service(name string) (*Service, bool)

	// Services 返回所有已注册的服务名
	Services() []string

	// CleanupExpired 移除所有 TTL 已过期的实例，返回移除数量
	// 过期条件：ttl > 0 且 now - last_heartbeat >= ttl。
	// 必须由外部调度器周期性调用。
	CleanupExpired() int
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 注册表配置
type Config struct {
	// DefaultTTL 注册时未指定 TTL 使用的默认租约时长（默认：30s）
	// 设为负值表示默认永不过期。
	DefaultTTL time.Duration `mapstructure:"default_ttl" json:"default_ttl" yaml:"default_ttl"`
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建注册表实例
// 这是标准的工厂函数，支持在不依赖其他容器的情况下独立实例化
func New(cfg *Config, opts ...Option) (Registry, error) {
	if cfg == nil {
		cfg = &Config{}
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

	return newRegistry(cfg, logger, opt.meter, opt.clock)
}
