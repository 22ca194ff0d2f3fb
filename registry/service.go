package registry

import (
	"fmt"
	"time"
)

// Status 实例状态
type Status string

const (
	// StatusActive 实例存活，可以接收流量
	StatusActive Status = "active"
	// StatusInactive 实例已失活，健康过滤时会被排除
	StatusInactive Status = "inactive"
)

// Instance 代表一个服务实例
type Instance struct {
	ID            string            `json:"id"`      // 实例 ID，由 host:port 派生，服务内唯一
	Name          string            `json:"name"`    // 所属服务名
	Host          string            `json:"host"`    // 主机地址
	Port          int               `json:"port"`    // 端口
	Version       string            `json:"version"` // 版本号
	Status        Status            `json:"status"`  // active | inactive
	TTL           time.Duration     `json:"ttl"`     // 租约时长，0 表示永不过期
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	Metadata      map[string]string `json:"metadata"` // 元数据 (Region, Zone, Weight 等)
}

// Address 返回实例的 host:port 地址
func (i *Instance) Address() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

// InstanceID 由 host 和 port 派生实例 ID
func InstanceID(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// Service 服务的聚合视图
type Service struct {
	Name      string      `json:"name"`
	Instances []*Instance `json:"instances"` // 保持注册顺序
	Status    Status      `json:"status"`    // 任一实例 active 则为 active
}
