package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock 可手动推进的时钟（测试辅助）
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(t *testing.T, clock *fakeClock) Registry {
	t.Helper()

	reg, err := New(&Config{DefaultTTL: 30 * time.Second}, WithClock(clock.Now))
	require.NoError(t, err)
	return reg
}

func TestRegisterDerivesInstanceID(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())

	id := reg.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
	assert.Equal(t, "10.0.0.1:8080", id)

	instances := reg.Instances("pay", false)
	require.Len(t, instances, 1)
	assert.Equal(t, "pay", instances[0].Name)
	assert.Equal(t, StatusActive, instances[0].Status)
	assert.Equal(t, 30*time.Second, instances[0].TTL, "未指定 TTL 应使用默认值")
}

func TestRegisterReplacesWholesale(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, clock)

	id := reg.Register("pay", "10.0.0.1", 8080, "v1", map[string]string{"zone": "a"}, time.Minute)
	reg.SetStatus("pay", id, StatusInactive)

	clock.Advance(10 * time.Second)

	// 重复注册同一 host:port 应整体替换记录并重置心跳
	id2 := reg.Register("pay", "10.0.0.1", 8080, "v2", nil, time.Minute)
	assert.Equal(t, id, id2)

	instances := reg.Instances("pay", false)
	require.Len(t, instances, 1)
	assert.Equal(t, "v2", instances[0].Version)
	assert.Equal(t, StatusActive, instances[0].Status, "替换后状态应重置")
	assert.Equal(t, clock.Now(), instances[0].LastHeartbeat, "替换后心跳时钟应重置")
	assert.Nil(t, instances[0].Metadata)
}

func TestDeregisterInstance(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())

	id1 := reg.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
	reg.Register("pay", "10.0.0.2", 8080, "v1", nil, 0)

	assert.True(t, reg.Deregister("pay", id1))
	assert.Len(t, reg.Instances("pay", false), 1)

	// 再次注销同一实例应返回 false
	assert.False(t, reg.Deregister("pay", id1))
}

func TestDeregisterWholeService(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())

	reg.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
	reg.Register("pay", "10.0.0.2", 8080, "v1", nil, 0)

	assert.True(t, reg.Deregister("pay"))
	assert.Empty(t, reg.Instances("pay", false))
	assert.False(t, reg.Deregister("pay"), "未知服务应返回 false")
}

func TestHeartbeat(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, clock)

	id := reg.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
	registeredAt := clock.Now()

	clock.Advance(5 * time.Second)
	assert.True(t, reg.Heartbeat("pay", id))

	instances := reg.Instances("pay", false)
	require.Len(t, instances, 1)
	assert.True(t, instances[0].LastHeartbeat.After(registeredAt))

	// 未知服务/实例静默失败
	assert.False(t, reg.Heartbeat("pay", "unknown:0"))
	assert.False(t, reg.Heartbeat("unknown", id))
}

func TestInstancesHealthyFilter(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())

	id1 := reg.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
	reg.Register("pay", "10.0.0.2", 8080, "v1", nil, 0)
	reg.SetStatus("pay", id1, StatusInactive)

	all := reg.Instances("pay", false)
	healthy := reg.Instances("pay", true)
	assert.Len(t, all, 2)
	require.Len(t, healthy, 1)
	assert.Equal(t, "10.0.0.2:8080", healthy[0].ID)

	// 未知服务返回空
	assert.Empty(t, reg.Instances("unknown", false))
}

func TestInstancesPreserveRegistrationOrder(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())

	reg.Register("pay", "10.0.0.3", 8080, "v1", nil, 0)
	reg.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
	reg.Register("pay", "10.0.0.2", 8080, "v1", nil, 0)

	instances := reg.Instances("pay", false)
	require.Len(t, instances, 3)
	assert.Equal(t, "10.0.0.3:8080", instances[0].ID)
	assert.Equal(t, "10.0.0.1:8080", instances[1].ID)
	assert.Equal(t, "10.0.0.2:8080", instances[2].ID)
}

func TestCleanupExpired(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, clock)

	reg.Register("pay", "10.0.0.1", 8080, "v1", nil, 10*time.Second)
	id2 := reg.Register("pay", "10.0.0.2", 8080, "v1", nil, time.Minute)
	reg.Register("search", "10.0.1.1", 9090, "v1", nil, -1) // 永不过期

	clock.Advance(10 * time.Second)
	reg.Heartbeat("pay", id2)

	clock.Advance(20 * time.Second)

	// 10.0.0.1 过期（30s 无心跳 ≥ 10s TTL），10.0.0.2 有心跳（20s < 60s）
	removed := reg.CleanupExpired()
	assert.Equal(t, 1, removed)

	instances := reg.Instances("pay", false)
	require.Len(t, instances, 1)
	assert.Equal(t, id2, instances[0].ID)

	// 永不过期的实例不受影响
	assert.Len(t, reg.Instances("search", false), 1)
}

func TestCleanupExpiredBoundary(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(t, clock)

	reg.Register("pay", "10.0.0.1", 8080, "v1", nil, 10*time.Second)

	// 恰好等于 TTL 时即过期（now - last_heartbeat >= ttl）
	clock.Advance(10 * time.Second)
	assert.Equal(t, 1, reg.CleanupExpired())
}

func TestServiceAggregateStatus(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())

	id1 := reg.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
	id2 := reg.Register("pay", "10.0.0.2", 8080, "v1", nil, 0)

	svc, ok := reg.Service("pay")
	require.True(t, ok)
	assert.Equal(t, StatusActive, svc.Status)

	reg.SetStatus("pay", id1, StatusInactive)
	reg.SetStatus("pay", id2, StatusInactive)

	svc, _ = reg.Service("pay")
	assert.Equal(t, StatusInactive, svc.Status, "所有实例失活时服务应为 inactive")

	_, ok = reg.Service("unknown")
	assert.False(t, ok)
}

func TestServicesList(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())

	reg.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
	reg.Register("search", "10.0.1.1", 9090, "v1", nil, 0)

	assert.ElementsMatch(t, []string{"pay", "search"}, reg.Services())
}

func TestConcurrentRegisterAndQuery(t *testing.T) {
	reg := newTestRegistry(t, newFakeClock())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			reg.Register("pay", "10.0.0.1", 8000+n, "v1", nil, 0)
			reg.Instances("pay", true)
			reg.CleanupExpired()
		}(i)
	}
	wg.Wait()

	assert.Len(t, reg.Instances("pay", false), 50)
}
