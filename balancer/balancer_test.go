package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/meshkit/registry"
)

// newInstances 构造候选实例集（测试辅助）
func newInstances(ids ...string) []*registry.Instance {
	result := make([]*registry.Instance, 0, len(ids))
	for _, id := range ids {
		result = append(result, &registry.Instance{
			ID:     id,
			Status: registry.StatusActive,
		})
	}
	return result
}

func newTestBalancer(t *testing.T, algorithm Algorithm) Balancer {
	t.Helper()

	lb, err := New(&Config{Algorithm: algorithm})
	require.NoError(t, err)
	return lb
}

func TestNewUnknownAlgorithm(t *testing.T) {
	_, err := New(&Config{Algorithm: "random"})
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestNewDefaultAlgorithm(t *testing.T) {
	lb, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, lb)
}

func TestSelectEmptyCandidates(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmRoundRobin)
	assert.Nil(t, lb.Select("pay", nil, ""))
}

func TestRoundRobinFairness(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmRoundRobin)
	candidates := newInstances("a", "b", "c")

	// N=3 实例 M=10 次选择，每个实例应被选中 ⌊M/N⌋ 或 ⌈M/N⌉ 次，且按轮转顺序
	counts := map[string]int{}
	var order []string
	for i := 0; i < 10; i++ {
		inst := lb.Select("pay", candidates, "")
		require.NotNil(t, inst)
		counts[inst.ID]++
		order = append(order, inst.ID)
	}

	for id, count := range counts {
		assert.GreaterOrEqual(t, count, 3, "instance %s", id)
		assert.LessOrEqual(t, count, 4, "instance %s", id)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c", "a", "b", "c", "a"}, order)
}

func TestRoundRobinPerService(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmRoundRobin)
	candidates := newInstances("a", "b")

	// 不同服务的轮转索引相互独立
	assert.Equal(t, "a", lb.Select("pay", candidates, "").ID)
	assert.Equal(t, "a", lb.Select("search", candidates, "").ID)
	assert.Equal(t, "b", lb.Select("pay", candidates, "").ID)
}

func TestHealthFilterPrefersActive(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmRoundRobin)

	candidates := newInstances("a", "b", "c")
	candidates[0].Status = registry.StatusInactive
	candidates[2].Status = registry.StatusInactive

	for i := 0; i < 3; i++ {
		assert.Equal(t, "b", lb.Select("pay", candidates, "").ID)
	}
}

func TestHealthFilterFallsBackToFullList(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmRoundRobin)

	candidates := newInstances("a", "b")
	candidates[0].Status = registry.StatusInactive
	candidates[1].Status = registry.StatusInactive

	// 全部失活时优雅降级，仍然返回实例而非失败
	inst := lb.Select("pay", candidates, "")
	require.NotNil(t, inst)
}

func TestStickySessionReuse(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmRoundRobin)
	candidates := newInstances("a", "b", "c")

	first := lb.Select("pay", candidates, "session-1")
	require.NotNil(t, first)

	// 后续选择应复用绑定的实例，不再轮转
	for i := 0; i < 5; i++ {
		assert.Equal(t, first.ID, lb.Select("pay", candidates, "session-1").ID)
	}
}

func TestStickySessionSkipsHealthCheck(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmRoundRobin)
	candidates := newInstances("a", "b")

	first := lb.Select("pay", candidates, "session-1")
	require.Equal(t, "a", first.ID)

	// 绑定实例失活后依然复用（粘性会话不重新校验健康状态）
	candidates[0].Status = registry.StatusInactive
	assert.Equal(t, "a", lb.Select("pay", candidates, "session-1").ID)
}

func TestStickySessionRebindWhenInstanceGone(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmRoundRobin)

	first := lb.Select("pay", newInstances("a", "b"), "session-1")
	require.Equal(t, "a", first.ID)

	// 绑定实例不在候选列表时重新选择并更新绑定
	second := lb.Select("pay", newInstances("b", "c"), "session-1")
	require.NotNil(t, second)
	assert.NotEqual(t, "a", second.ID)

	third := lb.Select("pay", newInstances("b", "c"), "session-1")
	assert.Equal(t, second.ID, third.ID)
}

func TestReleaseSession(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmRoundRobin)
	candidates := newInstances("a", "b")

	require.Equal(t, "a", lb.Select("pay", candidates, "session-1").ID)
	lb.ReleaseSession("pay", "session-1")

	// 解绑后按算法重新选择
	assert.Equal(t, "b", lb.Select("pay", candidates, "session-1").ID)
}

func TestLeastConnections(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmLeastConnections)
	candidates := newInstances("a", "b", "c")

	lb.AddConnection("pay", "a")
	lb.AddConnection("pay", "a")
	lb.AddConnection("pay", "b")

	assert.Equal(t, "c", lb.Select("pay", candidates, "").ID)

	lb.AddConnection("pay", "c")
	lb.AddConnection("pay", "c")

	// b 连接最少
	assert.Equal(t, "b", lb.Select("pay", candidates, "").ID)
}

func TestLeastConnectionsTieBreak(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmLeastConnections)
	candidates := newInstances("a", "b", "c")

	// 全部为 0 时取先出现者
	assert.Equal(t, "a", lb.Select("pay", candidates, "").ID)
}

func TestRemoveConnectionFloorsAtZero(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmLeastConnections)

	lb.RemoveConnection("pay", "a")
	assert.Equal(t, 0, lb.Connections("pay", "a"))

	lb.AddConnection("pay", "a")
	assert.Equal(t, 1, lb.Connections("pay", "a"))
	lb.RemoveConnection("pay", "a")
	assert.Equal(t, 0, lb.Connections("pay", "a"))
}

func TestWeightedPicksHighestWeight(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmWeighted)
	candidates := newInstances("a", "b", "c")

	lb.SetWeight("a", 10)
	lb.SetWeight("b", 70)
	lb.SetWeight("c", 20)

	// 确定性选择权重最高者，每次相同
	for i := 0; i < 5; i++ {
		assert.Equal(t, "b", lb.Select("pay", candidates, "").ID)
	}
}

func TestWeightedTieBreak(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmWeighted)
	candidates := newInstances("a", "b")

	lb.SetWeight("a", 50)
	lb.SetWeight("b", 50)

	assert.Equal(t, "a", lb.Select("pay", candidates, "").ID)
}

func TestHealthAware(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmHealthAware)
	candidates := newInstances("a", "b", "c")

	lb.SetHealthy("b", true)
	lb.SetHealthy("c", true)
	lb.AddConnection("pay", "b")

	// 只在显式标记健康的实例中应用 least_connections
	assert.Equal(t, "c", lb.Select("pay", candidates, "").ID)
}

func TestHealthAwareFallback(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmHealthAware)
	candidates := newInstances("a", "b")

	// 无任何健康标记时回退到完整池
	inst := lb.Select("pay", candidates, "")
	require.NotNil(t, inst)
}

func TestSelectionCounts(t *testing.T) {
	lb := newTestBalancer(t, AlgorithmRoundRobin)
	candidates := newInstances("a", "b")

	for i := 0; i < 4; i++ {
		lb.Select("pay", candidates, "")
	}

	counts := lb.SelectionCounts("pay")
	assert.Equal(t, int64(2), counts["a"])
	assert.Equal(t, int64(2), counts["b"])
}
