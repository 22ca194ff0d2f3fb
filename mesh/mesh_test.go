package mesh

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/meshkit/balancer"
	"github.com/ceyewan/meshkit/breaker"
	"github.com/ceyewan/meshkit/policy"
	"github.com/ceyewan/meshkit/registry"
	"github.com/ceyewan/meshkit/timeout"
	"github.com/ceyewan/meshkit/traffic"
)

// newTestOrchestrator 组装一套完整的治理组件（测试辅助）
func newTestOrchestrator(t *testing.T) (Orchestrator, *Components) {
	t.Helper()

	reg, err := registry.New(&registry.Config{DefaultTTL: time.Minute})
	require.NoError(t, err)

	lb, err := balancer.New(&balancer.Config{Algorithm: balancer.AlgorithmRoundRobin})
	require.NoError(t, err)

	brk, err := breaker.New(&breaker.Config{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second})
	require.NoError(t, err)

	tm, err := timeout.New(&timeout.Config{DefaultRequestTimeout: 5 * time.Second})
	require.NoError(t, err)

	tf, err := traffic.New(&traffic.Config{})
	require.NoError(t, err)

	store, err := policy.NewStandalone(&policy.Config{})
	require.NoError(t, err)

	c := &Components{Registry: reg, Balancer: lb, Breaker: brk, Timeout: tm, Traffic: tf, Policy: store}
	orch, err := New(&Config{}, c)
	require.NoError(t, err)
	return orch, c
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, &Components{})
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{}, nil)
	assert.ErrorIs(t, err, ErrComponentsMissing)

	_, err = New(&Config{}, &Components{})
	assert.ErrorIs(t, err, ErrComponentsMissing)
}

func TestRouteRequestHappyPath(t *testing.T) {
	orch, c := newTestOrchestrator(t)
	ctx := context.Background()

	c.Registry.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
	c.Registry.Register("pay", "10.0.0.2", 8080, "v1", nil, 0)

	req := &Request{Path: "/charge"}
	result := orch.RouteRequest(ctx, "pay", req, "")

	require.Equal(t, StatusRouted, result.Status)
	require.NotNil(t, result.Instance)
	assert.NotEmpty(t, result.RequestID, "RequestID 为空时自动生成")
	assert.Equal(t, traffic.RoutingDefault, result.RoutingType)
	assert.False(t, result.Deadline.IsZero())

	// 边车拦截器注入了网格元数据
	assert.Equal(t, result.RequestID, req.Headers[HeaderRequestID])
	assert.Equal(t, result.Version, req.Headers[HeaderTargetVersion])
	assert.Equal(t, "disabled", req.Headers[HeaderMTLS])

	// 超时登记存在，连接计数增加
	assert.Equal(t, 1, c.Timeout.ActiveCount())
	assert.Equal(t, 1, c.Balancer.Connections("pay", result.Instance.ID))
}

func TestRouteRequestRoundRobinAcrossCalls(t *testing.T) {
	orch, c := newTestOrchestrator(t)
	ctx := context.Background()

	c.Registry.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
	c.Registry.Register("pay", "10.0.0.2", 8080, "v1", nil, 0)

	first := orch.RouteRequest(ctx, "pay", nil, "")
	second := orch.RouteRequest(ctx, "pay", nil, "")
	require.Equal(t, StatusRouted, first.Status)
	require.Equal(t, StatusRouted, second.Status)
	assert.NotEqual(t, first.Instance.ID, second.Instance.ID, "轮询应交替选择实例")
}

func TestRouteRequestNoInstances(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	result := orch.RouteRequest(context.Background(), "ghost", &Request{}, "")
	assert.Equal(t, StatusNoInstances, result.Status)
	assert.Nil(t, result.Instance)
}

func TestRouteRequestUnhealthyInstancesExcluded(t *testing.T) {
	orch, c := newTestOrchestrator(t)

	id := c.Registry.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
	c.Registry.SetStatus("pay", id, registry.StatusInactive)

	result := orch.RouteRequest(context.Background(), "pay", &Request{}, "")
	assert.Equal(t, StatusNoInstances, result.Status)
}

func TestRouteRequestCircuitOpen(t *testing.T) {
	orch, c := newTestOrchestrator(t)
	ctx := context.Background()

	c.Registry.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
	c.Breaker.ForceOpen("pay")

	result := orch.RouteRequest(ctx, "pay", &Request{}, "")
	assert.Equal(t, StatusCircuitOpen, result.Status)
	assert.Nil(t, result.FallbackResult, "未注册降级时无降级结果")

	c.Breaker.RegisterFallback("pay", func(ctx context.Context, service string) (any, error) {
		return "cached", nil
	})
	result = orch.RouteRequest(ctx, "pay", &Request{}, "")
	assert.Equal(t, StatusCircuitOpen, result.Status)
	assert.Equal(t, "cached", result.FallbackResult)
}

func TestRouteRequestRateLimited(t *testing.T) {
	orch, c := newTestOrchestrator(t)
	ctx := context.Background()

	c.Registry.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
	require.NoError(t, c.Policy.SetLimit("pay", 1, 1))

	first := orch.RouteRequest(ctx, "pay", &Request{}, "")
	assert.Equal(t, StatusRouted, first.Status)

	second := orch.RouteRequest(ctx, "pay", &Request{}, "")
	assert.Equal(t, StatusRateLimited, second.Status)
}

func TestRouteRequestTrafficRules(t *testing.T) {
	orch, c := newTestOrchestrator(t)
	ctx := context.Background()

	c.Registry.Register("search", "10.0.0.1", 8080, "v2", nil, 0)
	require.NoError(t, c.Traffic.SetupCanary("search", "v2", 100))

	result := orch.RouteRequest(ctx, "search", &Request{}, "")
	require.Equal(t, StatusRouted, result.Status)
	assert.Equal(t, "v2", result.Version)
	assert.Equal(t, traffic.RoutingCanary, result.RoutingType)
}

func TestRecordResultClosesLoop(t *testing.T) {
	orch, c := newTestOrchestrator(t)
	ctx := context.Background()

	c.Registry.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)

	result := orch.RouteRequest(ctx, "pay", &Request{}, "")
	require.Equal(t, StatusRouted, result.Status)

	state := orch.RecordResult(ctx, "pay", result.RequestID, true)
	assert.Equal(t, breaker.StateClosed, state)

	// 超时登记已结束，连接计数已释放
	assert.Equal(t, 0, c.Timeout.ActiveCount())
	assert.Equal(t, 0, c.Balancer.Connections("pay", result.Instance.ID))
}

func TestRecordResultOpensCircuit(t *testing.T) {
	orch, c := newTestOrchestrator(t)
	ctx := context.Background()

	c.Registry.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)

	// 失败阈值为 3：连续 3 次失败后熔断
	var state breaker.State
	for i := 0; i < 3; i++ {
		result := orch.RouteRequest(ctx, "pay", &Request{}, "")
		require.Equal(t, StatusRouted, result.Status)
		state = orch.RecordResult(ctx, "pay", result.RequestID, false)
	}
	assert.Equal(t, breaker.StateOpen, state)

	result := orch.RouteRequest(ctx, "pay", &Request{}, "")
	assert.Equal(t, StatusCircuitOpen, result.Status)
}

func TestShouldMirrorPassthrough(t *testing.T) {
	orch, c := newTestOrchestrator(t)

	assert.False(t, orch.ShouldMirror("search", "req-1"))

	require.NoError(t, c.Traffic.SetupDarkLaunch("search", "shadow", 100))
	assert.True(t, orch.ShouldMirror("search", "req-1"))
}

func TestRequestLog(t *testing.T) {
	orch, err := New(&Config{LogSize: 2}, mustComponents(t))
	require.NoError(t, err)
	ctx := context.Background()

	assert.Nil(t, orch.RequestLog(10))

	for i := 0; i < 3; i++ {
		orch.RouteRequest(ctx, "ghost", &Request{RequestID: fmt.Sprintf("req-%d", i)}, "")
	}

	log := orch.RequestLog(10)
	require.Len(t, log, 2, "请求日志容量有界")
	assert.Equal(t, "req-2", log[0].RequestID, "最新的在前")
	assert.Equal(t, "req-1", log[1].RequestID)
	assert.Equal(t, StatusNoInstances, log[0].Status)
}

func mustComponents(t *testing.T) *Components {
	t.Helper()

	reg, err := registry.New(&registry.Config{})
	require.NoError(t, err)
	lb, err := balancer.New(&balancer.Config{})
	require.NoError(t, err)
	brk, err := breaker.New(&breaker.Config{})
	require.NoError(t, err)
	tm, err := timeout.New(&timeout.Config{})
	require.NoError(t, err)
	tf, err := traffic.New(&traffic.Config{})
	require.NoError(t, err)
	return &Components{Registry: reg, Balancer: lb, Breaker: brk, Timeout: tm, Traffic: tf}
}

func TestStickySessionThroughPipeline(t *testing.T) {
	orch, c := newTestOrchestrator(t)
	ctx := context.Background()

	c.Registry.Register("pay", "10.0.0.1", 8080, "v1", nil, 0)
	c.Registry.Register("pay", "10.0.0.2", 8080, "v1", nil, 0)
	c.Registry.Register("pay", "10.0.0.3", 8080, "v1", nil, 0)

	first := orch.RouteRequest(ctx, "pay", &Request{}, "session-1")
	require.Equal(t, StatusRouted, first.Status)

	for i := 0; i < 10; i++ {
		result := orch.RouteRequest(ctx, "pay", &Request{}, "session-1")
		require.Equal(t, StatusRouted, result.Status)
		assert.Equal(t, first.Instance.ID, result.Instance.ID, "粘性会话应始终命中同一实例")
	}
}
