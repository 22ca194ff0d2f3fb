package retry

import (
	"errors"
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

func newTestPolicy(t *testing.T, cfg *Config, opts ...Option) Policy {
	t.Helper()

	pol, err := New(cfg, opts...)
	require.NoError(t, err)
	return pol
}

var errCall = errors.New("connection refused")

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{Strategy: "random"})
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestExponentialBackoff(t *testing.T) {
	pol := newTestPolicy(t, &Config{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Strategy:    StrategyExponential,
	})

	// base=1s 时第 0、1、2 次尝试的延迟为 1s、2s、4s
	for attempt, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		d := pol.ShouldRetry("pay", attempt, errCall)
		require.True(t, d.Retry)
		assert.Equal(t, want, d.Delay, "attempt=%d", attempt)
		assert.Equal(t, attempt+1, d.NextAttempt)
	}
}

func TestDelayCappedAtMax(t *testing.T) {
	pol := newTestPolicy(t, &Config{
		MaxAttempts: 100,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Strategy:    StrategyExponential,
	})

	d := pol.ShouldRetry("pay", 10, errCall)
	require.True(t, d.Retry)
	assert.Equal(t, 10*time.Second, d.Delay)
}

func TestFixedAndLinearStrategies(t *testing.T) {
	pol := newTestPolicy(t, &Config{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Strategy:    StrategyFixed,
	})

	assert.Equal(t, time.Second, pol.ShouldRetry("pay", 0, errCall).Delay)
	assert.Equal(t, time.Second, pol.ShouldRetry("pay", 3, errCall).Delay)

	require.NoError(t, pol.SetPolicy("pay", 10, StrategyLinear))
	assert.Equal(t, time.Second, pol.ShouldRetry("pay", 0, errCall).Delay)
	assert.Equal(t, 4*time.Second, pol.ShouldRetry("pay", 3, errCall).Delay)
}

func TestFibonacciStrategy(t *testing.T) {
	pol := newTestPolicy(t, &Config{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Strategy:    StrategyFibonacci,
	})

	// fib(1..6) = 1, 1, 2, 3, 5, 8
	want := []time.Duration{
		time.Second, time.Second, 2 * time.Second,
		3 * time.Second, 5 * time.Second, 8 * time.Second,
	}
	for attempt, w := range want {
		assert.Equal(t, w, pol.ShouldRetry("pay", attempt, errCall).Delay, "attempt=%d", attempt)
	}
}

func TestJitterStrategyDeterministic(t *testing.T) {
	// 注入固定随机数 0.5，抖动系数为 0.5 + 0.5 = 1.0
	pol := newTestPolicy(t, &Config{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Strategy:    StrategyJitter,
	}, WithRand(func() float64 { return 0.5 }))

	assert.Equal(t, 2*time.Second, pol.ShouldRetry("pay", 1, errCall).Delay)

	// 系数 0.5 + 0 = 0.5
	pol = newTestPolicy(t, &Config{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Strategy:    StrategyJitter,
	}, WithRand(func() float64 { return 0 }))

	assert.Equal(t, 2*time.Second, pol.ShouldRetry("pay", 2, errCall).Delay)
}

func TestMaxAttemptsReached(t *testing.T) {
	pol := newTestPolicy(t, &Config{MaxAttempts: 3})

	d := pol.ShouldRetry("pay", 3, errCall)
	assert.False(t, d.Retry)
	assert.Equal(t, ReasonMaxAttempts, d.Reason)
	assert.Equal(t, 3, d.NextAttempt)
}

func TestPerServicePolicyOverride(t *testing.T) {
	pol := newTestPolicy(t, &Config{MaxAttempts: 3})

	require.NoError(t, pol.SetPolicy("pay", 5, StrategyFixed))
	assert.ErrorIs(t, pol.SetPolicy("pay", 5, "bogus"), ErrUnknownStrategy)

	assert.True(t, pol.ShouldRetry("pay", 4, errCall).Retry, "覆盖后 pay 允许 5 次尝试")
	assert.False(t, pol.ShouldRetry("order", 4, errCall).Retry, "其他服务仍用默认值")
}

func TestBudgetExhaustedBeforeAttemptCheck(t *testing.T) {
	pol := newTestPolicy(t, &Config{MaxAttempts: 10})
	pol.SetBudget("x", 2, time.Minute)

	require.True(t, pol.ShouldRetry("x", 0, errCall).Retry)
	require.True(t, pol.ShouldRetry("x", 1, errCall).Retry)

	// 窗口内第三次评估：预算耗尽，与 attempt 无关
	d := pol.ShouldRetry("x", 0, errCall)
	assert.False(t, d.Retry)
	assert.Equal(t, ReasonBudgetExhausted, d.Reason)
}

func TestBudgetConsumedEvenWhenDenied(t *testing.T) {
	pol := newTestPolicy(t, &Config{MaxAttempts: 1})
	pol.SetBudget("x", 1, time.Minute)

	// attempt 已达上限，决策为拒绝，但预算仍被消耗
	d := pol.ShouldRetry("x", 1, errCall)
	assert.Equal(t, ReasonMaxAttempts, d.Reason)

	d = pol.ShouldRetry("x", 0, errCall)
	assert.Equal(t, ReasonBudgetExhausted, d.Reason)
}

func TestBudgetWindowAutoReset(t *testing.T) {
	clock := newFakeClock()
	pol := newTestPolicy(t, &Config{MaxAttempts: 10}, WithClock(clock.Now))
	pol.SetBudget("x", 1, time.Minute)

	require.True(t, pol.ShouldRetry("x", 0, errCall).Retry)
	require.Equal(t, ReasonBudgetExhausted, pol.ShouldRetry("x", 0, errCall).Reason)

	clock.Advance(time.Minute)
	assert.True(t, pol.ShouldRetry("x", 0, errCall).Retry, "窗口到期后预算自动重置")
}

func TestResetBudget(t *testing.T) {
	pol := newTestPolicy(t, &Config{MaxAttempts: 10})
	pol.SetBudget("x", 1, time.Hour)

	require.True(t, pol.ShouldRetry("x", 0, errCall).Retry)
	require.False(t, pol.ShouldRetry("x", 0, errCall).Retry)

	pol.ResetBudget("x")
	assert.True(t, pol.ShouldRetry("x", 0, errCall).Retry)
}

func TestMarkIdempotentOnce(t *testing.T) {
	pol := newTestPolicy(t, &Config{})

	assert.True(t, pol.MarkIdempotent("order-123"), "首次标记返回 true")
	assert.False(t, pol.MarkIdempotent("order-123"), "重复标记返回 false")
	assert.True(t, pol.MarkIdempotent("order-456"))
}

func TestMarkIdempotentConcurrent(t *testing.T) {
	pol := newTestPolicy(t, &Config{})

	var wg sync.WaitGroup
	var firsts int64
	var mu sync.Mutex
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if pol.MarkIdempotent("order-123") {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), firsts, "并发标记同一键时只有一个调用者得到 true")
}
