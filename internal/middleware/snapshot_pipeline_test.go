package middleware

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinTrade/internal/domain/models"
)

type stubMetrics struct{}

func (stubMetrics) RecordCycle(string, float64)                        {}
func (stubMetrics) RecordDecision(string, string)                      {}
func (stubMetrics) RecordOrder(string, string)                         {}
func (stubMetrics) RecordSignal(string, string)                        {}
func (stubMetrics) RecordProducerError(string)                         {}
func (stubMetrics) RecordProducerStatus(string, models.ProducerStatus) {}
func (stubMetrics) RecordPosition(string, float64, int)                {}
func (stubMetrics) RecordLastPrice(string, float64)                    {}
func (stubMetrics) RecordEventSent(string, string)                     {}
func (stubMetrics) RecordError(string)                                 {}
func (stubMetrics) RecordLatency(string, float64)                      {}

// captureProc records forwarded snapshots and fails on demand.
type captureProc struct {
	mu   sync.Mutex
	fail bool
	got  []*models.CycleSnapshot
}

func (c *captureProc) Process(_ context.Context, snap *models.CycleSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return fmt.Errorf("downstream unavailable")
	}
	c.got = append(c.got, snap)
	return nil
}

func (c *captureProc) setFail(v bool) {
	c.mu.Lock()
	c.fail = v
	c.mu.Unlock()
}

func (c *captureProc) cycles() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, 0, len(c.got))
	for _, s := range c.got {
		out = append(out, s.Cycle)
	}
	return out
}

func snap(symbol string, cycle int64) *models.CycleSnapshot {
	return &models.CycleSnapshot{
		Timestamp: time.Now().UTC(),
		Symbol:    symbol,
		Cycle:     cycle,
		Action:    models.Hold,
		Price:     100,
	}
}

func TestPipelineRejectsInvalidSnapshots(t *testing.T) {
	down := &captureProc{}
	p := NewSnapshotPipeline(down, stubMetrics{})

	require.Error(t, p.Process(context.Background(), nil))
	require.Error(t, p.Process(context.Background(), &models.CycleSnapshot{Timestamp: time.Now()}))
	require.Error(t, p.Process(context.Background(), &models.CycleSnapshot{Symbol: "BTC/USDT"}))
	assert.Empty(t, down.cycles())
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	down := &captureProc{}
	p := NewSnapshotPipeline(down, stubMetrics{}, WithMaxRPS(1))

	require.NoError(t, p.Process(context.Background(), snap("BTC/USDT", 1)))
	// Same symbol inside the rate window: dropped silently, not an error.
	require.NoError(t, p.Process(context.Background(), snap("BTC/USDT", 2)))
	// Another symbol has its own budget.
	require.NoError(t, p.Process(context.Background(), snap("ETH/USDT", 3)))

	assert.Equal(t, []int64{1, 3}, down.cycles())
}

func TestPipelineTransformRunsBeforeDistribution(t *testing.T) {
	down := &captureProc{}
	p := NewSnapshotPipeline(down, stubMetrics{}, WithTransform(func(s *models.CycleSnapshot) *models.CycleSnapshot {
		c := *s
		c.Reasoning = "redacted"
		return &c
	}))

	require.NoError(t, p.Process(context.Background(), snap("BTC/USDT", 1)))
	require.Len(t, down.got, 1)
	assert.Equal(t, "redacted", down.got[0].Reasoning)
}

func TestPipelineOverflowEvictsOldest(t *testing.T) {
	down := &captureProc{fail: true}
	p := NewSnapshotPipeline(down, stubMetrics{}, WithBufferSize(2))

	// Distinct symbols so the per-symbol throttle stays out of the way.
	for i := int64(1); i <= 3; i++ {
		err := p.Process(context.Background(), snap(fmt.Sprintf("SYM%d/USDT", i), i))
		require.Error(t, err)
	}

	// Buffer held 1 and 2; the third arrival evicted 1.
	down.setFail(false)
	p.Start(context.Background())
	t.Cleanup(p.Stop)

	require.Eventually(t, func() bool {
		return len(down.cycles()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{2, 3}, down.cycles())
}

func TestPipelineFlushesBufferWhenDownstreamRecovers(t *testing.T) {
	down := &captureProc{fail: true}
	p := NewSnapshotPipeline(down, stubMetrics{}, WithBufferSize(10))

	require.Error(t, p.Process(context.Background(), snap("BTC/USDT", 7)))

	down.setFail(false)
	p.Start(context.Background())
	t.Cleanup(p.Stop)

	require.Eventually(t, func() bool {
		return len(down.cycles()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{7}, down.cycles())
}

func TestFanoutDeliversToAllSinksAndReportsFirstError(t *testing.T) {
	bad := ProcFunc(func(context.Context, *models.CycleSnapshot) error {
		return fmt.Errorf("sink down")
	})
	good := &captureProc{}

	err := Fanout(bad, good).Process(context.Background(), snap("BTC/USDT", 1))
	require.EqualError(t, err, "sink down")
	assert.Equal(t, []int64{1}, good.cycles())
}
