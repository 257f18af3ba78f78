package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinTrade/internal/domain/models"
	domrepo "FinTrade/internal/domain/repository"
)

// Proc is the minimal downstream interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, snap *models.CycleSnapshot) error
}

// ProcFunc adapts a function to the Proc interface.
type ProcFunc func(ctx context.Context, snap *models.CycleSnapshot) error

func (f ProcFunc) Process(ctx context.Context, snap *models.CycleSnapshot) error {
	return f(ctx, snap)
}

// Fanout forwards a snapshot to every downstream in order and reports the
// first error after all downstreams have seen the snapshot.
func Fanout(procs ...Proc) Proc {
	return ProcFunc(func(ctx context.Context, snap *models.CycleSnapshot) error {
		var first error
		for _, p := range procs {
			if err := p.Process(ctx, snap); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}

// SnapshotPipeline sits between the trading engine and the state
// distribution backends. It validates, throttles per symbol, optionally
// transforms, and buffers snapshots when downstream is unavailable.
type SnapshotPipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.CycleSnapshot
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted time
	// simple format transform hook (optional)
	transform func(*models.CycleSnapshot) *models.CycleSnapshot
	// metrics
	bufDepthGauge func(int)
	throttleWarn  func(string)
}

type PipelineOption func(*SnapshotPipeline)

// WithMaxRPS sets the max snapshots per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *SnapshotPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *SnapshotPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a transformation hook applied before distribution.
func WithTransform(fn func(*models.CycleSnapshot) *models.CycleSnapshot) PipelineOption {
	return func(p *SnapshotPipeline) { p.transform = fn }
}

// NewSnapshotPipeline creates a new pipeline.
func NewSnapshotPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *SnapshotPipeline {
	p := &SnapshotPipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20,   // default throttle per symbol
		bufSize:  1000, // default buffer
		bufCh:    make(chan *models.CycleSnapshot, 1000),
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.CycleSnapshot, p.bufSize)
	}
	p.bufDepthGauge = func(n int) { p.metrics.RecordLatency("snapshot_buffer_depth", float64(n)) }
	p.throttleWarn = func(sym string) { p.metrics.RecordError("snapshot_throttle_" + sym) }
	return p
}

// Start launches background flushing of buffered snapshots.
func (p *SnapshotPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case snap := <-p.bufCh:
				if snap == nil {
					continue
				}
				if err := p.proc.Process(ctx, snap); err != nil {
					// exponential backoff with cap
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("snapshot_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- snap:
					default:
						p.metrics.RecordError("snapshot_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *SnapshotPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards a snapshot downstream,
// buffering on errors. The engine cycle treats a non-nil error as a
// distribution problem, never as a reason to stop trading.
func (p *SnapshotPipeline) Process(ctx context.Context, snap *models.CycleSnapshot) error {
	start := time.Now()
	if err := validateSnapshot(snap); err != nil {
		p.metrics.RecordError("snapshot_validate")
		return err
	}
	if p.transform != nil {
		snap = p.transform(snap)
		if err := validateSnapshot(snap); err != nil {
			p.metrics.RecordError("snapshot_transform_invalid")
			return err
		}
	}
	if !p.allow(snap.Symbol, start) {
		// throttled; record and drop silently
		p.metrics.RecordError("snapshot_throttle")
		if p.throttleWarn != nil {
			p.throttleWarn(snap.Symbol)
		}
		return nil
	}

	if err := p.proc.Process(ctx, snap); err != nil {
		p.metrics.RecordError("snapshot_process")
		p.buffer(snap)
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("snapshot_process", time.Since(start).Seconds())
	return nil
}

// buffer queues snap for the background flusher. Snapshots are state,
// not events: a full buffer evicts its oldest entry so the newest
// always survives.
func (p *SnapshotPipeline) buffer(snap *models.CycleSnapshot) {
	select {
	case p.bufCh <- snap:
	default:
		select {
		case <-p.bufCh:
			p.metrics.RecordError("snapshot_buffer_evict")
		default:
		}
		select {
		case p.bufCh <- snap:
		default:
			// only reachable when the flusher requeued into the freed slot
			p.metrics.RecordError("snapshot_buffer_full")
		}
	}
	if p.bufDepthGauge != nil {
		p.bufDepthGauge(len(p.bufCh))
	}
}

func validateSnapshot(snap *models.CycleSnapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot nil")
	}
	if snap.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if snap.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if snap.Price < 0 || snap.Cycle < 0 {
		return fmt.Errorf("negative price/cycle")
	}
	return nil
}

func (p *SnapshotPipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	// simple throttle: at most maxRPS per second per symbol
	last := p.lastSeen[symbol]
	if last.IsZero() {
		p.lastSeen[symbol] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
