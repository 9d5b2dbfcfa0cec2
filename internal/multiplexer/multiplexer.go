// Package multiplexer drives N per-profile arbitrage engines from a shared
// pair of venue suppliers on a fixed evaluation cadence, plus a slower
// render cadence for the dashboard (C6).
package multiplexer

import (
	"sync"
	"time"

	"github.com/mreid/parity-arb/internal/arbengine"
	"github.com/mreid/parity-arb/internal/supplier"
)

const (
	// DefaultEvalIntervalMs is spec §4.6/§6's default evaluation cadence.
	DefaultEvalIntervalMs = 10
	// MinEvalIntervalMs is the clamp floor for evalIntervalMs.
	MinEvalIntervalMs = 1
	// RenderIntervalMs is the fixed dashboard render cadence.
	RenderIntervalMs = 250
)

// Clock supplies the monotonic wall time in epoch milliseconds. Production
// wiring uses a thin wrapper over time.Now(); tests inject a fake.
type Clock func() int64

// RenderView is what one render tick hands to the dashboard sink.
type RenderView struct {
	Engine  string
	Summary arbengine.Summary
	Markets []arbengine.MarketView
}

// RenderFunc receives the latest render snapshot across all engines. It
// must not block — spec §5 requires the render path to stay non-suspending.
type RenderFunc func(nowMs int64, views []RenderView)

// Multiplexer owns the engine list, the two venue suppliers, and both
// timers.
type Multiplexer struct {
	engines       []*arbengine.Engine
	supplierP     supplier.Supplier
	supplierK     supplier.Supplier
	evalInterval  time.Duration
	now           Clock
	render        RenderFunc

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Config configures a Multiplexer. An EvalIntervalMs below
// MinEvalIntervalMs (including zero, i.e. unset) falls back to
// DefaultEvalIntervalMs.
type Config struct {
	EvalIntervalMs int
	Now            Clock
	Render         RenderFunc
}

// New builds a Multiplexer over engines (evaluated in registration order)
// and the two venue suppliers.
func New(engines []*arbengine.Engine, supplierP, supplierK supplier.Supplier, cfg Config) *Multiplexer {
	interval := cfg.EvalIntervalMs
	if interval < MinEvalIntervalMs {
		interval = DefaultEvalIntervalMs
	}

	now := cfg.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}

	render := cfg.Render
	if render == nil {
		render = func(int64, []RenderView) {}
	}

	return &Multiplexer{
		engines:      engines,
		supplierP:    supplierP,
		supplierK:    supplierK,
		evalInterval: time.Duration(interval) * time.Millisecond,
		now:          now,
		render:       render,
		stopCh:       make(chan struct{}),
	}
}

// Run starts both timers and blocks until Stop is called. Render and
// evaluation run on independent tickers in separate goroutines so a slow
// render pass never delays evaluation.
func (m *Multiplexer) Run() {
	m.wg.Add(2)
	go m.evalLoop()
	go m.renderLoop()
	m.wg.Wait()
}

func (m *Multiplexer) evalLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.evalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			nowMs := m.now()
			snapsP := m.supplierP.GetSnapshots()
			snapsK := m.supplierK.GetSnapshots()
			for _, eng := range m.engines {
				eng.Evaluate(snapsP, snapsK, nowMs)
			}
		}
	}
}

func (m *Multiplexer) renderLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(RenderIntervalMs * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			nowMs := m.now()
			views := make([]RenderView, 0, len(m.engines))
			for _, eng := range m.engines {
				views = append(views, RenderView{
					Engine:  eng.GetName(),
					Summary: eng.GetSummary(nowMs),
					Markets: eng.GetMarketViews(),
				})
			}
			m.render(nowMs, views)
		}
	}
}

// Stop halts both timers. The in-flight evaluate call, if any, is allowed
// to complete before the goroutine exits. Each engine emits a final
// summary log, then suppliers are stopped.
func (m *Multiplexer) Stop() {
	close(m.stopCh)
	m.wg.Wait()

	nowMs := m.now()
	for _, eng := range m.engines {
		eng.LogFinalSummary(nowMs)
	}

	m.supplierP.Stop()
	m.supplierK.Stop()
}
