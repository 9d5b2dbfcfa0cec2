// Package arbengine implements the per-profile Arbitrage Engine (C5): it
// fans a tick out across the profile's configured coins, dispatching each
// to the coin state machine, isolating per-coin panics, and owning the
// profile's summary/PnL projections.
package arbengine

import (
	"fmt"

	"github.com/mreid/parity-arb/internal/coinfsm"
	"github.com/mreid/parity-arb/internal/fill"
	"github.com/mreid/parity-arb/internal/metrics"
	"github.com/mreid/parity-arb/internal/obslog"
	"github.com/mreid/parity-arb/internal/oracle"
	"github.com/mreid/parity-arb/internal/snapshot"
)

// Summary is the engine-wide projection (spec §3's Engine Summary).
type Summary struct {
	TotalTrades int
	Wins        int
	Losses      int
	TotalProfit float64
	RuntimeSec  float64
}

// PnlEntry is one bounded history record, appended on every resolution.
type PnlEntry struct {
	TsMs   int64
	Coin   string
	Profit float64
	Won    bool
	Forced bool
}

// MarketView is the read-only per-coin projection for the dashboard.
type MarketView struct {
	Coin                string
	DataStatus          snapshot.DataStatus
	PendingDirection     *fill.Direction
	SelectedDirection    *fill.Direction
	Position             *coinfsm.Position
	EstimateUpNo         fill.Estimate
	EstimateDownYes      fill.Estimate
	HaveEstimates        bool
	CurrentGap           float64
	LastDecisionMs       int64
}

const pnlHistoryCap = 500

// EventSink persists the run-scoped trade events a run directory records
// (spec §6's "Persisted state" artifacts). Optional: a nil sink means the
// engine's trades are observable only via GetSummary/GetPnlHistory/logs,
// which is what every test in this repo uses.
type EventSink interface {
	Entry(profile, coin, direction string, gap, units, spendTotal float64)
	Resolution(profile, coin, outcomeP, outcomeK string, profit float64, won bool)
	ForceResolution(profile, coin string, elapsedMs int64)
}

// Engine is one profile's arbitrage engine: a flat map of coin to runtime
// state, with no inter-coin coupling beyond the shared tick.
type Engine struct {
	name       string
	coins      []string // evaluation order, per spec §5 "coins processed in the order given by configuration"
	configs    map[string]coinfsm.Config
	states     map[string]*coinfsm.CoinState
	logger     obslog.Logger
	metrics    *metrics.Set
	sink       EventSink
	startedMs  int64

	wins        int
	losses      int
	totalProfit float64
	pnlHistory  []PnlEntry
}

// New builds an Engine for one profile. coins fixes the evaluation order;
// configs must have an entry for every coin. sink may be nil.
func New(name string, coins []string, configs map[string]coinfsm.Config, logger obslog.Logger, m *metrics.Set, sink EventSink, startedMs int64) *Engine {
	states := make(map[string]*coinfsm.CoinState, len(coins))
	for _, c := range coins {
		states[c] = &coinfsm.CoinState{}
	}
	return &Engine{
		name:      name,
		coins:     coins,
		configs:   configs,
		states:    states,
		logger:    logger,
		metrics:   m,
		sink:      sink,
		startedMs: startedMs,
	}
}

// Evaluate runs one tick: every configured coin is dispatched to the state
// machine in configuration order. A panic or error from one coin's handling
// is caught and logged without affecting the rest of the tick.
func (e *Engine) Evaluate(snapsP, snapsK map[string]snapshot.Snapshot, nowMs int64) {
	for _, coin := range e.coins {
		e.evaluateCoin(coin, snapsP, snapsK, nowMs)
	}
}

func (e *Engine) evaluateCoin(coin string, snapsP, snapsK map[string]snapshot.Snapshot, nowMs int64) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Log(fmt.Sprintf("coin %s: panic during evaluate: %v", coin, r), obslog.LevelError)
		}
	}()

	cfg := e.configs[coin]
	cs := e.states[coin]

	var snapP, snapK *snapshot.Snapshot
	if sp, ok := snapsP[coin]; ok {
		snapP = &sp
	}
	if sk, ok := snapsK[coin]; ok {
		snapK = &sk
	}

	if cs.CurrentView.HaveEstimates {
		e.metrics.OpportunitiesEvaluated.WithLabelValues(e.name, coin).Inc()
	}

	events := coinfsm.Evaluate(cs, cfg, snapP, snapK, nowMs)

	if cs.CurrentView.HaveEstimates {
		e.metrics.GapObserved.WithLabelValues(e.name, coin).Observe(cs.CurrentView.CurrentGap)
	}

	for _, ev := range events {
		e.handleEvent(coin, ev, nowMs)
	}
}

func (e *Engine) handleEvent(coin string, ev coinfsm.Event, nowMs int64) {
	switch ev.Kind {
	case coinfsm.EventPendingCreated:
		e.logger.Log(fmt.Sprintf("coin %s: pending %s created", coin, ev.Direction), obslog.LevelInfo)

	case coinfsm.EventPendingCancelled:
		e.logger.Log(fmt.Sprintf("coin %s: pending cancelled (%s)", coin, ev.Reason), obslog.LevelWarn)

	case coinfsm.EventPositionOpened:
		e.logger.Log(fmt.Sprintf("coin %s: position opened, direction=%s", coin, ev.Direction), obslog.LevelInfo)
		e.metrics.TradesOpened.WithLabelValues(e.name, coin, ev.Direction.String()).Inc()
		if e.sink != nil {
			e.sink.Entry(e.name, coin, ev.Direction.String(), ev.Estimate.Gap, ev.Estimate.UnitsP, ev.Estimate.SpendP+ev.Estimate.SpendK)
		}

	case coinfsm.EventPositionResolved:
		e.resolvePosition(coin, ev, nowMs)
	}
}

func (e *Engine) resolvePosition(coin string, ev coinfsm.Event, nowMs int64) {
	pos := ev.Position
	won := ev.OutcomeP != oracle.OutcomeUnknown && ev.OutcomeK != oracle.OutcomeUnknown

	var profit float64
	if won {
		profit = pos.Units * (1 - pos.Estimate.CombinedCost)
	} else {
		profit = -pos.SpendTotal
	}

	e.totalProfit += profit
	outcomeLabel := "win"
	if won {
		e.wins++
	} else {
		e.losses++
		outcomeLabel = "loss"
	}

	e.pnlHistory = append(e.pnlHistory, PnlEntry{TsMs: nowMs, Coin: coin, Profit: profit, Won: won, Forced: ev.Forced})
	if len(e.pnlHistory) > pnlHistoryCap {
		e.pnlHistory = e.pnlHistory[len(e.pnlHistory)-pnlHistoryCap:]
	}

	e.metrics.TradesResolved.WithLabelValues(e.name, coin, outcomeLabel).Inc()
	if ev.Forced {
		e.metrics.ForceResolutions.WithLabelValues(e.name, coin).Inc()
	}

	if e.sink != nil {
		e.sink.Resolution(e.name, coin, ev.OutcomeP.String(), ev.OutcomeK.String(), profit, won)
		if ev.Forced {
			e.sink.ForceResolution(e.name, coin, nowMs-pos.MarketCloseMs)
		}
	}

	level := obslog.LevelInfo
	if !won {
		level = obslog.LevelWarn
	}
	e.logger.Log(fmt.Sprintf("coin %s: resolved outcomeP=%s outcomeK=%s forced=%v profit=%.4f",
		coin, ev.OutcomeP, ev.OutcomeK, ev.Forced, profit), level)
}

// GetSummary returns the engine's cumulative projection. TotalTrades is
// derived, not accumulated, to hold spec §8's invariant
// totalTrades == wins + losses + openPositions at every tick, including
// while a position is still open and long before its resolution.
func (e *Engine) GetSummary(nowMs int64) Summary {
	return Summary{
		TotalTrades: e.wins + e.losses + e.openPositions(),
		Wins:        e.wins,
		Losses:      e.losses,
		TotalProfit: e.totalProfit,
		RuntimeSec:  float64(nowMs-e.startedMs) / 1000,
	}
}

// openPositions counts coins currently holding an open (unresolved)
// position, in either StateOpen or StateResolving.
func (e *Engine) openPositions() int {
	n := 0
	for _, cs := range e.states {
		if cs.Position != nil {
			n++
		}
	}
	return n
}

// GetMarketViews returns one projection per coin, in configuration order.
func (e *Engine) GetMarketViews() []MarketView {
	views := make([]MarketView, 0, len(e.coins))
	for _, coin := range e.coins {
		cs := e.states[coin]
		v := MarketView{
			Coin:           coin,
			EstimateUpNo:   cs.CurrentView.EstimateUpNo,
			EstimateDownYes: cs.CurrentView.EstimateDownYes,
			HaveEstimates:  cs.CurrentView.HaveEstimates,
			CurrentGap:     cs.CurrentView.CurrentGap,
			LastDecisionMs: cs.LastDecisionMs,
			Position:       cs.Position,
		}
		if cs.Pending != nil {
			d := cs.Pending.Direction
			v.PendingDirection = &d
		}
		if cs.CurrentView.HasSelectedDirection {
			d := cs.CurrentView.SelectedDirection
			v.SelectedDirection = &d
		}
		views = append(views, v)
	}
	return views
}

// GetLogs returns the engine logger's bounded ring-buffer contents.
func (e *Engine) GetLogs() []obslog.Entry { return e.logger.Logs() }

// GetPnlHistory returns the bounded PnL history, oldest first.
func (e *Engine) GetPnlHistory() []PnlEntry { return e.pnlHistory }

// GetName returns the engine's profile name.
func (e *Engine) GetName() string { return e.name }

// LogFinalSummary emits the shutdown summary line required by spec §5.
func (e *Engine) LogFinalSummary(nowMs int64) {
	s := e.GetSummary(nowMs)
	e.logger.Log(fmt.Sprintf("final summary: trades=%d wins=%d losses=%d totalProfit=%.4f runtimeSec=%.1f",
		s.TotalTrades, s.Wins, s.Losses, s.TotalProfit, s.RuntimeSec), obslog.LevelInfo)
}
