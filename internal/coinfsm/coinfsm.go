// Package coinfsm implements the per-(profile,coin) lifecycle: idle ->
// pending -> open -> resolving -> resolved (terminal per trade, the coin
// then returns to idle). It is the core of the arbitrage engine (spec §4.3).
package coinfsm

import (
	"math"

	"github.com/google/uuid"

	"github.com/mreid/parity-arb/internal/fill"
	"github.com/mreid/parity-arb/internal/oracle"
	"github.com/mreid/parity-arb/internal/snapshot"
)

// State is the coin's lifecycle stage.
type State int

const (
	StateIdle State = iota
	StatePending
	StateOpen
	StateResolving
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOpen:
		return "open"
	case StateResolving:
		return "resolving"
	default:
		return "idle"
	}
}

// Config holds the per-profile x coin configuration from spec §6.
type Config struct {
	TradeAllowedTimeLeft float64
	TradeStopTimeLeft    *float64
	MinGap               float64
	MaxSpendTotal        float64
	MinSpendTotal        float64
	MaxSpread            *float64
	MinDepthValue        *float64
	MaxPriceStalenessSec *float64
	FillUsd              *float64

	DecisionLatencyMs int64
	CooldownMs        int64
}

// effectiveNotional is min(fillUsd, maxSpendTotal); fillUsd defaults to
// maxSpendTotal when unset.
func (c Config) effectiveNotional() float64 {
	if c.FillUsd != nil && *c.FillUsd < c.MaxSpendTotal {
		return *c.FillUsd
	}
	return c.MaxSpendTotal
}

// PendingOrder is a committed intent to open, awaiting decisionLatencyMs.
type PendingOrder struct {
	ID          uuid.UUID
	Direction   fill.Direction
	MarketKeyP  string
	MarketKeyK  string
	Estimate    fill.Estimate
	CreatedMs   int64
	DueMs       int64
}

// Position is a confirmed, open synthetic hedge. ID carries over from the
// PendingOrder it was confirmed from, so run-directory events and metrics
// can correlate an entry with its eventual resolution.
type Position struct {
	ID                uuid.UUID
	Direction         fill.Direction
	Estimate          fill.Estimate
	OpenedMs          int64
	MarketKeyP        string
	MarketKeyK        string
	MarketCloseMs     int64
	Units             float64
	SpendTotal        float64
	LockedThresholdP  float64
	LockedThresholdK  float64
}

// CoinState is the runtime state the engine keeps per (profile, coin).
type CoinState struct {
	State           State
	LastMarketKeyP  string
	LastMarketKeyK  string
	Pending         *PendingOrder
	Position        *Position
	LastDecisionMs  int64

	// CurrentView mirrors the most recent gap/selection for display; it is
	// updated on every tick on which both snapshots are present, regardless
	// of whether a transition occurred.
	CurrentView View
}

// View is the read-only per-tick projection used by market-view reporting
// (spec §4.4). It is not authoritative state — just the last computed
// numbers.
type View struct {
	EstimateUpNo         fill.Estimate
	EstimateDownYes      fill.Estimate
	HaveEstimates        bool
	SelectedDirection    fill.Direction
	HasSelectedDirection bool
	CurrentGap           float64
}

// EventKind tags what happened to a coin on one tick.
type EventKind int

const (
	EventNone EventKind = iota
	EventPendingCreated
	EventPendingCancelled
	EventPositionOpened
	EventPositionResolved
)

// Event is emitted by Evaluate for the engine to log and fold into
// summary/pnl state.
type Event struct {
	Kind      EventKind
	Direction fill.Direction
	Estimate  fill.Estimate // populated for EventPositionOpened
	Reason    string

	// Populated only for EventPositionResolved.
	Position *Position
	OutcomeP oracle.Outcome
	OutcomeK oracle.Outcome
	Forced   bool
}

// Evaluate runs one tick of the state machine for a single coin, following
// the seven numbered transitions of spec §4.3 in order. snapP/snapK may be
// nil when a venue has no data for this coin yet.
func Evaluate(cs *CoinState, cfg Config, snapP, snapK *snapshot.Snapshot, nowMs int64) []Event {
	var events []Event

	// 1. Market-key refresh.
	if snapP != nil && snapK != nil {
		changed := (cs.LastMarketKeyP != "" && cs.LastMarketKeyP != snapP.MarketKey) ||
			(cs.LastMarketKeyK != "" && cs.LastMarketKeyK != snapK.MarketKey)

		if changed && cs.Pending != nil {
			cs.Pending = nil
			cs.State = StateIdle
			events = append(events, Event{Kind: EventPendingCancelled, Reason: "market_key_changed"})
		}
		// A position survives a key roll: it settles against its own locked
		// market. New entries on this coin stay blocked while cs.Position != nil.

		cs.LastMarketKeyP = snapP.MarketKey
		cs.LastMarketKeyK = snapK.MarketKey
	}

	// 2. Resolve if Open and past close.
	if cs.State == StateOpen && cs.Position != nil && nowMs >= cs.Position.MarketCloseMs {
		cs.State = StateResolving
	}
	if cs.State == StateResolving && cs.Position != nil {
		if ev, resolved := tryResolve(cs.Position, snapP, snapK, nowMs); resolved {
			events = append(events, ev)
			cs.Position = nil
			cs.State = StateIdle
		}
	}

	// Refresh the display view every tick when both snapshots are present,
	// regardless of gating — estimates are pure and side-effect free.
	if snapP != nil && snapK != nil {
		notional := cfg.effectiveNotional()
		upNo := fill.Compute(fill.DirUpNo, *snapP, *snapK, notional)
		downYes := fill.Compute(fill.DirDownYes, *snapP, *snapK, notional)
		cs.CurrentView = View{EstimateUpNo: upNo, EstimateDownYes: downYes, HaveEstimates: true}
		if upNo.Gap >= downYes.Gap {
			cs.CurrentView.CurrentGap = upNo.Gap
		} else {
			cs.CurrentView.CurrentGap = downYes.Gap
		}
	}

	// 3. Entry gate (only if Idle, nothing pending or open, and no earlier
	// transition this tick: a cancel or resolution never re-enters in the
	// same tick).
	if cs.State == StateIdle && cs.Pending == nil && cs.Position == nil && len(events) == 0 {
		if gatePasses(cfg, snapP, snapK, nowMs, cs.LastDecisionMs) {
			notional := cfg.effectiveNotional()
			upNo := fill.Compute(fill.DirUpNo, *snapP, *snapK, notional)
			downYes := fill.Compute(fill.DirDownYes, *snapP, *snapK, notional)

			if dir, est, ok := selectDirection(upNo, downYes, cfg, snapP, snapK, nowMs); ok {
				cs.CurrentView.SelectedDirection = dir
				cs.CurrentView.HasSelectedDirection = true

				cs.Pending = &PendingOrder{
					ID:         uuid.New(),
					Direction:  dir,
					MarketKeyP: snapP.MarketKey,
					MarketKeyK: snapK.MarketKey,
					Estimate:   est,
					CreatedMs:  nowMs,
					DueMs:      nowMs + cfg.DecisionLatencyMs,
				}
				cs.State = StatePending
				events = append(events, Event{Kind: EventPendingCreated, Direction: dir})
			}
		}
	}

	// 6. Pending -> Open (or cancel) once the decision latency elapses, on a
	// later tick than the one that created the pending.
	if cs.State == StatePending && cs.Pending != nil && nowMs >= cs.Pending.DueMs && len(events) == 0 {
		pending := cs.Pending

		if snapP == nil || snapK == nil || snapP.MarketKey != pending.MarketKeyP || snapK.MarketKey != pending.MarketKeyK {
			cs.Pending = nil
			cs.State = StateIdle
			events = append(events, Event{Kind: EventPendingCancelled, Reason: "market_key_changed"})
		} else {
			notional := cfg.effectiveNotional()
			est := fill.Compute(pending.Direction, *snapP, *snapK, notional)

			if meetsThresholds(est, cfg, *snapP, *snapK, nowMs) {
				cs.Position = &Position{
					ID:               pending.ID,
					Direction:        pending.Direction,
					Estimate:         est,
					OpenedMs:         nowMs,
					MarketKeyP:       pending.MarketKeyP,
					MarketKeyK:       pending.MarketKeyK,
					MarketCloseMs:    snapP.MarketCloseTimeMs,
					Units:            est.UnitsP,
					SpendTotal:       est.SpendP + est.SpendK,
					LockedThresholdP: snapP.PriceToBeat,
					LockedThresholdK: snapK.PriceToBeat,
				}
				cs.Pending = nil
				cs.State = StateOpen
				cs.LastDecisionMs = nowMs
				events = append(events, Event{Kind: EventPositionOpened, Direction: est.Direction, Estimate: est})
			} else {
				cs.Pending = nil
				cs.State = StateIdle
				events = append(events, Event{Kind: EventPendingCancelled, Reason: "reestimate_failed"})
			}
		}
	}

	return events
}

// gatePasses implements spec §4.3 step 3.
func gatePasses(cfg Config, snapP, snapK *snapshot.Snapshot, nowMs int64, lastDecisionMs int64) bool {
	if snapP == nil || snapK == nil {
		return false
	}
	if snapP.DataStatus != snapshot.DataHealthy || snapK.DataStatus != snapshot.DataHealthy {
		return false
	}
	if snapP.TimeLeftSec > cfg.TradeAllowedTimeLeft || snapK.TimeLeftSec > cfg.TradeAllowedTimeLeft {
		return false
	}
	if cfg.TradeStopTimeLeft != nil {
		if snapP.TimeLeftSec <= *cfg.TradeStopTimeLeft || snapK.TimeLeftSec <= *cfg.TradeStopTimeLeft {
			return false
		}
	}
	if snapP.TimeLeftSec <= 0 || snapK.TimeLeftSec <= 0 {
		return false
	}
	if !snapP.HasValidThreshold() || !snapK.HasValidThreshold() {
		return false
	}
	if lastDecisionMs+cfg.CooldownMs > nowMs {
		return false
	}
	return true
}

// selectDirection implements spec §4.3 step 4: estimate both directions,
// pick the larger gap (tie-break upNo within 1e-9), and apply the
// remaining gate checks. A direction whose estimate has no usable book or
// best-ask data (fill.SourceUnavailable) is never eligible — its
// Gap/CombinedCost are meaningless zero-value placeholders, not a real
// opportunity.
func selectDirection(upNo, downYes fill.Estimate, cfg Config, snapP, snapK *snapshot.Snapshot, nowMs int64) (fill.Direction, fill.Estimate, bool) {
	upOK := upNo.Source != fill.SourceUnavailable
	downOK := downYes.Source != fill.SourceUnavailable

	var dir fill.Direction
	var est fill.Estimate

	switch {
	case !upOK && !downOK:
		return fill.DirUpNo, upNo, false
	case upOK && !downOK:
		dir, est = fill.DirUpNo, upNo
	case !upOK && downOK:
		dir, est = fill.DirDownYes, downYes
	case math.Abs(upNo.Gap-downYes.Gap) <= 1e-9:
		dir, est = fill.DirUpNo, upNo
	case upNo.Gap > downYes.Gap:
		dir, est = fill.DirUpNo, upNo
	default:
		dir, est = fill.DirDownYes, downYes
	}

	if !meetsThresholds(est, cfg, *snapP, *snapK, nowMs) {
		return dir, est, false
	}
	return dir, est, true
}

// meetsThresholds applies minGap / minSpendTotal and the optional
// maxSpread / minDepthValue / maxPriceStalenessSec checks shared by both
// the initial entry decision and the pending -> open re-estimate.
func meetsThresholds(est fill.Estimate, cfg Config, snapP, snapK snapshot.Snapshot, nowMs int64) bool {
	if est.Gap < cfg.MinGap {
		return false
	}
	if est.SpendP+est.SpendK < cfg.MinSpendTotal {
		return false
	}
	if cfg.MaxSpread != nil {
		if legSpread(snapP, est.Direction, true) > *cfg.MaxSpread || legSpread(snapK, est.Direction, false) > *cfg.MaxSpread {
			return false
		}
	}
	if cfg.MinDepthValue != nil {
		if legDepth(snapP, est.Direction, true) < *cfg.MinDepthValue || legDepth(snapK, est.Direction, false) < *cfg.MinDepthValue {
			return false
		}
	}
	if cfg.MaxPriceStalenessSec != nil {
		maxStaleMs := int64(*cfg.MaxPriceStalenessSec * 1000)
		if nowMs-snapP.CryptoPriceTimestamp > maxStaleMs || nowMs-snapK.CryptoPriceTimestamp > maxStaleMs {
			return false
		}
	}
	return true
}

func legToken(snap snapshot.Snapshot, dir fill.Direction, isVenueP bool) string {
	if isVenueP {
		if dir == fill.DirUpNo {
			return snap.UpTokenID
		}
		return snap.DownTokenID
	}
	if dir == fill.DirUpNo {
		return snap.DownTokenID
	}
	return snap.UpTokenID
}

func legSpread(snap snapshot.Snapshot, dir fill.Direction, isVenueP bool) float64 {
	tok := legToken(snap, dir, isVenueP)
	ask, askOK := snap.BestAsk[tok]
	bid, bidOK := snap.BestBid[tok]
	if !askOK || !bidOK {
		return 0
	}
	return ask - bid
}

func legDepth(snap snapshot.Snapshot, dir fill.Direction, isVenueP bool) float64 {
	tok := legToken(snap, dir, isVenueP)
	ob, ok := snap.Book(tok)
	if !ok {
		return 0
	}
	return ob.TotalAskValue
}

// tryResolve attempts normal resolution via the oracle, then applies the
// force-resolution ladder. Returns (event, true) once the position is
// terminally resolved (won or forced loss); (zero, false) if resolution is
// still pending more data.
func tryResolve(pos *Position, snapP, snapK *snapshot.Snapshot, nowMs int64) (Event, bool) {
	outcomeP, outcomeK := oracle.OutcomeUnknown, oracle.OutcomeUnknown
	if snapP != nil {
		outcomeP = oracle.Resolve(*snapP, pos.LockedThresholdP, pos.MarketCloseMs)
	}
	if snapK != nil {
		outcomeK = oracle.Resolve(*snapK, pos.LockedThresholdK, pos.MarketCloseMs)
	}

	if outcomeP != oracle.OutcomeUnknown && outcomeK != oracle.OutcomeUnknown {
		return Event{
			Kind: EventPositionResolved, Direction: pos.Direction, Position: pos,
			OutcomeP: outcomeP, OutcomeK: outcomeK, Forced: false,
		}, true
	}

	decision := oracle.ForceResolve(outcomeP, outcomeK, nowMs, pos.MarketCloseMs)
	if decision.ShouldForce {
		return Event{
			Kind: EventPositionResolved, Direction: pos.Direction, Position: pos,
			OutcomeP: decision.OutcomeP, OutcomeK: decision.OutcomeK, Forced: true,
		}, true
	}

	return Event{}, false
}
