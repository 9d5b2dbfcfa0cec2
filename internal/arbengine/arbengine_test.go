package arbengine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mreid/parity-arb/internal/coinfsm"
	"github.com/mreid/parity-arb/internal/metrics"
	"github.com/mreid/parity-arb/internal/obslog"
	"github.com/mreid/parity-arb/internal/snapshot"
)

func ptr[T any](v T) *T { return &v }

func newTestEngine(t *testing.T, coin string, cfg coinfsm.Config) *Engine {
	t.Helper()
	reg := prometheus.NewRegistry()
	mset := metrics.NewSet(reg)
	logger := obslog.New(zap.NewNop(), "test", 64, func() int64 { return 0 })
	return New("test-profile", []string{coin}, map[string]coinfsm.Config{coin: cfg}, logger, mset, nil, 0)
}

func defaultConfig() coinfsm.Config {
	return coinfsm.Config{
		TradeAllowedTimeLeft: 900,
		MinGap:               0.04,
		MaxSpendTotal:        500,
		MinSpendTotal:        0,
		FillUsd:              ptr(500.0),
	}
}

func snap(venue snapshot.Venue, marketKey string, closeMs int64, timeLeftSec float64, threshold float64, refSource snapshot.ReferenceSource, upAsks, downAsks []snapshot.PriceLevel) snapshot.Snapshot {
	return snapshot.Snapshot{
		Venue:             venue,
		MarketKey:         marketKey,
		MarketCloseTimeMs: closeMs,
		TimeLeftSec:       timeLeftSec,
		PriceToBeat:       threshold,
		ReferencePrice:    threshold,
		ReferenceSource:   refSource,
		DataStatus:        snapshot.DataHealthy,
		UpTokenID:         "up",
		DownTokenID:       "down",
		OrderBooks: map[string]snapshot.OrderBook{
			"up":   {Asks: upAsks},
			"down": {Asks: downAsks},
		},
	}
}

// Scenario 1: entry blocked by time budget.
func TestScenario_EntryBlockedByTimeBudget(t *testing.T) {
	cfg := defaultConfig()
	cfg.TradeAllowedTimeLeft = 750
	eng := newTestEngine(t, "BTC", cfg)

	snapP := snap(snapshot.VenueP, "P-1", 1_000_000, 800, 50000, snapshot.RefPriceToBeat,
		[]snapshot.PriceLevel{{Price: 0.40, Size: 500}}, nil)
	snapK := snap(snapshot.VenueK, "K-1", 1_000_000, 800, 50000, snapshot.RefPriceToBeat,
		nil, []snapshot.PriceLevel{{Price: 0.50, Size: 500}})

	eng.Evaluate(map[string]snapshot.Snapshot{"BTC": snapP}, map[string]snapshot.Snapshot{"BTC": snapK}, 0)

	views := eng.GetMarketViews()
	assert.Nil(t, views[0].PendingDirection)
	assert.Nil(t, views[0].Position)
	assert.Equal(t, 0, eng.GetSummary(0).TotalTrades)
}

// Scenario 2: successful upNo entry over two ticks.
func TestScenario_SuccessfulUpNoEntry(t *testing.T) {
	cfg := defaultConfig()
	eng := newTestEngine(t, "BTC", cfg)

	snapP := snap(snapshot.VenueP, "P-1", 1_000_000, 600, 50000, snapshot.RefPriceToBeat,
		[]snapshot.PriceLevel{{Price: 0.40, Size: 500}}, nil)
	snapK := snap(snapshot.VenueK, "K-1", 1_000_000, 600, 50000, snapshot.RefPriceToBeat,
		nil, []snapshot.PriceLevel{{Price: 0.50, Size: 500}})
	snapsP := map[string]snapshot.Snapshot{"BTC": snapP}
	snapsK := map[string]snapshot.Snapshot{"BTC": snapK}

	eng.Evaluate(snapsP, snapsK, 0) // tick 1: creates pending (decisionLatencyMs=0)
	eng.Evaluate(snapsP, snapsK, 0) // tick 2: confirms position

	views := eng.GetMarketViews()
	assert.NotNil(t, views[0].Position)
	assert.Equal(t, 1, eng.GetSummary(0).TotalTrades)
}

// Scenario 3: pending canceled by market roll.
func TestScenario_PendingCanceledByMarketRoll(t *testing.T) {
	cfg := defaultConfig()
	cfg.DecisionLatencyMs = 100
	eng := newTestEngine(t, "BTC", cfg)

	snapP := snap(snapshot.VenueP, "P-1", 1_000_000, 600, 50000, snapshot.RefPriceToBeat,
		[]snapshot.PriceLevel{{Price: 0.40, Size: 500}}, nil)
	snapK := snap(snapshot.VenueK, "K-1", 1_000_000, 600, 50000, snapshot.RefPriceToBeat,
		nil, []snapshot.PriceLevel{{Price: 0.50, Size: 500}})

	eng.Evaluate(map[string]snapshot.Snapshot{"BTC": snapP}, map[string]snapshot.Snapshot{"BTC": snapK}, 0)

	views := eng.GetMarketViews()
	assert.NotNil(t, views[0].PendingDirection)

	rolledK := snap(snapshot.VenueK, "KXBTC15M-DIFFERENT", 1_000_000, 599, 50000, snapshot.RefPriceToBeat,
		nil, []snapshot.PriceLevel{{Price: 0.50, Size: 500}})
	eng.Evaluate(map[string]snapshot.Snapshot{"BTC": snapP}, map[string]snapshot.Snapshot{"BTC": rolledK}, 101)

	views = eng.GetMarketViews()
	assert.Nil(t, views[0].PendingDirection)
	assert.Nil(t, views[0].Position)
	assert.Equal(t, 0, eng.GetSummary(101).TotalTrades)
}

// Scenario 4: force-resolution with no settlement data.
func TestScenario_ForceResolutionNoData(t *testing.T) {
	cfg := defaultConfig()
	eng := newTestEngine(t, "BTC", cfg)

	closeMs := int64(1000)
	snapP := snap(snapshot.VenueP, "P-1", closeMs, 600, 50000, snapshot.RefPriceToBeat,
		[]snapshot.PriceLevel{{Price: 0.40, Size: 500}}, nil)
	snapK := snap(snapshot.VenueK, "K-1", closeMs, 600, 50000, snapshot.RefPriceToBeat,
		nil, []snapshot.PriceLevel{{Price: 0.50, Size: 500}})
	snapsP := map[string]snapshot.Snapshot{"BTC": snapP}
	snapsK := map[string]snapshot.Snapshot{"BTC": snapK}

	eng.Evaluate(snapsP, snapsK, 0)
	eng.Evaluate(snapsP, snapsK, 0)
	assert.NotNil(t, eng.GetMarketViews()[0].Position)

	empty := map[string]snapshot.Snapshot{}
	nowMs := int64(0)
	for i := 0; i < 5; i++ {
		nowMs = 700_000 + int64(i)
		eng.Evaluate(empty, empty, nowMs)
	}

	views := eng.GetMarketViews()
	assert.Nil(t, views[0].Position)
	summary := eng.GetSummary(nowMs)
	assert.Equal(t, 0, summary.Wins)
	assert.Equal(t, 1, summary.Losses)
}

// Scenario 5: post-force re-entry on a fresh market.
func TestScenario_PostForceReentry(t *testing.T) {
	cfg := defaultConfig()
	eng := newTestEngine(t, "BTC", cfg)

	closeMs := int64(1000)
	snapP := snap(snapshot.VenueP, "P-1", closeMs, 600, 50000, snapshot.RefPriceToBeat,
		[]snapshot.PriceLevel{{Price: 0.40, Size: 500}}, nil)
	snapK := snap(snapshot.VenueK, "K-1", closeMs, 600, 50000, snapshot.RefPriceToBeat,
		nil, []snapshot.PriceLevel{{Price: 0.50, Size: 500}})
	snapsP := map[string]snapshot.Snapshot{"BTC": snapP}
	snapsK := map[string]snapshot.Snapshot{"BTC": snapK}

	eng.Evaluate(snapsP, snapsK, 0)
	eng.Evaluate(snapsP, snapsK, 0)

	empty := map[string]snapshot.Snapshot{}
	nowMs := int64(0)
	for i := 0; i < 5; i++ {
		nowMs = 700_000 + int64(i)
		eng.Evaluate(empty, empty, nowMs)
	}
	assert.Equal(t, 1, eng.GetSummary(nowMs).TotalTrades)

	newCloseMs := nowMs + 1_000_000
	freshP := snap(snapshot.VenueP, "P-NEW", newCloseMs, 600, 51000, snapshot.RefPriceToBeat,
		[]snapshot.PriceLevel{{Price: 0.40, Size: 500}}, nil)
	freshK := snap(snapshot.VenueK, "KXBTC15M-NEW", newCloseMs, 600, 51000, snapshot.RefPriceToBeat,
		nil, []snapshot.PriceLevel{{Price: 0.50, Size: 500}})
	freshSnapsP := map[string]snapshot.Snapshot{"BTC": freshP}
	freshSnapsK := map[string]snapshot.Snapshot{"BTC": freshK}

	eng.Evaluate(freshSnapsP, freshSnapsK, nowMs+1)
	eng.Evaluate(freshSnapsP, freshSnapsK, nowMs+2)

	assert.Equal(t, 2, eng.GetSummary(nowMs+2).TotalTrades)
}

// Scenario 6: missing threshold blocks entry.
func TestScenario_MissingThresholdBlocksEntry(t *testing.T) {
	cfg := defaultConfig()
	eng := newTestEngine(t, "BTC", cfg)

	snapP := snap(snapshot.VenueP, "P-1", 1_000_000, 600, 0, snapshot.RefMissing,
		[]snapshot.PriceLevel{{Price: 0.40, Size: 500}}, nil)
	snapK := snap(snapshot.VenueK, "K-1", 1_000_000, 600, 50000, snapshot.RefPriceToBeat,
		nil, []snapshot.PriceLevel{{Price: 0.50, Size: 500}})

	eng.Evaluate(map[string]snapshot.Snapshot{"BTC": snapP}, map[string]snapshot.Snapshot{"BTC": snapK}, 0)

	views := eng.GetMarketViews()
	assert.Nil(t, views[0].PendingDirection)
	assert.Equal(t, 0, eng.GetSummary(0).TotalTrades)
}

// Invariant: at most one of {pending, position} is non-nil per coin.
func TestInvariant_AtMostOnePendingOrPosition(t *testing.T) {
	cfg := defaultConfig()
	eng := newTestEngine(t, "BTC", cfg)

	snapP := snap(snapshot.VenueP, "P-1", 1_000_000, 600, 50000, snapshot.RefPriceToBeat,
		[]snapshot.PriceLevel{{Price: 0.40, Size: 500}}, nil)
	snapK := snap(snapshot.VenueK, "K-1", 1_000_000, 600, 50000, snapshot.RefPriceToBeat,
		nil, []snapshot.PriceLevel{{Price: 0.50, Size: 500}})
	snapsP := map[string]snapshot.Snapshot{"BTC": snapP}
	snapsK := map[string]snapshot.Snapshot{"BTC": snapK}

	for tick := 0; tick < 3; tick++ {
		eng.Evaluate(snapsP, snapsK, 0)
		v := eng.GetMarketViews()[0]
		assert.False(t, v.PendingDirection != nil && v.Position != nil)
	}
}

// Idempotence: identical snapshots + nowMs produce no additional trades on
// a repeated call once a position is already open.
func TestIdempotence_RepeatedEvaluateSameTick(t *testing.T) {
	cfg := defaultConfig()
	eng := newTestEngine(t, "BTC", cfg)

	snapP := snap(snapshot.VenueP, "P-1", 1_000_000, 600, 50000, snapshot.RefPriceToBeat,
		[]snapshot.PriceLevel{{Price: 0.40, Size: 500}}, nil)
	snapK := snap(snapshot.VenueK, "K-1", 1_000_000, 600, 50000, snapshot.RefPriceToBeat,
		nil, []snapshot.PriceLevel{{Price: 0.50, Size: 500}})
	snapsP := map[string]snapshot.Snapshot{"BTC": snapP}
	snapsK := map[string]snapshot.Snapshot{"BTC": snapK}

	eng.Evaluate(snapsP, snapsK, 0)
	eng.Evaluate(snapsP, snapsK, 0)
	before := eng.GetSummary(0).TotalTrades

	eng.Evaluate(snapsP, snapsK, 0)
	after := eng.GetSummary(0).TotalTrades

	assert.Equal(t, before, after)
}
