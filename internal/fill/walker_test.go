package fill

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mreid/parity-arb/internal/snapshot"
)

func TestWalk_ExactFill(t *testing.T) {
	side := []snapshot.PriceLevel{{Price: 0.40, Size: 500}}
	r := Walk(side, 200, 0, false)

	assert.Equal(t, SourceOrderbook, r.Source)
	assert.InDelta(t, 500.0, r.Units, 1e-9)
	assert.InDelta(t, 200.0, r.Spend, 1e-9)
	assert.InDelta(t, 0.40, r.EffectivePrice, 1e-9)
	assert.Zero(t, r.Shortfall)
}

func TestWalk_FractionalSlice(t *testing.T) {
	side := []snapshot.PriceLevel{{Price: 0.50, Size: 100}}
	r := Walk(side, 30, 0, false)

	assert.Equal(t, SourceOrderbook, r.Source)
	assert.InDelta(t, 60.0, r.Units, 1e-9) // 30/0.5
	assert.InDelta(t, 30.0, r.Spend, 1e-9)
	assert.Zero(t, r.Shortfall)
}

func TestWalk_MultiLevel(t *testing.T) {
	side := []snapshot.PriceLevel{
		{Price: 0.30, Size: 100}, // $30
		{Price: 0.40, Size: 100}, // $40
	}
	r := Walk(side, 50, 0, false)

	assert.Equal(t, SourceOrderbook, r.Source)
	assert.InDelta(t, 50.0, r.Spend, 1e-9)
	// 100 units at 0.30 ($30) + 50 units at 0.40 ($20) = 150 units, $50
	assert.InDelta(t, 150.0, r.Units, 1e-9)
}

func TestWalk_ShortfallWhenBookExhausted(t *testing.T) {
	side := []snapshot.PriceLevel{{Price: 0.40, Size: 10}} // $4 of liquidity
	r := Walk(side, 100, 0, false)

	assert.Equal(t, SourceOrderbook, r.Source)
	assert.InDelta(t, 4.0, r.Spend, 1e-9)
	assert.InDelta(t, 96.0, r.Shortfall, 1e-9)
}

func TestWalk_SkipsInvalidLevels(t *testing.T) {
	side := []snapshot.PriceLevel{
		{Price: 0, Size: 100},   // price <= 0, skipped
		{Price: 1.0, Size: 100}, // price >= 1, skipped
		{Price: 0.5, Size: 0},   // size <= 0, skipped
		{Price: 0.5, Size: 20},  // only valid level
	}
	r := Walk(side, 5, 0, false)

	assert.Equal(t, SourceOrderbook, r.Source)
	assert.InDelta(t, 5.0, r.Spend, 1e-9)
	assert.InDelta(t, 10.0, r.Units, 1e-9)
}

func TestWalk_EmptyBookFallsBackToBestAsk(t *testing.T) {
	r := Walk(nil, 50, 0.6, true)

	assert.Equal(t, SourceBestAsk, r.Source)
	assert.InDelta(t, 0.6, r.EffectivePrice, 1e-9)
	assert.InDelta(t, 50.0, r.Spend, 1e-9)
}

func TestWalk_NothingAvailable(t *testing.T) {
	r := Walk(nil, 50, 0, false)
	assert.Equal(t, SourceUnavailable, r.Source)
	assert.Zero(t, r.Units)
}
