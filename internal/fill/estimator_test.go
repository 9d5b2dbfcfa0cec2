package fill

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mreid/parity-arb/internal/snapshot"
)

func makeSnap(venue snapshot.Venue, upAsks, downAsks []snapshot.PriceLevel) snapshot.Snapshot {
	return snapshot.Snapshot{
		Venue:       venue,
		UpTokenID:   "up",
		DownTokenID: "down",
		OrderBooks: map[string]snapshot.OrderBook{
			"up":   {Asks: upAsks},
			"down": {Asks: downAsks},
		},
	}
}

// TestCompute_UpNo mirrors spec §8 scenario 2: P UP asks [{0.40,500}], K NO
// asks [{0.50,500}] -> combinedCost=0.90, gap=0.10.
func TestCompute_UpNo(t *testing.T) {
	snapP := makeSnap(snapshot.VenueP, []snapshot.PriceLevel{{Price: 0.40, Size: 500}}, nil)
	snapK := makeSnap(snapshot.VenueK, nil, []snapshot.PriceLevel{{Price: 0.50, Size: 500}})

	est := Compute(DirUpNo, snapP, snapK, 500)

	assert.InDelta(t, 0.90, est.CombinedCost, 1e-9)
	assert.InDelta(t, 0.10, est.Gap, 1e-9)
	assert.Equal(t, SourceOrderbook, est.Source)
	assert.InDelta(t, 500.0, est.UnitsP, 1e-6)
}

func TestCompute_DownYes(t *testing.T) {
	snapP := makeSnap(snapshot.VenueP, nil, []snapshot.PriceLevel{{Price: 0.35, Size: 500}})
	snapK := makeSnap(snapshot.VenueK, []snapshot.PriceLevel{{Price: 0.55, Size: 500}}, nil)

	est := Compute(DirDownYes, snapP, snapK, 500)

	assert.InDelta(t, 0.90, est.CombinedCost, 1e-9)
	assert.InDelta(t, 0.10, est.Gap, 1e-9)
}

func TestCompute_UnitsIsMinOfBothLegs(t *testing.T) {
	snapP := makeSnap(snapshot.VenueP, []snapshot.PriceLevel{{Price: 0.40, Size: 100}}, nil)
	snapK := makeSnap(snapshot.VenueK, nil, []snapshot.PriceLevel{{Price: 0.50, Size: 500}})

	est := Compute(DirUpNo, snapP, snapK, 500)

	// P's book only has $40 of liquidity at 0.40 -> shortfall, so units is
	// capped by whichever leg filled less.
	assert.InDelta(t, 100.0, est.UnitsP, 1e-6)
	assert.InDelta(t, 100.0, est.UnitsK, 1e-6)
	assert.Greater(t, est.ShortfallP, 0.0)
}

func TestCompute_SourceDegradesToWeakerLeg(t *testing.T) {
	snapP := makeSnap(snapshot.VenueP, []snapshot.PriceLevel{{Price: 0.40, Size: 500}}, nil)
	snapK := makeSnap(snapshot.VenueK, nil, nil) // empty book, no best ask either
	est := Compute(DirUpNo, snapP, snapK, 500)

	assert.Equal(t, SourceUnavailable, est.Source)
}

func TestCompute_InvariantCombinedCostRange(t *testing.T) {
	snapP := makeSnap(snapshot.VenueP, []snapshot.PriceLevel{{Price: 0.40, Size: 500}}, nil)
	snapK := makeSnap(snapshot.VenueK, nil, []snapshot.PriceLevel{{Price: 0.50, Size: 500}})
	est := Compute(DirUpNo, snapP, snapK, 500)

	if est.Source == SourceOrderbook {
		assert.Greater(t, est.CombinedCost, 0.0)
		assert.Less(t, est.CombinedCost, 2.0)
		assert.InDelta(t, 1-est.CombinedCost, est.Gap, 1e-9)
	}
}
