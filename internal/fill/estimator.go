package fill

import "github.com/mreid/parity-arb/internal/snapshot"

// Direction identifies which leg is bought on which venue.
type Direction int

const (
	// DirUpNo buys UP on venue P and DOWN/NO on venue K.
	DirUpNo Direction = iota
	// DirDownYes buys DOWN on venue P and UP/YES on venue K.
	DirDownYes
)

func (d Direction) String() string {
	if d == DirUpNo {
		return "upNo"
	}
	return "downYes"
}

// Estimate is a paired fill estimate for one direction.
type Estimate struct {
	Direction       Direction
	CombinedCost    float64
	UnitsP          float64
	UnitsK          float64
	SpendP          float64
	SpendK          float64
	EffectivePriceP float64
	EffectivePriceK float64
	Gap             float64
	Source          Source
	ShortfallP      float64
	ShortfallK      float64
}

// rank orders walk sources best-to-worst: a clean orderbook fill ranks
// highest, a partial (shortfall) orderbook fill below that, then best_ask,
// then unavailable.
func rank(r WalkResult) int {
	switch r.Source {
	case SourceOrderbook:
		if r.Shortfall > 0 {
			return 2
		}
		return 3
	case SourceBestAsk:
		return 1
	default:
		return 0
	}
}

// weaker returns the source of whichever of a, b ranks lower — the
// estimate's overall source is only as good as its worse leg.
func weaker(a, b WalkResult) Source {
	worse := a
	if rank(b) < rank(a) {
		worse = b
	}
	if rank(worse) == 2 && worse.Source == SourceOrderbook {
		// A partial orderbook fill still counts as "orderbook" per spec
		// (source is orderbook iff both walks are orderbook, shortfall or
		// not); only degrade to best_ask when a leg actually fell back.
		return SourceOrderbook
	}
	return worse.Source
}

// Compute prices a pair of legs for direction at the given notional,
// walking P's and K's respective ask sides. Pure and side-effect free —
// safe to call for display even when trading is gated off.
func Compute(direction Direction, snapP, snapK snapshot.Snapshot, notionalUsd float64) Estimate {
	var pTokenID, kTokenID string
	if direction == DirUpNo {
		pTokenID = snapP.UpTokenID
		kTokenID = snapK.DownTokenID
	} else {
		pTokenID = snapP.DownTokenID
		kTokenID = snapK.UpTokenID
	}

	pBook, pOK := snapP.Book(pTokenID)
	kBook, kOK := snapK.Book(kTokenID)

	var pAsks, kAsks []snapshot.PriceLevel
	if pOK {
		pAsks = pBook.Asks
	}
	if kOK {
		kAsks = kBook.Asks
	}

	pBestAsk, pBestAskOK := snapP.BestAsk[pTokenID]
	kBestAsk, kBestAskOK := snapK.BestAsk[kTokenID]

	rp := Walk(pAsks, notionalUsd, pBestAsk, pBestAskOK)
	rk := Walk(kAsks, notionalUsd, kBestAsk, kBestAskOK)

	units := rp.Units
	if rk.Units < units {
		units = rk.Units
	}

	combined := rp.EffectivePrice + rk.EffectivePrice

	return Estimate{
		Direction:       direction,
		CombinedCost:    combined,
		UnitsP:          units,
		UnitsK:          units,
		SpendP:          rp.Spend,
		SpendK:          rk.Spend,
		EffectivePriceP: rp.EffectivePrice,
		EffectivePriceK: rk.EffectivePrice,
		Gap:             1 - combined,
		Source:          weaker(rp, rk),
		ShortfallP:      rp.Shortfall,
		ShortfallK:      rk.Shortfall,
	}
}
