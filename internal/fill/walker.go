// Package fill prices a target notional against order-book liquidity and
// combines two venues/sides into a paired arbitrage fill estimate.
package fill

import "github.com/mreid/parity-arb/internal/snapshot"

// Source tags where a WalkResult's numbers came from.
type Source string

const (
	SourceOrderbook   Source = "orderbook"
	SourceBestAsk     Source = "best_ask"
	SourceUnavailable Source = "unavailable"
)

// WalkResult is the outcome of pricing a notional against one side of a
// book.
type WalkResult struct {
	Units          float64
	EffectivePrice float64
	Spend          float64
	Shortfall      float64 // only meaningful when Source == SourceOrderbook and liquidity ran out
	Source         Source
}

// Walk consumes contiguous ask levels of side, starting from the best
// level, until cumulative price*size meets notionalUsd. See spec §4.1 for
// the exact contract: levels with size<=0 or price<=0||price>=1 are
// skipped; the book is trusted to already be ordered best-first.
//
// bestAsk is the venue's published best-ask convenience field, used as a
// fallback when side is empty (display-only estimate, infinite liquidity
// assumed at that price).
func Walk(side []snapshot.PriceLevel, notionalUsd float64, bestAsk float64, bestAskOK bool) WalkResult {
	var units, spend float64
	consumedAny := false

	for _, lvl := range side {
		if lvl.Size <= 0 {
			continue
		}
		if lvl.Price <= 0 || lvl.Price >= 1 {
			continue
		}
		consumedAny = true

		levelValue := lvl.Price * lvl.Size
		remaining := notionalUsd - spend

		if levelValue <= remaining {
			units += lvl.Size
			spend += levelValue
			if spend >= notionalUsd {
				break
			}
			continue
		}

		// Fractional slice of this level reaches the target notional.
		slice := remaining / lvl.Price
		units += slice
		spend += remaining
		remaining = 0
		break
	}

	if consumedAny {
		effPrice := 0.0
		if units > 0 {
			effPrice = spend / units
		}
		shortfall := notionalUsd - spend
		if shortfall < 0 {
			shortfall = 0
		}
		return WalkResult{
			Units:          units,
			EffectivePrice: effPrice,
			Spend:          spend,
			Shortfall:      shortfall,
			Source:         SourceOrderbook,
		}
	}

	if bestAskOK && bestAsk > 0 {
		return WalkResult{
			Units:          notionalUsd / bestAsk,
			EffectivePrice: bestAsk,
			Spend:          notionalUsd,
			Source:         SourceBestAsk,
		}
	}

	return WalkResult{Source: SourceUnavailable}
}
