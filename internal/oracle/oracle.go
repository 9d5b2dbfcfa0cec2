// Package oracle derives settlement outcomes for a resolving position from
// locked thresholds and live snapshots, including the force-resolution
// policy for stuck positions.
package oracle

import "github.com/mreid/parity-arb/internal/snapshot"

// Outcome is the three-variant settlement tag for one venue's leg.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeUp
	OutcomeDown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUp:
		return "UP"
	case OutcomeDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// Force-resolution deadlines, per spec §4.5/§9 — implementers may expose
// these as config but must default to these literal values for test
// compatibility.
const (
	PartialForceMs = 180_000
	TotalForceMs   = 600_000
)

const printFreshnessMs = 60_000
const historyWindowMs = 60_000
const spotFallbackMs = 120_000

// Resolve derives the settlement outcome for one venue at closeMs against
// threshold, using the priority order from spec §4.5:
//  1. Official venue print (only meaningful for venue K snapshots; callers
//     pass underlyingValue/underlyingTs as zero for venue P).
//  2. Last-trade history within [close-60s, close+60s], closest sample.
//  3. Spot fallback if cryptoPrice is fresh enough.
//  4. Otherwise UNKNOWN.
func Resolve(snap snapshot.Snapshot, threshold float64, closeMs int64) Outcome {
	if snap.UnderlyingValue > 0 && absInt64(snap.UnderlyingTs-closeMs) <= printFreshnessMs {
		return compare(snap.UnderlyingValue, threshold)
	}

	if best, ok := closestHistorySample(snap.PriceHistoryWithTs, closeMs); ok {
		return compare(best.Price, threshold)
	}

	if snap.CryptoPrice > 0 && snap.CryptoPriceTimestamp >= closeMs-spotFallbackMs {
		return compare(snap.CryptoPrice, threshold)
	}

	return OutcomeUnknown
}

// compare implements "UP iff value > threshold; DOWN iff value < threshold;
// on exact tie the venue's own rule is DOWN" — the one deliberately
// asymmetric rule in this spec; do not change it.
func compare(value, threshold float64) Outcome {
	if value > threshold {
		return OutcomeUp
	}
	return OutcomeDown
}

func closestHistorySample(history []snapshot.PricePoint, closeMs int64) (snapshot.PricePoint, bool) {
	lo, hi := closeMs-historyWindowMs, closeMs+historyWindowMs
	var best snapshot.PricePoint
	bestDist := int64(-1)
	found := false

	for _, p := range history {
		if p.TsMs < lo || p.TsMs > hi {
			continue
		}
		d := absInt64(p.TsMs - closeMs)
		if !found || d < bestDist {
			best, bestDist, found = p, d, true
		}
	}
	return best, found
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// ForceDecision is the outcome of evaluating the force-resolution policy at
// the current tick for a position that is past close and still resolving.
type ForceDecision struct {
	ShouldForce bool
	OutcomeP    Outcome
	OutcomeK    Outcome
}

// ForceResolve evaluates spec §4.5's force-resolution ladder:
//   - nowMs-closeMs >= 600s and either side still UNKNOWN -> force a loss.
//   - nowMs-closeMs >= 180s and exactly one side UNKNOWN -> resolve with the
//     known side; the unknown side falls back to spot if available (the
//     Resolve call above already applies spot fallback, so by this point an
//     UNKNOWN outcome truly has no data).
//
// Callers should call Resolve for both venues first; this function only
// decides whether policy requires forcing despite remaining UNKNOWNs.
func ForceResolve(outcomeP, outcomeK Outcome, nowMs, closeMs int64) ForceDecision {
	elapsed := nowMs - closeMs

	if elapsed >= TotalForceMs && (outcomeP == OutcomeUnknown || outcomeK == OutcomeUnknown) {
		return ForceDecision{ShouldForce: true, OutcomeP: outcomeP, OutcomeK: outcomeK}
	}

	oneUnknown := (outcomeP == OutcomeUnknown) != (outcomeK == OutcomeUnknown)
	if elapsed >= PartialForceMs && oneUnknown {
		return ForceDecision{ShouldForce: true, OutcomeP: outcomeP, OutcomeK: outcomeK}
	}

	return ForceDecision{}
}
