package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mreid/parity-arb/internal/snapshot"
)

func TestResolve_OfficialPrint(t *testing.T) {
	closeMs := int64(1_000_000)
	snap := snapshot.Snapshot{
		UnderlyingValue: 51000,
		UnderlyingTs:    closeMs + 10_000, // within 60s
	}
	assert.Equal(t, OutcomeUp, Resolve(snap, 50000, closeMs))
}

func TestResolve_OfficialPrintTooStale(t *testing.T) {
	closeMs := int64(1_000_000)
	snap := snapshot.Snapshot{
		UnderlyingValue: 51000,
		UnderlyingTs:    closeMs + 70_000, // beyond 60s window
		CryptoPrice:     49000,
		CryptoPriceTimestamp: closeMs - 1000,
	}
	assert.Equal(t, OutcomeDown, Resolve(snap, 50000, closeMs))
}

func TestResolve_HistoryFallback(t *testing.T) {
	closeMs := int64(1_000_000)
	snap := snapshot.Snapshot{
		PriceHistoryWithTs: []snapshot.PricePoint{
			{Price: 49000, TsMs: closeMs - 120_000}, // outside window
			{Price: 50500, TsMs: closeMs + 5_000},   // closest within window
			{Price: 50100, TsMs: closeMs + 40_000},
		},
	}
	assert.Equal(t, OutcomeUp, Resolve(snap, 50000, closeMs))
}

func TestResolve_SpotFallback(t *testing.T) {
	closeMs := int64(1_000_000)
	snap := snapshot.Snapshot{
		CryptoPrice:          50000,
		CryptoPriceTimestamp: closeMs - 60_000,
	}
	assert.Equal(t, OutcomeDown, Resolve(snap, 50000, closeMs)) // tie -> DOWN
}

func TestResolve_SpotTooStale(t *testing.T) {
	closeMs := int64(1_000_000)
	snap := snapshot.Snapshot{
		CryptoPrice:          60000,
		CryptoPriceTimestamp: closeMs - 130_000,
	}
	assert.Equal(t, OutcomeUnknown, Resolve(snap, 50000, closeMs))
}

func TestResolve_Unknown(t *testing.T) {
	assert.Equal(t, OutcomeUnknown, Resolve(snapshot.Snapshot{}, 50000, 1_000_000))
}

func TestForceResolve_TotalDeadline(t *testing.T) {
	closeMs := int64(0)
	d := ForceResolve(OutcomeUnknown, OutcomeUnknown, 600_000, closeMs)
	assert.True(t, d.ShouldForce)
}

func TestForceResolve_PartialDeadlineOneSideKnown(t *testing.T) {
	closeMs := int64(0)
	d := ForceResolve(OutcomeUp, OutcomeUnknown, 180_000, closeMs)
	assert.True(t, d.ShouldForce)
	assert.Equal(t, OutcomeUp, d.OutcomeP)
}

func TestForceResolve_NotYetDue(t *testing.T) {
	closeMs := int64(0)
	d := ForceResolve(OutcomeUnknown, OutcomeUnknown, 100_000, closeMs)
	assert.False(t, d.ShouldForce)
}

func TestForceResolve_BothKnownNeverForces(t *testing.T) {
	closeMs := int64(0)
	d := ForceResolve(OutcomeUp, OutcomeDown, 10_000_000, closeMs)
	assert.False(t, d.ShouldForce)
}
