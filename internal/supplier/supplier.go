// Package supplier defines the pull-model interface the multiplexer polls
// for fresh market data (spec §6). Venue-specific implementations live
// under internal/venue/...
package supplier

import "github.com/mreid/parity-arb/internal/snapshot"

// Supplier is a venue's data hub: it owns all I/O and backoff, and must
// answer GetSnapshots cheaply (a stable map reference, no blocking).
type Supplier interface {
	// Start initializes subscriptions for the given coins.
	Start(coins []string) error
	// Stop releases subscriptions and any background goroutines.
	Stop()
	// GetSnapshots returns the latest coin -> Snapshot mapping. The
	// returned map must not be mutated by the caller, and the supplier
	// must never mutate a map it has already returned — publish by
	// replacing the reference (spec §5).
	GetSnapshots() map[string]snapshot.Snapshot
}
