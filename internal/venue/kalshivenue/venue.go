// Package kalshivenue adapts the teacher's Kalshi REST+WS client into a
// venue-K Supplier (spec §6/§4.7): it discovers the current 15-minute
// market for each configured coin, streams its orderbook via WSClient, and
// publishes snapshot.Snapshot values by atomic pointer swap.
package kalshivenue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mreid/parity-arb/internal/obslog"
	"github.com/mreid/parity-arb/internal/snapshot"
)

// coinSeriesTicker maps a configured coin symbol to Kalshi's 15-minute
// series ticker prefix. Illustrative — a real deployment would load this
// from config alongside VenueConfig.
var coinSeriesTicker = map[string]string{
	"BTC": "KXBTC15M",
	"ETH": "KXETH15M",
}

// Supplier implements supplier.Supplier for venue K.
type Supplier struct {
	client *Client
	ws     *WSClient
	logger obslog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	current atomic.Pointer[map[string]snapshot.Snapshot]
	tickers atomic.Pointer[map[string]string] // coin -> current ticker (marketKey)
}

// New builds an unstarted Supplier for venue K.
func New(cfg VenueConfig, logger obslog.Logger) (*Supplier, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	s := &Supplier{client: client, logger: logger}
	ws, err := NewWSClient(cfg, func(err error) {
		logger.Log("kalshi ws disconnected: "+err.Error(), obslog.LevelWarn)
	})
	if err != nil {
		return nil, err
	}
	s.ws = ws

	empty := map[string]snapshot.Snapshot{}
	s.current.Store(&empty)
	emptyTickers := map[string]string{}
	s.tickers.Store(&emptyTickers)
	return s, nil
}

// Start begins market discovery and the websocket feed for coins.
func (s *Supplier) Start(coins []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		_ = s.ws.Run(ctx)
	}()

	go s.pollLoop(ctx, coins)
	return nil
}

// Stop releases the websocket connection and discovery loop.
func (s *Supplier) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// GetSnapshots returns the latest published coin -> Snapshot mapping.
func (s *Supplier) GetSnapshots() map[string]snapshot.Snapshot {
	return *s.current.Load()
}

func (s *Supplier) pollLoop(ctx context.Context, coins []string) {
	defer close(s.done)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	s.discoverAndPublish(ctx, coins)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.discoverAndPublish(ctx, coins)
		}
	}
}

func (s *Supplier) discoverAndPublish(ctx context.Context, coins []string) {
	tickers := map[string]string{}
	out := map[string]snapshot.Snapshot{}

	for _, coin := range coins {
		series, ok := coinSeriesTicker[coin]
		if !ok {
			continue
		}

		markets, err := s.client.GetMarkets(ctx, series, "open")
		if err != nil || len(markets) == 0 {
			s.logger.Log("kalshi market discovery failed for "+coin+": "+errString(err), obslog.LevelWarn)
			continue
		}

		m := markets[0]
		tickers[coin] = m.Ticker
		s.ws.Subscribe([]string{m.Ticker})

		closeMs := int64(0)
		if t, err := m.CloseTimeParsed(); err == nil && !t.IsZero() {
			closeMs = t.UnixMilli()
		}

		snap := s.buildSnapshot(coin, m, closeMs)
		out[coin] = snap
	}

	s.current.Store(&out)
	s.tickers.Store(&tickers)
}

func (s *Supplier) buildSnapshot(coin string, m Market, closeMs int64) snapshot.Snapshot {
	nowMs := time.Now().UnixMilli()
	ob := s.ws.GetOrderbook(m.Ticker)

	status := snapshot.DataDisconnected
	var yesAsks, noAsks []snapshot.PriceLevel
	var bestBid, bestAsk map[string]float64 = map[string]float64{}, map[string]float64{}
	var books map[string]snapshot.OrderBook = map[string]snapshot.OrderBook{}

	const upTok, downTok = "yes", "no"

	if ob != nil {
		if time.Since(ob.LastUpdate) < 30*time.Second {
			status = snapshot.DataHealthy
		} else {
			status = snapshot.DataStale
		}

		yesAsks = centsToLevels(ob.AskDepth("yes"))
		noAsks = centsToLevels(ob.AskDepth("no"))

		books[upTok] = snapshot.OrderBook{Asks: yesAsks}
		books[downTok] = snapshot.OrderBook{Asks: noAsks}

		if len(yesAsks) > 0 {
			bestAsk[upTok] = yesAsks[0].Price
		}
		if len(noAsks) > 0 {
			bestAsk[downTok] = noAsks[0].Price
		}
		bestBid[upTok] = float64(ob.BestYesBid()) / 100
		bestBid[downTok] = float64(100-ob.BestYesAsk()) / 100
	}

	threshold := m.StrikePrice()
	refSource := snapshot.RefMissing
	if threshold > 0 {
		refSource = snapshot.RefPriceToBeat
	}

	timeLeftSec := float64(closeMs-nowMs) / 1000

	return snapshot.Snapshot{
		Venue:             snapshot.VenueK,
		Coin:              coin,
		MarketKey:         m.Ticker,
		MarketCloseTimeMs: closeMs,
		TimeLeftSec:       timeLeftSec,
		PriceToBeat:       threshold,
		ReferencePrice:    threshold,
		ReferenceSource:   refSource,
		DataStatus:        status,
		UpTokenID:         upTok,
		DownTokenID:       downTok,
		UpOutcome:         "YES",
		DownOutcome:       "NO",
		OrderBooks:        books,
		BestBid:           bestBid,
		BestAsk:           bestAsk,
	}
}

func centsToLevels(levels []PriceLevel) []snapshot.PriceLevel {
	out := make([]snapshot.PriceLevel, 0, len(levels))
	for _, l := range levels {
		if l.Quantity <= 0 {
			continue
		}
		out = append(out, snapshot.PriceLevel{Price: float64(l.Price) / 100, Size: float64(l.Quantity)})
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
