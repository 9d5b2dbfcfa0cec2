package polyvenue

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/mreid/parity-arb/internal/obslog"
	"github.com/mreid/parity-arb/internal/snapshot"
)

// Supplier implements supplier.Supplier for venue P.
type Supplier struct {
	cfg    VenueConfig
	client *Client
	gamma  *GammaClient
	ws     *WSClient
	logger obslog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	current atomic.Pointer[map[string]snapshot.Snapshot]
}

func New(cfg VenueConfig, logger obslog.Logger) *Supplier {
	s := &Supplier{
		cfg:    cfg,
		client: NewClient(cfg),
		gamma:  NewGammaClient(cfg),
		logger: logger,
	}
	s.ws = NewWSClient(cfg, func(err error) {
		logger.Log("polymarket ws disconnected: "+err.Error(), obslog.LevelWarn)
	})
	empty := map[string]snapshot.Snapshot{}
	s.current.Store(&empty)
	return s
}

func (s *Supplier) Start(coins []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() { _ = s.ws.Run(ctx) }()
	go s.pollLoop(ctx, coins)
	return nil
}

func (s *Supplier) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

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
	out := map[string]snapshot.Snapshot{}

	for _, coin := range coins {
		prefix, ok := s.cfg.EventSlugs[coin]
		if !ok {
			continue
		}

		markets, err := s.gamma.GetMarketsBySlugPrefix(ctx, prefix)
		if err != nil || len(markets) == 0 {
			s.logger.Log("polymarket market discovery failed for "+coin+": "+errString(err), obslog.LevelWarn)
			continue
		}

		m := markets[0]
		var tokenIDs []string
		if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err != nil || len(tokenIDs) != 2 {
			continue
		}
		upTok, downTok := tokenIDs[0], tokenIDs[1]

		s.ws.Subscribe([]string{upTok, downTok})

		closeMs := int64(0)
		if t, err := time.Parse(time.RFC3339, m.EndDateIso); err == nil {
			closeMs = t.UnixMilli()
		}

		out[coin] = s.buildSnapshot(coin, m, upTok, downTok, closeMs)
	}

	s.current.Store(&out)
}

func (s *Supplier) buildSnapshot(coin string, m GammaMarket, upTok, downTok string, closeMs int64) snapshot.Snapshot {
	nowMs := time.Now().UnixMilli()

	books := map[string]snapshot.OrderBook{}
	bestBid := map[string]float64{}
	bestAsk := map[string]float64{}
	status := snapshot.DataDisconnected

	upBook := s.ws.GetBook(upTok)
	downBook := s.ws.GetBook(downTok)

	if upBook != nil || downBook != nil {
		status = snapshot.DataStale
	}

	if upBook != nil {
		books[upTok] = toOrderBook(upBook)
		if len(upBook.Asks) > 0 {
			if p, _, err := upBook.Asks[0].Decimal(); err == nil {
				f, _ := p.Float64()
				bestAsk[upTok] = f
			}
		}
		if len(upBook.Bids) > 0 {
			if p, _, err := upBook.Bids[0].Decimal(); err == nil {
				f, _ := p.Float64()
				bestBid[upTok] = f
			}
		}
		if time.Since(upBook.UpdatedAt) < 30*time.Second {
			status = snapshot.DataHealthy
		}
	}
	if downBook != nil {
		books[downTok] = toOrderBook(downBook)
		if len(downBook.Asks) > 0 {
			if p, _, err := downBook.Asks[0].Decimal(); err == nil {
				f, _ := p.Float64()
				bestAsk[downTok] = f
			}
		}
		if len(downBook.Bids) > 0 {
			if p, _, err := downBook.Bids[0].Decimal(); err == nil {
				f, _ := p.Float64()
				bestBid[downTok] = f
			}
		}
	}

	threshold := m.StrikePrice()
	refSource := snapshot.RefMissing
	if threshold > 0 {
		refSource = snapshot.RefPriceToBeat
	}

	return snapshot.Snapshot{
		Venue:             snapshot.VenueP,
		Coin:              coin,
		MarketKey:         m.Slug,
		MarketCloseTimeMs: closeMs,
		TimeLeftSec:       float64(closeMs-nowMs) / 1000,
		PriceToBeat:       threshold,
		ReferencePrice:    threshold,
		ReferenceSource:   refSource,
		DataStatus:        status,
		UpTokenID:         upTok,
		DownTokenID:       downTok,
		UpOutcome:         "UP",
		DownOutcome:       "DOWN",
		OrderBooks:        books,
		BestBid:           bestBid,
		BestAsk:           bestAsk,
	}
}

func toOrderBook(b *Book) snapshot.OrderBook {
	ob := snapshot.OrderBook{
		Asks: make([]snapshot.PriceLevel, 0, len(b.Asks)),
		Bids: make([]snapshot.PriceLevel, 0, len(b.Bids)),
	}
	for _, l := range b.Asks {
		price, size, err := l.Decimal()
		if err != nil || size.IsZero() {
			continue
		}
		p, _ := price.Float64()
		sz, _ := size.Float64()
		ob.Asks = append(ob.Asks, snapshot.PriceLevel{Price: p, Size: sz})
		ob.TotalAskValue += p * sz
	}
	for _, l := range b.Bids {
		price, size, err := l.Decimal()
		if err != nil || size.IsZero() {
			continue
		}
		p, _ := price.Float64()
		sz, _ := size.Float64()
		ob.Bids = append(ob.Bids, snapshot.PriceLevel{Price: p, Size: sz})
		ob.TotalBidValue += p * sz
	}
	return ob
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
