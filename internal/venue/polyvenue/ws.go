package polyvenue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient maintains locally-replayed order books for a set of CLOB token
// ids, fed by Polymarket's market WS channel ("book" snapshots and
// "price_change" deltas).
type WSClient struct {
	url  string
	conn *websocket.Conn
	mu   sync.RWMutex

	books map[string]*Book
	bkMu  sync.RWMutex

	assetIDs map[string]bool
	idMu     sync.RWMutex

	onDisconnect func(err error)
}

// Book is one token's locally maintained order book.
type Book struct {
	AssetID   string
	Bids      []PriceLevel // descending by price
	Asks      []PriceLevel // ascending by price
	UpdatedAt time.Time
}

func NewWSClient(cfg VenueConfig, onDisconnect func(err error)) *WSClient {
	return &WSClient{
		url:          cfg.WSMarketURL,
		books:        make(map[string]*Book),
		assetIDs:     make(map[string]bool),
		onDisconnect: onDisconnect,
	}
}

func (w *WSClient) Subscribe(assetIDs []string) error {
	w.idMu.Lock()
	for _, id := range assetIDs {
		w.assetIDs[id] = true
	}
	w.idMu.Unlock()

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()
	if conn == nil {
		return nil
	}
	return w.sendSubscribe(conn)
}

func (w *WSClient) Run(ctx context.Context) error {
	for {
		if err := w.connect(ctx); err != nil && w.onDisconnect != nil {
			w.onDisconnect(err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (w *WSClient) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	defer func() {
		conn.Close()
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
	}()

	_ = w.sendSubscribe(conn)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		w.handleMessage(msg)
	}
}

func (w *WSClient) sendSubscribe(conn *websocket.Conn) error {
	w.idMu.RLock()
	ids := make([]string, 0, len(w.assetIDs))
	for id := range w.assetIDs {
		ids = append(ids, id)
	}
	w.idMu.RUnlock()

	if len(ids) == 0 {
		return nil
	}
	return conn.WriteJSON(map[string]any{
		"type":       "market",
		"assets_ids": ids,
	})
}

type wsEnvelope struct {
	EventType string          `json:"event_type"`
	AssetID   string          `json:"asset_id"`
	Buys      []PriceLevel    `json:"buys"`
	Sells     []PriceLevel    `json:"sells"`
	Price     string          `json:"price"`
	Size      string          `json:"size"`
	Side      string          `json:"side"`
	Changes   json.RawMessage `json:"changes"`
}

func (w *WSClient) handleMessage(data []byte) {
	var envs []wsEnvelope
	if err := json.Unmarshal(data, &envs); err != nil {
		var single wsEnvelope
		if err := json.Unmarshal(data, &single); err != nil {
			return
		}
		envs = []wsEnvelope{single}
	}

	for _, ev := range envs {
		switch ev.EventType {
		case "book":
			w.applySnapshot(ev)
		case "price_change":
			w.applyDelta(ev)
		}
	}
}

func (w *WSClient) applySnapshot(ev wsEnvelope) {
	b := &Book{AssetID: ev.AssetID, Bids: ev.Buys, Asks: ev.Sells, UpdatedAt: time.Now()}
	w.bkMu.Lock()
	w.books[ev.AssetID] = b
	w.bkMu.Unlock()
}

func (w *WSClient) applyDelta(ev wsEnvelope) {
	w.bkMu.Lock()
	defer w.bkMu.Unlock()

	b := w.books[ev.AssetID]
	if b == nil {
		return
	}
	b.UpdatedAt = time.Now()

	levels := &b.Asks
	if ev.Side == "BUY" {
		levels = &b.Bids
	}

	for i, l := range *levels {
		if l.Price == ev.Price {
			if ev.Size == "0" {
				*levels = append((*levels)[:i], (*levels)[i+1:]...)
			} else {
				(*levels)[i].Size = ev.Size
			}
			return
		}
	}
	if ev.Size != "0" && ev.Size != "" {
		*levels = append(*levels, PriceLevel{Price: ev.Price, Size: ev.Size})
		// Move the new level into place: asks ascending, bids descending.
		for i := len(*levels) - 1; i > 0; i-- {
			cur, _, err1 := (*levels)[i].Decimal()
			prev, _, err2 := (*levels)[i-1].Decimal()
			if err1 != nil || err2 != nil {
				break
			}
			if (ev.Side == "BUY" && !cur.GreaterThan(prev)) || (ev.Side != "BUY" && !cur.LessThan(prev)) {
				break
			}
			(*levels)[i], (*levels)[i-1] = (*levels)[i-1], (*levels)[i]
		}
	}
}

func (w *WSClient) GetBook(assetID string) *Book {
	w.bkMu.RLock()
	defer w.bkMu.RUnlock()
	return w.books[assetID]
}
