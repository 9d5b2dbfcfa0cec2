// Package polyvenue implements venue P: a Polymarket-CLOB-shaped REST + WS
// client, in the idiom of 0xtitan6-polymarket-mm's internal/exchange, used
// here purely as a read-only market-data Supplier (spec §4.7) — no order
// placement, matching the spec's non-goals.
package polyvenue

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

var gammaStrikePattern = regexp.MustCompile(`\$([\d,]+(?:\.\d+)?)`)

// VenueConfig is venue P's connection config.
type VenueConfig struct {
	GammaBaseURL string
	CLOBBaseURL  string
	WSMarketURL  string
	EventSlugs   map[string]string // coin -> gamma event slug prefix
}

// PriceLevel mirrors the CLOB API's string-encoded book level.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Decimal parses the string-encoded Price/Size with shopspring/decimal;
// toOrderBook converts each level to float64 once, when the snapshot is
// built, and all later sums and book walks use float64.
func (l PriceLevel) Decimal() (price, size decimal.Decimal, err error) {
	price, err = decimal.NewFromString(l.Price)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("parse price: %w", err)
	}
	size, err = decimal.NewFromString(l.Size)
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("parse size: %w", err)
	}
	return price, size, nil
}

// BookResponse is the REST response from GET /book for one token.
type BookResponse struct {
	AssetID string       `json:"asset_id"`
	Bids    []PriceLevel `json:"bids"`
	Asks    []PriceLevel `json:"asks"`
}

// GammaMarket is the subset of Polymarket's Gamma market object needed to
// populate a Snapshot.
type GammaMarket struct {
	Slug         string `json:"slug"`
	ConditionID  string `json:"conditionId"`
	Question     string `json:"question"`
	EndDateIso   string `json:"endDateIso"`
	ClobTokenIDs string `json:"clobTokenIds"` // JSON-encoded array of two token ids, [up, down]
	Closed       bool   `json:"closed"`
}

// StrikePrice extracts the threshold from the market question text, e.g.
// "Will BTC be above $68,420 at 3:00pm ET?". Gamma markets carry the
// strike in free text rather than a structured field.
func (m GammaMarket) StrikePrice() float64 {
	re := gammaStrikePattern
	match := re.FindStringSubmatch(m.Question)
	if len(match) < 2 {
		return 0
	}
	cleaned := ""
	for _, r := range match[1] {
		if r == ',' {
			continue
		}
		cleaned += string(r)
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return f
}

// Client is the Polymarket REST client for venue P.
type Client struct {
	http *resty.Client
}

// NewClient builds a retrying resty client (10s timeout, up to 3 retries on
// transport errors or 5xx), following the teacher pack's exchange.NewClient
// pattern. It applies no request rate limit.
func NewClient(cfg VenueConfig) *Client {
	h := resty.New().
		SetBaseURL(cfg.CLOBBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(300 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	return &Client{http: h}
}

func (c *Client) GetBook(ctx context.Context, tokenID string) (*BookResponse, error) {
	var result BookResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get book: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// GammaClient queries the Gamma markets API for event/market discovery.
type GammaClient struct {
	http *resty.Client
}

func NewGammaClient(cfg VenueConfig) *GammaClient {
	return &GammaClient{http: resty.New().SetBaseURL(cfg.GammaBaseURL).SetTimeout(10 * time.Second)}
}

func (g *GammaClient) GetMarketsBySlugPrefix(ctx context.Context, slugPrefix string) ([]GammaMarket, error) {
	var result []GammaMarket
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParam("active", "true").
		SetQueryParam("closed", "false").
		SetResult(&result).
		Get("/markets")
	if err != nil {
		return nil, fmt.Errorf("gamma markets: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("gamma markets: status %d", resp.StatusCode())
	}

	out := result[:0]
	for _, m := range result {
		if len(m.Slug) >= len(slugPrefix) && m.Slug[:len(slugPrefix)] == slugPrefix {
			out = append(out, m)
		}
	}
	return out, nil
}
