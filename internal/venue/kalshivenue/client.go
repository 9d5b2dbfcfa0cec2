package kalshivenue

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// restRateLimit caps REST calls to venue K's market-discovery/orderbook
// endpoints, in line with Kalshi's published per-key rate limits.
const restRateLimit = 10 // requests/sec

// VenueConfig is venue K's connection config — trimmed from the teacher's
// account-wide Config down to what a single Supplier instance needs.
type VenueConfig struct {
	APIKeyID    string
	PrivKeyPath string
	Env         string // "prod" or "demo"
	SeriesTicker string
}

func (c VenueConfig) BaseURL() string {
	if c.Env == "prod" {
		return "https://api.elections.kalshi.com/trade-api/v2"
	}
	return "https://demo-api.kalshi.co/trade-api/v2"
}

func (c VenueConfig) WSBaseURL() string {
	if c.Env == "prod" {
		return "wss://api.elections.kalshi.com/trade-api/ws/v2"
	}
	return "wss://demo-api.kalshi.co/trade-api/ws/v2"
}

type Client struct {
	cfg            VenueConfig
	privKey        *rsa.PrivateKey
	http           *http.Client
	limiter        *rate.Limiter
	baseURL        string
	basePathPrefix string
}

func NewClient(cfg VenueConfig) (*Client, error) {
	key, err := LoadPrivateKey(cfg.PrivKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading kalshi key: %w", err)
	}

	parsed, err := url.Parse(cfg.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	return &Client{
		cfg:            cfg,
		privKey:        key,
		http:           &http.Client{Timeout: 10 * time.Second},
		limiter:        rate.NewLimiter(rate.Limit(restRateLimit), restRateLimit),
		baseURL:        cfg.BaseURL(),
		basePathPrefix: parsed.Path,
	}, nil
}

func (c *Client) signPath(path string) string {
	return c.basePathPrefix + path
}

// Market is the subset of Kalshi's market object the supplier needs to
// populate a Snapshot.
type Market struct {
	Ticker                 string  `json:"ticker"`
	Status                 string  `json:"status"`
	FloorStrike            float64 `json:"floor_strike"`
	CapStrike              float64 `json:"cap_strike"`
	ExpectedExpirationTime string  `json:"expected_expiration_time"`
	ExpirationTime         string  `json:"expiration_time"`
	Result                 string  `json:"result"`
	RulesPrimary           string  `json:"rules_primary"`
}

func (m *Market) StrikePrice() float64 {
	if m.CapStrike > 0 {
		return m.CapStrike
	}
	if m.FloorStrike > 0 {
		return m.FloorStrike
	}
	if m.RulesPrimary != "" {
		re := regexp.MustCompile(`is at least ([\d.]+)`)
		if matches := re.FindStringSubmatch(m.RulesPrimary); len(matches) > 1 {
			if strike, err := strconv.ParseFloat(matches[1], 64); err == nil {
				return strike
			}
		}
	}
	return 0
}

func (m *Market) CloseTimeParsed() (time.Time, error) {
	if m.ExpectedExpirationTime != "" {
		return time.Parse(time.RFC3339, m.ExpectedExpirationTime)
	}
	return time.Parse(time.RFC3339, m.ExpirationTime)
}

// Resolved reports whether the market has settled (result "yes" or "no").
// The market object parsed here carries no numeric print of the underlying
// at settlement, so venue K snapshots leave UnderlyingValue/UnderlyingTs
// unset and the Resolution Oracle falls back to priceHistoryWithTs / spot.
func (m *Market) Resolved() bool {
	return m.Result == "yes" || m.Result == "no"
}

type Orderbook struct {
	Ticker string  `json:"ticker"`
	Yes    [][]int `json:"yes"`
	No     [][]int `json:"no"`
}

func (c *Client) GetMarkets(ctx context.Context, seriesTicker, status string) ([]Market, error) {
	params := url.Values{}
	if seriesTicker != "" {
		params.Set("series_ticker", seriesTicker)
	}
	if status != "" {
		params.Set("status", status)
	}
	params.Set("limit", "200")

	var result struct {
		Markets []Market `json:"markets"`
	}
	if err := c.get(ctx, "/markets", params, &result); err != nil {
		return nil, err
	}
	return result.Markets, nil
}

func (c *Client) GetOrderbook(ctx context.Context, ticker string, depth int) (*Orderbook, error) {
	params := url.Values{}
	if depth > 0 {
		params.Set("depth", fmt.Sprintf("%d", depth))
	}

	var result struct {
		Orderbook Orderbook `json:"orderbook"`
	}
	if err := c.get(ctx, "/markets/"+ticker+"/orderbook", params, &result); err != nil {
		return nil, err
	}
	return &result.Orderbook, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return err
	}

	headers, err := AuthHeaders(c.cfg, c.privKey, "GET", c.signPath(path))
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")

	return c.doRequest(req, out)
}

func (c *Client) doRequest(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("kalshi request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("kalshi API error %d: %s", resp.StatusCode, string(body))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w (body: %s)", err, string(body))
		}
	}
	return nil
}
