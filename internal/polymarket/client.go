package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rewired-gh/polysleuth/internal/models"
)

// Config holds client endpoints, paging and retry behavior.
type Config struct {
	DataAPIURL  string
	GammaAPIURL string
	PageSize    int
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

func DefaultConfig() Config {
	return Config{
		DataAPIURL:  "https://data-api.polymarket.com",
		GammaAPIURL: "https://gamma-api.polymarket.com",
		PageSize:    100,
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		RetryDelay:  time.Second,
	}
}

// Client provides access to the Polymarket data and Gamma APIs
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new Polymarket client
func NewClient(config Config) *Client {
	if config.PageSize < 1 {
		config.PageSize = 100
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// ActivityItem is one entry of the data API /activity feed.
type ActivityItem struct {
	Type            string  `json:"type"`
	Side            string  `json:"side"`
	Timestamp       int64   `json:"timestamp"`
	TransactionHash string  `json:"transactionHash"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	USDCSize        float64 `json:"usdcSize"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
}

// Activity is everything the data API reports for one wallet.
type Activity struct {
	Trades    []models.Trade
	Transfers []models.Transfer
}

// FetchActivity pages through a wallet's activity feed until a short page.
func (c *Client) FetchActivity(ctx context.Context, wallet string) (*Activity, error) {
	wallet, err := models.NormalizeAddress(wallet)
	if err != nil {
		return nil, err
	}

	var items []ActivityItem
	for offset := 0; ; offset += c.config.PageSize {
		u, err := url.Parse(c.config.DataAPIURL + "/activity")
		if err != nil {
			return nil, fmt.Errorf("failed to parse URL: %w", err)
		}
		q := u.Query()
		q.Set("user", wallet)
		q.Set("limit", strconv.Itoa(c.config.PageSize))
		q.Set("offset", strconv.Itoa(offset))
		u.RawQuery = q.Encode()

		var page []ActivityItem
		if err := c.getJSON(ctx, u.String(), &page); err != nil {
			return nil, fmt.Errorf("failed to fetch activity for %s: %w", wallet, err)
		}
		items = append(items, page...)
		if len(page) < c.config.PageSize {
			break
		}
	}

	return classify(wallet, items), nil
}

type tradeKey struct{ tx, token, side string }
type transferKey struct {
	tx   string
	kind models.TransferKind
}

// classify turns raw feed items into trades and typed transfers, dropping
// unknown types and duplicate keys.
func classify(wallet string, items []ActivityItem) *Activity {
	a := &Activity{}
	seenTrades := make(map[tradeKey]bool)
	seenTransfers := make(map[transferKey]bool)

	for _, it := range items {
		ts := time.Unix(it.Timestamp, 0).UTC()
		amount := models.Round(it.USDCSize, 6)

		if it.Type == "TRADE" {
			side, err := models.ParseSide(it.Side)
			if err != nil {
				continue
			}
			key := tradeKey{it.TransactionHash, it.Asset, string(side)}
			if seenTrades[key] {
				continue
			}
			seenTrades[key] = true
			a.Trades = append(a.Trades, models.Trade{
				TxHash:      it.TransactionHash,
				Timestamp:   ts,
				Wallet:      wallet,
				TokenID:     it.Asset,
				Side:        side,
				AmountUSD:   amount,
				AmountToken: models.Round(it.Size, 6),
				Price:       models.Round(it.Price, 6),
				Exchange:    "polymarket",
			})
			continue
		}

		var t models.Transfer
		switch it.Type {
		case "DEPOSIT", "REWARD":
			t = models.NewDeposit(it.TransactionHash, ts, wallet, models.ExternalAddress, amount)
		case "WITHDRAWAL":
			t = models.NewWithdrawal(it.TransactionHash, ts, wallet, models.ExternalAddress, amount)
		case "REDEEM":
			t = models.NewRedemption(it.TransactionHash, ts, wallet, amount)
		default:
			continue
		}
		key := transferKey{it.TransactionHash, t.Kind}
		if seenTransfers[key] {
			continue
		}
		seenTransfers[key] = true
		a.Transfers = append(a.Transfers, t)
	}
	return a
}

// GammaMarket represents a market from the Gamma API. List fields arrive
// either as JSON arrays or as JSON-encoded strings.
type GammaMarket struct {
	ConditionID   string          `json:"conditionId"`
	Question      string          `json:"question"`
	Slug          string          `json:"slug"`
	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	ClobTokenIds  json.RawMessage `json:"clobTokenIds"`
	StartDate     string          `json:"startDate"`
	CreatedAt     string          `json:"createdAt"`
	EndDate       string          `json:"endDate"`
	ClosedTime    string          `json:"closedTime"`
	Closed        bool            `json:"closed"`
	Volume        flexFloat       `json:"volume"`
	Category      string          `json:"category"`
	Resolution    string          `json:"resolution"`
}

// FetchMarketByToken looks up the market an outcome token trades on.
// It returns nil without an error when Gamma knows no such token.
func (c *Client) FetchMarketByToken(ctx context.Context, tokenID string) (*models.Market, error) {
	u, err := url.Parse(c.config.GammaAPIURL + "/markets")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("clob_token_ids", tokenID)
	u.RawQuery = q.Encode()

	var markets []GammaMarket
	if err := c.getJSON(ctx, u.String(), &markets); err != nil {
		return nil, fmt.Errorf("failed to fetch market for token %s: %w", tokenID, err)
	}
	if len(markets) == 0 {
		return nil, nil
	}
	return parseMarket(markets[0]), nil
}

func parseMarket(gm GammaMarket) *models.Market {
	m := &models.Market{
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		Slug:        gm.Slug,
		Outcomes:    stringList(gm.Outcomes),
		Closed:      gm.Closed,
		Volume:      float64(gm.Volume),
		TokenIDs:    stringList(gm.ClobTokenIds),
		Category:    gm.Category,
		Resolution:  gm.Resolution,
		EndDate:     parseTime(gm.EndDate),
		ClosedTime:  parseTime(gm.ClosedTime),
	}
	m.StartDate = parseTime(gm.StartDate)
	if m.StartDate.IsZero() {
		m.StartDate = parseTime(gm.CreatedAt)
	}
	for _, p := range stringList(gm.OutcomePrices) {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			m.OutcomePrices = nil
			break
		}
		m.OutcomePrices = append(m.OutcomePrices, f)
	}
	return m
}

// stringList decodes either ["a","b"], "[\"a\",\"b\"]" or a bare string.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		return toStrings(list)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		return toStrings(list)
	}
	return []string{s}
}

func toStrings(list []any) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		switch x := v.(type) {
		case string:
			out = append(out, x)
		case float64:
			out = append(out, strconv.FormatFloat(x, 'f', -1, 64))
		default:
			out = append(out, fmt.Sprint(x))
		}
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z07",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z07",
	"2006-01-02 15:04:05.999999Z07",
	"2006-01-02",
}

// parseTime accepts ISO-8601 and postgres-style timestamps, returning the
// zero time when nothing matches.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

func (c *Client) getJSON(ctx context.Context, urlStr string, out any) error {
	resp, err := c.doRequest(ctx, urlStr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.config.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * c.config.RetryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
