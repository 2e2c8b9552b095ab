package valuation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource returns the SOL/USD spot price as close to ts as the backing
// service allows. Implementations must honor ctx cancellation; the resolver
// wraps each call in its own short timeout.
type PriceSource interface {
	Name() string
	SpotUSD(ctx context.Context, ts time.Time) (decimal.Decimal, error)
}

// --- Binance klines (historical, preferred) ----------------------------------

// BinanceKlineSource reads the 1-minute candle covering ts, so valuation is
// evaluated at the trade's own timestamp rather than current time.
type BinanceKlineSource struct {
	HTTP     *http.Client
	Endpoint string
	Symbol   string
}

func (s *BinanceKlineSource) Name() string { return "binance" }

func (s *BinanceKlineSource) SpotUSD(ctx context.Context, ts time.Time) (decimal.Decimal, error) {
	if s == nil {
		return decimal.Zero, fmt.Errorf("source is nil")
	}
	client := s.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	endpoint := strings.TrimSpace(s.Endpoint)
	if endpoint == "" {
		return decimal.Zero, fmt.Errorf("missing endpoint")
	}
	symbol := strings.TrimSpace(s.Symbol)
	if symbol == "" {
		symbol = "SOLUSDT"
	}

	start := ts.UTC().Truncate(time.Minute)
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", "1m")
	query.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	query.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("http %d", resp.StatusCode)
	}

	// Kline rows are positional arrays; index 4 is the close price.
	var rows [][]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 || len(rows[0]) < 5 {
		return decimal.Zero, fmt.Errorf("no kline for %s", start.Format(time.RFC3339))
	}
	closeRaw, ok := rows[0][4].(string)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected kline shape")
	}
	return parsePositive(closeRaw)
}

// --- Jupiter price API (aggregator quote) ------------------------------------

type JupiterSource struct {
	HTTP     *http.Client
	Endpoint string
	Mint     string
}

func (s *JupiterSource) Name() string { return "jupiter" }

func (s *JupiterSource) SpotUSD(ctx context.Context, _ time.Time) (decimal.Decimal, error) {
	if s == nil {
		return decimal.Zero, fmt.Errorf("source is nil")
	}
	client := s.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	endpoint := strings.TrimSpace(s.Endpoint)
	mint := strings.TrimSpace(s.Mint)
	if endpoint == "" || mint == "" {
		return decimal.Zero, fmt.Errorf("missing endpoint or mint")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?ids="+url.QueryEscape(mint), nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("http %d", resp.StatusCode)
	}

	var parsed struct {
		Data map[string]struct {
			Price string `json:"price"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Zero, err
	}
	entry, ok := parsed.Data[mint]
	if !ok {
		return decimal.Zero, fmt.Errorf("mint missing from response")
	}
	return parsePositive(entry.Price)
}

// --- CoinGecko simple price (last resort) ------------------------------------

type CoinGeckoSource struct {
	HTTP     *http.Client
	Endpoint string
	AssetID  string
}

func (s *CoinGeckoSource) Name() string { return "coingecko" }

func (s *CoinGeckoSource) SpotUSD(ctx context.Context, _ time.Time) (decimal.Decimal, error) {
	if s == nil {
		return decimal.Zero, fmt.Errorf("source is nil")
	}
	client := s.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	endpoint := strings.TrimSpace(s.Endpoint)
	assetID := strings.TrimSpace(s.AssetID)
	if endpoint == "" || assetID == "" {
		return decimal.Zero, fmt.Errorf("missing endpoint or asset id")
	}

	query := url.Values{}
	query.Set("ids", assetID)
	query.Set("vs_currencies", "usd")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("http %d", resp.StatusCode)
	}

	var parsed map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Zero, err
	}
	usd, ok := parsed[assetID]["usd"]
	if !ok || usd <= 0 {
		return decimal.Zero, fmt.Errorf("invalid price")
	}
	return decimal.NewFromFloat(usd), nil
}

func parsePositive(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid price %s", price)
	}
	return price, nil
}
