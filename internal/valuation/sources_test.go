package valuation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBinanceKlineSource(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 42, 0, time.UTC)
	var gotStart string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("startTime")
		w.Write([]byte(`[[1748779200000,"149.10","150.20","148.90","149.85",1234,1748779259999,0,0,0,0,0]]`))
	}))
	defer server.Close()

	source := &BinanceKlineSource{HTTP: server.Client(), Endpoint: server.URL, Symbol: "SOLUSDT"}
	price, err := source.SpotUSD(context.Background(), ts)
	if err != nil {
		t.Fatalf("SpotUSD: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("149.85")) {
		t.Fatalf("price = %s", price)
	}
	wantStart := ts.Truncate(time.Minute).UnixMilli()
	if gotStart != decimal.NewFromInt(wantStart).String() {
		t.Fatalf("startTime = %s, want %d", gotStart, wantStart)
	}
}

func TestBinanceKlineSourceEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	source := &BinanceKlineSource{HTTP: server.Client(), Endpoint: server.URL}
	if _, err := source.SpotUSD(context.Background(), time.Now()); err == nil {
		t.Fatalf("expected error for empty kline response")
	}
}

func TestJupiterSource(t *testing.T) {
	mint := "So11111111111111111111111111111111111111112"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"` + mint + `":{"price":"151.23"}}}`))
	}))
	defer server.Close()

	source := &JupiterSource{HTTP: server.Client(), Endpoint: server.URL, Mint: mint}
	price, err := source.SpotUSD(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("SpotUSD: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("151.23")) {
		t.Fatalf("price = %s", price)
	}
}

func TestCoinGeckoSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"solana":{"usd":148.5}}`))
	}))
	defer server.Close()

	source := &CoinGeckoSource{HTTP: server.Client(), Endpoint: server.URL, AssetID: "solana"}
	price, err := source.SpotUSD(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("SpotUSD: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("148.5")) {
		t.Fatalf("price = %s", price)
	}
}

func TestSourceHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	source := &CoinGeckoSource{HTTP: server.Client(), Endpoint: server.URL, AssetID: "solana"}
	if _, err := source.SpotUSD(context.Background(), time.Now()); err == nil {
		t.Fatalf("expected error on http 429")
	}
}

func TestSpotStreamPriceAt(t *testing.T) {
	stream := &SpotStream{Freshness: 2 * time.Minute}
	now := time.Now().UTC()
	stream.record(now.Add(-30*time.Second), decimal.RequireFromString("150.5"))
	stream.record(now.Add(-10*time.Second), decimal.RequireFromString("151.0"))

	price, ok := stream.PriceAt(now)
	if !ok {
		t.Fatalf("expected a fresh price")
	}
	if !price.Equal(decimal.RequireFromString("151.0")) {
		t.Fatalf("price = %s, want nearest point", price)
	}

	if _, ok := stream.PriceAt(now.Add(-time.Hour)); ok {
		t.Fatalf("stale timestamp must miss")
	}
}
