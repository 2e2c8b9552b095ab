package valuation

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// SpotStream keeps a rolling in-memory series of exchange trade prices from
// a websocket feed. It backs the fastest valuation source for trades whose
// timestamps fall within the freshness window; everything older falls
// through to the REST sources.
type SpotStream struct {
	URL       string
	Freshness time.Duration
	Logger    *zap.Logger

	mu     sync.RWMutex
	points []spotPoint
}

type spotPoint struct {
	ts    time.Time
	price decimal.Decimal
}

type streamTrade struct {
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

func (s *SpotStream) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	backoff := time.Second
	for {
		err := s.readLoop(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.Logger != nil {
			s.Logger.Warn("spot stream disconnected", zap.Error(err), zap.Duration("backoff", backoff))
		}
		jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + jitter):
		}
		backoff *= 2
		if backoff > time.Minute {
			backoff = time.Minute
		}
	}
}

func (s *SpotStream) readLoop(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutdown")
	conn.SetReadLimit(1 << 20)

	if s.Logger != nil {
		s.Logger.Info("spot stream connected", zap.String("url", s.URL))
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var trade streamTrade
		if err := json.Unmarshal(data, &trade); err != nil {
			continue
		}
		price, err := decimal.NewFromString(trade.Price)
		if err != nil || !price.IsPositive() {
			continue
		}
		s.record(time.UnixMilli(trade.TradeTime).UTC(), price)
	}
}

func (s *SpotStream) record(ts time.Time, price decimal.Decimal) {
	window := s.Freshness
	if window <= 0 {
		window = 2 * time.Minute
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, spotPoint{ts: ts, price: price})
	cut := time.Now().UTC().Add(-2 * window)
	drop := 0
	for ; drop < len(s.points); drop++ {
		if s.points[drop].ts.After(cut) {
			break
		}
	}
	if drop > 0 {
		s.points = s.points[drop:]
	}
}

// PriceAt returns the stream price closest to ts, provided one exists within
// the freshness window.
func (s *SpotStream) PriceAt(ts time.Time) (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Zero, false
	}
	window := s.Freshness
	if window <= 0 {
		window = 2 * time.Minute
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *spotPoint
	var bestGap time.Duration
	for i := range s.points {
		gap := s.points[i].ts.Sub(ts)
		if gap < 0 {
			gap = -gap
		}
		if gap > window {
			continue
		}
		if best == nil || gap < bestGap {
			best = &s.points[i]
			bestGap = gap
		}
	}
	if best == nil {
		return decimal.Zero, false
	}
	return best.price, true
}

// StreamSource adapts a SpotStream to the PriceSource chain.
type StreamSource struct {
	Stream *SpotStream
}

func (s *StreamSource) Name() string { return "spot_stream" }

func (s *StreamSource) SpotUSD(_ context.Context, ts time.Time) (decimal.Decimal, error) {
	if s == nil || s.Stream == nil {
		return decimal.Zero, fmt.Errorf("stream unavailable")
	}
	price, ok := s.Stream.PriceAt(ts)
	if !ok {
		return decimal.Zero, fmt.Errorf("no stream price near %s", ts.Format(time.RFC3339))
	}
	return price, nil
}
