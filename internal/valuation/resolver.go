package valuation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrAllSourcesFailed marks a retryable valuation failure: every configured
// price source errored or returned an unusable price.
var ErrAllSourcesFailed = errors.New("all price sources failed")

// SourceStable marks trades whose base currency is a USD stablecoin and
// therefore needed no external lookup.
const SourceStable = "stable"

// Request carries the base-currency amounts of a staged trade.
type Request struct {
	BaseSymbol   string
	AmountBase   decimal.Decimal
	AmountToken  decimal.Decimal
	PriceBaseRaw decimal.Decimal
	Timestamp    time.Time
}

// Result is the USD valuation plus the provenance of the rate used.
type Result struct {
	AmountBaseUSD    decimal.Decimal
	PriceUSDPerToken decimal.Decimal
	Source           string
	Timestamp        time.Time
}

// Resolver converts base-currency amounts to USD. Stablecoin bases convert
// 1:1 without I/O; SOL bases walk the source chain in order and return the
// first usable price, caching per source and minute.
type Resolver struct {
	Sources []PriceSource
	Cache   *Cache
	Timeout time.Duration
	Logger  *zap.Logger
}

func (r *Resolver) Valuate(ctx context.Context, req Request) (Result, error) {
	if r == nil {
		return Result{}, fmt.Errorf("resolver is nil")
	}

	switch strings.ToUpper(strings.TrimSpace(req.BaseSymbol)) {
	case "USDC", "USDT":
		return r.finish(req, decimal.NewFromInt(1), SourceStable), nil
	case "SOL", "WSOL":
		return r.resolveSOL(ctx, req)
	default:
		return Result{}, fmt.Errorf("unsupported base symbol %q", req.BaseSymbol)
	}
}

func (r *Resolver) resolveSOL(ctx context.Context, req Request) (Result, error) {
	if len(r.Sources) == 0 {
		return Result{}, ErrAllSourcesFailed
	}
	for _, source := range r.Sources {
		if price, ok := r.Cache.Get(source.Name(), req.Timestamp); ok {
			return r.finish(req, price, source.Name()), nil
		}
		price, err := r.querySource(ctx, source, req.Timestamp)
		if err != nil {
			if r.Logger != nil {
				r.Logger.Debug("price source failed",
					zap.String("source", source.Name()),
					zap.Time("ts", req.Timestamp),
					zap.Error(err),
				)
			}
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			continue
		}
		r.Cache.Set(source.Name(), req.Timestamp, price)
		return r.finish(req, price, source.Name()), nil
	}
	return Result{}, ErrAllSourcesFailed
}

func (r *Resolver) querySource(ctx context.Context, source PriceSource, ts time.Time) (decimal.Decimal, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	price, err := source.SpotUSD(sctx, ts)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price %s", price)
	}
	return price, nil
}

func (r *Resolver) finish(req Request, baseUSD decimal.Decimal, source string) Result {
	amountUSD := req.AmountBase.Mul(baseUSD)
	perToken := decimal.Zero
	if req.AmountToken.IsPositive() {
		perToken = amountUSD.Div(req.AmountToken)
	}
	return Result{
		AmountBaseUSD:    amountUSD,
		PriceUSDPerToken: perToken,
		Source:           source,
		Timestamp:        req.Timestamp,
	}
}
