package lots

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"walletpulse/internal/models"
)

// openLot is a buy (or buy portion) not yet consumed by a sell.
type openLot struct {
	entryTime  time.Time
	size       decimal.Decimal
	entryPrice decimal.Decimal
	costKnown  bool
}

// ProcessTrades runs FIFO matching over one wallet's priced trade history and
// returns the closed lots plus the open remainder per token. It is a pure
// function of its input: trades are grouped per token, ordered by time, and
// each sell consumes the oldest open buy lots first. A sell that spans
// several buy lots produces one closed lot per spanned portion.
//
// A sell larger than the open inventory means the wallet bought before
// tracking began. The uncovered portion is matched against a synthetic lot
// whose entry price is the earliest USD price ever observed for that token;
// when no earlier price exists the exit price is used, which zeroes the PnL
// rather than inventing one. Such lots carry CostKnown=false.
func ProcessTrades(trades []models.Trade) ([]models.ClosedLot, []models.OpenPosition) {
	ordered := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Side == models.SideVoid {
			continue
		}
		ordered = append(ordered, t)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].TradeTime.Equal(ordered[j].TradeTime) {
			return ordered[i].TradeTime.Before(ordered[j].TradeTime)
		}
		return ordered[i].ID < ordered[j].ID
	})

	inventory := map[string][]openLot{}
	earliestPrice := map[string]decimal.Decimal{}
	earliestEntry := map[string]time.Time{}
	var closed []models.ClosedLot

	for _, t := range ordered {
		price := usdPrice(&t)
		if _, ok := earliestPrice[t.TokenID]; !ok && price.IsPositive() {
			earliestPrice[t.TokenID] = price
			earliestEntry[t.TokenID] = t.TradeTime
		}

		switch t.Side {
		case models.SideBuy:
			inventory[t.TokenID] = append(inventory[t.TokenID], openLot{
				entryTime:  t.TradeTime,
				size:       t.AmountToken,
				entryPrice: price,
				costKnown:  true,
			})
		case models.SideSell:
			closed = append(closed, consumeSell(&t, price, inventory, earliestPrice, earliestEntry)...)
		}
	}

	return closed, openRemainder(trades, inventory)
}

func consumeSell(
	t *models.Trade,
	exitPrice decimal.Decimal,
	inventory map[string][]openLot,
	earliestPrice map[string]decimal.Decimal,
	earliestEntry map[string]time.Time,
) []models.ClosedLot {
	remaining := t.AmountToken
	lots := inventory[t.TokenID]
	var closed []models.ClosedLot

	for remaining.IsPositive() && len(lots) > 0 {
		lot := &lots[0]
		portion := decimal.Min(remaining, lot.size)
		closed = append(closed, closeLot(t, lot.entryTime, portion, lot.entryPrice, exitPrice, lot.costKnown))
		lot.size = lot.size.Sub(portion)
		remaining = remaining.Sub(portion)
		if !lot.size.IsPositive() {
			lots = lots[1:]
		}
	}
	inventory[t.TokenID] = lots

	if remaining.IsPositive() {
		entryPrice, ok := earliestPrice[t.TokenID]
		entryTime := earliestEntry[t.TokenID]
		if !ok || !entryPrice.IsPositive() {
			entryPrice = exitPrice
		}
		if entryTime.IsZero() {
			entryTime = t.TradeTime
		}
		closed = append(closed, closeLot(t, entryTime, remaining, entryPrice, exitPrice, false))
	}
	return closed
}

func closeLot(t *models.Trade, entryTime time.Time, size, entryPrice, exitPrice decimal.Decimal, costKnown bool) models.ClosedLot {
	costBasis := size.Mul(entryPrice)
	proceeds := size.Mul(exitPrice)
	pnl := proceeds.Sub(costBasis)
	percent := decimal.Zero
	if costBasis.IsPositive() {
		percent = pnl.Div(costBasis).Mul(decimal.NewFromInt(100))
	}
	return models.ClosedLot{
		WalletID:           t.WalletID,
		TokenID:            t.TokenID,
		EntryTime:          entryTime,
		ExitTime:           t.TradeTime,
		Size:               size,
		EntryPrice:         entryPrice,
		ExitPrice:          exitPrice,
		CostBasis:          costBasis,
		Proceeds:           proceeds,
		RealizedPnL:        pnl,
		RealizedPnLPercent: percent,
		CostKnown:          costKnown,
	}
}

func openRemainder(trades []models.Trade, inventory map[string][]openLot) []models.OpenPosition {
	var walletID uint64
	if len(trades) > 0 {
		walletID = trades[0].WalletID
	}

	tokens := make([]string, 0, len(inventory))
	for token, lots := range inventory {
		if len(lots) > 0 {
			tokens = append(tokens, token)
		}
	}
	sort.Strings(tokens)

	positions := make([]models.OpenPosition, 0, len(tokens))
	for _, token := range tokens {
		var size, costBasis decimal.Decimal
		firstEntry := inventory[token][0].entryTime
		for _, lot := range inventory[token] {
			size = size.Add(lot.size)
			costBasis = costBasis.Add(lot.size.Mul(lot.entryPrice))
			if lot.entryTime.Before(firstEntry) {
				firstEntry = lot.entryTime
			}
		}
		if !size.IsPositive() {
			continue
		}
		positions = append(positions, models.OpenPosition{
			WalletID:       walletID,
			TokenID:        token,
			Size:           size,
			AvgEntryPrice:  costBasis.Div(size),
			CostBasis:      costBasis,
			FirstEntryTime: firstEntry,
		})
	}
	return positions
}

func usdPrice(t *models.Trade) decimal.Decimal {
	if t.PriceUSDPerToken != nil {
		return *t.PriceUSDPerToken
	}
	return decimal.Zero
}
