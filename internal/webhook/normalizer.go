package webhook

import (
	"context"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletpulse/internal/models"
	"walletpulse/internal/repository"
)

// Skip reasons recorded in logs and in Result.SkipReasons.
const (
	SkipNotSwap         = "not_swap"
	SkipNoTrackedWallet = "no_tracked_wallet"
	SkipNoTokenDelta    = "no_token_delta"
)

// feeEpsilon is the largest base-currency movement still attributable to
// transaction fees rather than swap legs.
var feeEpsilon = decimal.RequireFromString("0.01")

// Normalizer turns raw swaps into idempotent staged trades. It never prices
// anything: amounts stay in the swap's own base currency.
type Normalizer struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

type Result struct {
	Staged      int
	Duplicates  int
	Skipped     int
	SkipReasons map[string]int
}

// ProcessPayload parses and stages one provider payload. A malformed
// sub-transaction is skipped and logged; it never aborts the batch.
func (n *Normalizer) ProcessPayload(ctx context.Context, raw []byte) (Result, error) {
	res := Result{SkipReasons: map[string]int{}}
	if n == nil || n.Repo == nil {
		return res, nil
	}
	swaps, err := ParseBatch(raw)
	if err != nil {
		return res, err
	}
	for _, swap := range swaps {
		staged, reason, err := n.stageSwap(ctx, swap)
		if err != nil {
			res.Skipped++
			res.SkipReasons["error"]++
			if n.Logger != nil {
				n.Logger.Warn("stage swap failed",
					zap.String("signature", swap.Signature),
					zap.Error(err),
				)
			}
			continue
		}
		switch {
		case staged:
			res.Staged++
		case reason == "":
			res.Duplicates++
		default:
			res.Skipped++
			res.SkipReasons[reason]++
		}
	}
	return res, nil
}

func (n *Normalizer) stageSwap(ctx context.Context, swap RawSwap) (bool, string, error) {
	if !swap.IsSwap {
		return false, SkipNotSwap, nil
	}

	wallet, err := n.resolveTrackedWallet(ctx, swap)
	if err != nil {
		return false, "", err
	}
	if wallet == nil {
		return false, SkipNoTrackedWallet, nil
	}

	staged, ok := classify(swap, wallet)
	if !ok {
		return false, SkipNoTokenDelta, nil
	}

	inserted, err := n.Repo.InsertStagedTrade(ctx, staged)
	if err != nil {
		return false, "", err
	}
	if inserted && n.Logger != nil {
		n.Logger.Info("trade staged",
			zap.String("signature", staged.TxSignature),
			zap.Uint64("wallet_id", staged.WalletID),
			zap.String("token_id", staged.TokenID),
			zap.String("side", staged.Side),
		)
	}
	return inserted, "", nil
}

// resolveTrackedWallet checks participants in fixed order and stops at the
// first address that belongs to an active tracked wallet.
func (n *Normalizer) resolveTrackedWallet(ctx context.Context, swap RawSwap) (*models.Wallet, error) {
	for _, group := range [][]string{swap.Accounts, swap.NativeTransferAccounts, swap.TokenTransferAccounts} {
		candidates := validAddresses(group)
		if len(candidates) == 0 {
			continue
		}
		wallets, err := n.Repo.FindActiveWalletsByAddresses(ctx, candidates)
		if err != nil {
			return nil, err
		}
		if len(wallets) == 0 {
			continue
		}
		byAddress := make(map[string]*models.Wallet, len(wallets))
		for i := range wallets {
			byAddress[wallets[i].Address] = &wallets[i]
		}
		for _, candidate := range candidates {
			if w, ok := byAddress[candidate]; ok {
				return w, nil
			}
		}
	}
	return nil, nil
}

// classify derives side, token, and base amounts strictly from the tracked
// wallet's own balance deltas. USD-denominated provider fields are never
// consulted so the base ledger stays currency-pure.
func classify(swap RawSwap, wallet *models.Wallet) (*models.StagedTrade, bool) {
	tokenDeltas := swap.TokenDeltas[wallet.Address]

	// Base exposure: native SOL plus wrapped SOL fold into one bucket.
	solDelta := swap.NativeDeltas[wallet.Address].Add(tokenDeltas[MintWSOL])
	usdcDelta := tokenDeltas[MintUSDC]
	usdtDelta := tokenDeltas[MintUSDT]

	// Target token: the non-base mint with the largest absolute movement.
	var tokenMint string
	var tokenDelta decimal.Decimal
	for mint, delta := range tokenDeltas {
		if mint == MintWSOL || mint == MintUSDC || mint == MintUSDT {
			continue
		}
		if delta.Abs().GreaterThan(tokenDelta.Abs()) {
			tokenMint = mint
			tokenDelta = delta
		}
	}
	if tokenMint == "" || tokenDelta.IsZero() {
		return nil, false
	}

	baseSymbol, baseDelta := dominantBase(solDelta, usdcDelta, usdtDelta)

	side := models.SideBuy
	if tokenDelta.IsNegative() {
		side = models.SideSell
	}
	amountToken := tokenDelta.Abs()
	amountBase := baseDelta.Abs()

	// Token-for-token swaps leave no base exposure beyond fees.
	if amountBase.LessThanOrEqual(feeEpsilon) {
		side = models.SideVoid
		amountBase = decimal.Zero
	}

	price := decimal.Zero
	if side != models.SideVoid && amountToken.IsPositive() {
		price = amountBase.Div(amountToken)
	}

	return &models.StagedTrade{
		TxSignature:   swap.Signature,
		WalletID:      wallet.ID,
		Side:          side,
		TokenID:       tokenMint,
		AmountToken:   amountToken,
		AmountBaseRaw: amountBase,
		BaseSymbol:    baseSymbol,
		PriceBaseRaw:  price,
		TradeTime:     swap.Timestamp,
		Dex:           swap.Dex,
		Status:        models.StagedPending,
	}, true
}

func dominantBase(sol, usdc, usdt decimal.Decimal) (string, decimal.Decimal) {
	symbol, delta := "SOL", sol
	if usdc.Abs().GreaterThan(delta.Abs()) {
		symbol, delta = "USDC", usdc
	}
	if usdt.Abs().GreaterThan(delta.Abs()) {
		symbol, delta = "USDT", usdt
	}
	return symbol, delta
}

func validAddresses(addresses []string) []string {
	out := make([]string, 0, len(addresses))
	for _, raw := range addresses {
		addr := strings.TrimSpace(raw)
		if addr == "" {
			continue
		}
		decoded, err := base58.Decode(addr)
		if err != nil || len(decoded) != 32 {
			continue
		}
		out = append(out, addr)
	}
	return out
}
