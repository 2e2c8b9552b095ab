package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Base-currency mints. Everything else is treated as a target token.
const (
	MintWSOL = "So11111111111111111111111111111111111111112"
	MintUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	MintUSDT = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

const lamportsPerSOL = 1_000_000_000

// RawSwap is the dialect-agnostic view of one transaction. Both webhook
// shapes reduce to it; the normalizer only ever sees this form.
type RawSwap struct {
	Signature string
	Timestamp time.Time
	Dex       string
	IsSwap    bool

	// Participant addresses in probing order: the explicit account list,
	// then native transfer parties, then token transfer parties.
	Accounts               []string
	NativeTransferAccounts []string
	TokenTransferAccounts  []string

	// NativeDeltas holds each account's SOL balance change in SOL units.
	NativeDeltas map[string]decimal.Decimal
	// TokenDeltas holds each owner's per-mint balance change in UI units.
	TokenDeltas map[string]map[string]decimal.Decimal
}

// ParseBatch flattens a provider payload into raw swaps. It accepts the
// enhanced dialect (objects carrying accountData, singly, as an array, or
// under a transactions key) and the RPC dialect (array or {data:[...]} of
// transaction+meta objects). Valid JSON in an unrecognized shape yields zero
// records and no error: providers send heartbeats and unrelated batches.
func ParseBatch(raw []byte) ([]RawSwap, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("malformed payload: invalid json")
	}

	switch trimmed[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, fmt.Errorf("malformed payload: %w", err)
		}
		return parseElements(elems, 0), nil
	case '{':
		return parseEnvelope(trimmed), nil
	default:
		return nil, nil
	}
}

func parseEnvelope(raw []byte) []RawSwap {
	var peek struct {
		Data         []json.RawMessage `json:"data"`
		Transactions []json.RawMessage `json:"transactions"`
		AccountData  []json.RawMessage `json:"accountData"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return nil
	}

	switch {
	case len(peek.Data) > 0:
		// RPC envelope: data is a list of blocks, each carrying blockTime
		// and its own transactions.
		var out []RawSwap
		for _, blockRaw := range peek.Data {
			var block struct {
				BlockTime    int64             `json:"blockTime"`
				Transactions []json.RawMessage `json:"transactions"`
			}
			if err := json.Unmarshal(blockRaw, &block); err != nil {
				continue
			}
			if len(block.Transactions) > 0 {
				out = append(out, parseElements(block.Transactions, block.BlockTime)...)
				continue
			}
			// A data element may itself be a bare transaction.
			if swap, ok := parseRPCTx(blockRaw, 0); ok {
				out = append(out, swap)
			}
		}
		return out
	case len(peek.Transactions) > 0:
		return parseElements(peek.Transactions, 0)
	case len(peek.AccountData) > 0:
		if swap, ok := parseEnhancedTx(raw); ok {
			return []RawSwap{swap}
		}
		return nil
	default:
		return nil
	}
}

func parseElements(elems []json.RawMessage, blockTime int64) []RawSwap {
	out := make([]RawSwap, 0, len(elems))
	for _, elem := range elems {
		var peek struct {
			Transaction json.RawMessage `json:"transaction"`
			Meta        json.RawMessage `json:"meta"`
			Signature   string          `json:"signature"`
		}
		if err := json.Unmarshal(elem, &peek); err != nil {
			continue
		}
		if len(peek.Transaction) > 0 || len(peek.Meta) > 0 {
			if swap, ok := parseRPCTx(elem, blockTime); ok {
				out = append(out, swap)
			}
			continue
		}
		if peek.Signature != "" {
			if swap, ok := parseEnhancedTx(elem); ok {
				out = append(out, swap)
			}
		}
	}
	return out
}

// --- enhanced dialect --------------------------------------------------------

type enhancedTx struct {
	Signature   string `json:"signature"`
	Timestamp   int64  `json:"timestamp"`
	Type        string `json:"type"`
	Source      string `json:"source"`
	AccountData []struct {
		Account             string `json:"account"`
		NativeBalanceChange int64  `json:"nativeBalanceChange"`
		TokenBalanceChanges []struct {
			UserAccount    string `json:"userAccount"`
			Mint           string `json:"mint"`
			RawTokenAmount struct {
				TokenAmount string `json:"tokenAmount"`
				Decimals    int32  `json:"decimals"`
			} `json:"rawTokenAmount"`
		} `json:"tokenBalanceChanges"`
	} `json:"accountData"`
	NativeTransfers []struct {
		FromUserAccount string `json:"fromUserAccount"`
		ToUserAccount   string `json:"toUserAccount"`
		Amount          int64  `json:"amount"`
	} `json:"nativeTransfers"`
	TokenTransfers []struct {
		FromUserAccount string  `json:"fromUserAccount"`
		ToUserAccount   string  `json:"toUserAccount"`
		Mint            string  `json:"mint"`
		TokenAmount     float64 `json:"tokenAmount"`
	} `json:"tokenTransfers"`
}

func parseEnhancedTx(raw []byte) (RawSwap, bool) {
	var tx enhancedTx
	if err := json.Unmarshal(raw, &tx); err != nil {
		return RawSwap{}, false
	}
	if strings.TrimSpace(tx.Signature) == "" {
		return RawSwap{}, false
	}

	swap := RawSwap{
		Signature:    tx.Signature,
		Timestamp:    time.Unix(tx.Timestamp, 0).UTC(),
		Dex:          strings.ToLower(strings.TrimSpace(tx.Source)),
		IsSwap:       strings.EqualFold(strings.TrimSpace(tx.Type), "SWAP"),
		NativeDeltas: map[string]decimal.Decimal{},
		TokenDeltas:  map[string]map[string]decimal.Decimal{},
	}

	for _, acct := range tx.AccountData {
		account := strings.TrimSpace(acct.Account)
		if account == "" {
			continue
		}
		swap.Accounts = append(swap.Accounts, account)
		if acct.NativeBalanceChange != 0 {
			delta := decimal.New(acct.NativeBalanceChange, 0).Div(decimal.New(lamportsPerSOL, 0))
			swap.NativeDeltas[account] = swap.NativeDeltas[account].Add(delta)
		}
		for _, change := range acct.TokenBalanceChanges {
			owner := strings.TrimSpace(change.UserAccount)
			mint := strings.TrimSpace(change.Mint)
			if owner == "" || mint == "" {
				continue
			}
			rawAmount, err := decimal.NewFromString(strings.TrimSpace(change.RawTokenAmount.TokenAmount))
			if err != nil {
				continue
			}
			delta := rawAmount.Shift(-change.RawTokenAmount.Decimals)
			addTokenDelta(swap.TokenDeltas, owner, mint, delta)
		}
	}
	for _, tr := range tx.NativeTransfers {
		swap.NativeTransferAccounts = appendAccount(swap.NativeTransferAccounts, tr.FromUserAccount)
		swap.NativeTransferAccounts = appendAccount(swap.NativeTransferAccounts, tr.ToUserAccount)
	}
	for _, tr := range tx.TokenTransfers {
		swap.TokenTransferAccounts = appendAccount(swap.TokenTransferAccounts, tr.FromUserAccount)
		swap.TokenTransferAccounts = appendAccount(swap.TokenTransferAccounts, tr.ToUserAccount)
	}
	return swap, true
}

// --- RPC dialect -------------------------------------------------------------

type rpcTx struct {
	BlockTime   int64 `json:"blockTime"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			AccountKeys []json.RawMessage `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
	Meta *struct {
		Err               any               `json:"err"`
		PreBalances       []int64           `json:"preBalances"`
		PostBalances      []int64           `json:"postBalances"`
		PreTokenBalances  []rpcTokenBalance `json:"preTokenBalances"`
		PostTokenBalances []rpcTokenBalance `json:"postTokenBalances"`
	} `json:"meta"`
}

type rpcTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount   string `json:"amount"`
		Decimals int32  `json:"decimals"`
	} `json:"uiTokenAmount"`
}

func parseRPCTx(raw []byte, blockTime int64) (RawSwap, bool) {
	var tx rpcTx
	if err := json.Unmarshal(raw, &tx); err != nil {
		return RawSwap{}, false
	}
	if len(tx.Transaction.Signatures) == 0 || tx.Meta == nil {
		return RawSwap{}, false
	}

	ts := tx.BlockTime
	if ts == 0 {
		ts = blockTime
	}

	keys := make([]string, 0, len(tx.Transaction.Message.AccountKeys))
	for _, rawKey := range tx.Transaction.Message.AccountKeys {
		keys = append(keys, decodeAccountKey(rawKey))
	}

	swap := RawSwap{
		Signature: tx.Transaction.Signatures[0],
		Timestamp: time.Unix(ts, 0).UTC(),
		Dex:       "unknown",
		// The RPC shape carries no event type; a successful transaction
		// that moved token balances is treated as a swap candidate.
		IsSwap:       tx.Meta.Err == nil && (len(tx.Meta.PreTokenBalances) > 0 || len(tx.Meta.PostTokenBalances) > 0),
		NativeDeltas: map[string]decimal.Decimal{},
		TokenDeltas:  map[string]map[string]decimal.Decimal{},
	}

	for i, key := range keys {
		if key == "" {
			continue
		}
		swap.Accounts = append(swap.Accounts, key)
		if i < len(tx.Meta.PreBalances) && i < len(tx.Meta.PostBalances) {
			diff := tx.Meta.PostBalances[i] - tx.Meta.PreBalances[i]
			if diff != 0 {
				delta := decimal.New(diff, 0).Div(decimal.New(lamportsPerSOL, 0))
				swap.NativeDeltas[key] = swap.NativeDeltas[key].Add(delta)
			}
		}
	}

	pre := tokenBalancesByOwnerMint(tx.Meta.PreTokenBalances, keys)
	post := tokenBalancesByOwnerMint(tx.Meta.PostTokenBalances, keys)
	for ownerMint, postAmount := range post {
		delta := postAmount.Sub(pre[ownerMint])
		if delta.IsZero() {
			continue
		}
		addTokenDelta(swap.TokenDeltas, ownerMint.owner, ownerMint.mint, delta)
		swap.TokenTransferAccounts = appendAccount(swap.TokenTransferAccounts, ownerMint.owner)
	}
	for ownerMint, preAmount := range pre {
		if _, ok := post[ownerMint]; ok {
			continue
		}
		// Token account emptied and closed: post entry missing.
		addTokenDelta(swap.TokenDeltas, ownerMint.owner, ownerMint.mint, preAmount.Neg())
		swap.TokenTransferAccounts = appendAccount(swap.TokenTransferAccounts, ownerMint.owner)
	}

	return swap, true
}

type ownerMintKey struct {
	owner string
	mint  string
}

func tokenBalancesByOwnerMint(balances []rpcTokenBalance, keys []string) map[ownerMintKey]decimal.Decimal {
	out := map[ownerMintKey]decimal.Decimal{}
	for _, bal := range balances {
		owner := strings.TrimSpace(bal.Owner)
		if owner == "" && bal.AccountIndex >= 0 && bal.AccountIndex < len(keys) {
			owner = keys[bal.AccountIndex]
		}
		mint := strings.TrimSpace(bal.Mint)
		if owner == "" || mint == "" {
			continue
		}
		rawAmount, err := decimal.NewFromString(strings.TrimSpace(bal.UITokenAmount.Amount))
		if err != nil {
			continue
		}
		key := ownerMintKey{owner: owner, mint: mint}
		out[key] = out[key].Add(rawAmount.Shift(-bal.UITokenAmount.Decimals))
	}
	return out
}

func decodeAccountKey(raw json.RawMessage) string {
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return strings.TrimSpace(plain)
	}
	var wrapped struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return strings.TrimSpace(wrapped.Pubkey)
	}
	return ""
}

// --- shared helpers ----------------------------------------------------------

func addTokenDelta(deltas map[string]map[string]decimal.Decimal, owner, mint string, delta decimal.Decimal) {
	if deltas[owner] == nil {
		deltas[owner] = map[string]decimal.Decimal{}
	}
	deltas[owner][mint] = deltas[owner][mint].Add(delta)
}

func appendAccount(list []string, account string) []string {
	account = strings.TrimSpace(account)
	if account == "" {
		return list
	}
	for _, existing := range list {
		if existing == account {
			return list
		}
	}
	return append(list, account)
}
