package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"walletpulse/internal/repository"
)

type TradeHandler struct {
	Repo repository.Repository
}

func (h *TradeHandler) Register(r *gin.Engine) {
	r.GET("/api/trades", h.listTrades)
}

// @Summary List priced trades
// @Tags trades
// @Param wallet_id query int false "filter by wallet"
// @Param token_id query string false "filter by token mint"
// @Param side query string false "buy, sell, or void"
// @Param since query string false "RFC3339 lower bound"
// @Param until query string false "RFC3339 upper bound"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} map[string]any
// @Router /api/trades [get]
func (h *TradeHandler) listTrades(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	params := repository.ListTradesParams{
		Limit:    limit,
		Offset:   offset,
		WalletID: uint64QueryPtr(c, "wallet_id"),
		TokenID:  strQueryPtr(c, "token_id"),
		Side:     strQueryPtr(c, "side"),
		Since:    timeQueryPtr(c, "since"),
		Until:    timeQueryPtr(c, "until"),
		OrderBy:  "trade_time",
		Asc:      boolPtr(false),
	}
	items, err := h.Repo.ListTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	List(c, items, limit, offset, total)
}
