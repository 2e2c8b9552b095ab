package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"walletpulse/internal/repository"
)

type LotHandler struct {
	Repo repository.Repository
}

func (h *LotHandler) Register(r *gin.Engine) {
	r.GET("/api/lots", h.listClosedLots)
	r.GET("/api/positions", h.listOpenPositions)
}

// @Summary List closed lots
// @Tags lots
// @Param wallet_id query int false "filter by wallet"
// @Param token_id query string false "filter by token mint"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} map[string]any
// @Router /api/lots [get]
func (h *LotHandler) listClosedLots(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	params := repository.ListLotsParams{
		Limit:    limit,
		Offset:   offset,
		WalletID: uint64QueryPtr(c, "wallet_id"),
		TokenID:  strQueryPtr(c, "token_id"),
		OrderBy:  "exit_time",
		Asc:      boolPtr(false),
	}
	items, err := h.Repo.ListClosedLots(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountClosedLots(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	List(c, items, limit, offset, total)
}

// @Summary List open positions
// @Tags lots
// @Param wallet_id query int false "filter by wallet"
// @Param token_id query string false "filter by token mint"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} map[string]any
// @Router /api/positions [get]
func (h *LotHandler) listOpenPositions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	items, err := h.Repo.ListOpenPositions(c.Request.Context(), repository.ListPositionsParams{
		Limit:    limit,
		Offset:   offset,
		WalletID: uint64QueryPtr(c, "wallet_id"),
		TokenID:  strQueryPtr(c, "token_id"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	List(c, items, limit, offset, int64(len(items)))
}
