package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"walletpulse/internal/repository"
)

type SignalHandler struct {
	Repo repository.Repository
}

func (h *SignalHandler) Register(r *gin.Engine) {
	r.GET("/api/signals", h.listSignals)
}

// @Summary List consensus signals
// @Tags signals
// @Param status query string false "active, executed, or expired"
// @Param token_id query string false "filter by token mint"
// @Param wallet_id query int false "filter by originating wallet"
// @Param since query string false "RFC3339 lower bound on creation"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} map[string]any
// @Router /api/signals [get]
func (h *SignalHandler) listSignals(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	params := repository.ListSignalsParams{
		Limit:    limit,
		Offset:   offset,
		Status:   strQueryPtr(c, "status"),
		TokenID:  strQueryPtr(c, "token_id"),
		WalletID: uint64QueryPtr(c, "wallet_id"),
		Since:    timeQueryPtr(c, "since"),
		OrderBy:  "created_at",
		Asc:      boolPtr(false),
	}
	items, err := h.Repo.ListSignals(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountSignals(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	List(c, items, limit, offset, total)
}
