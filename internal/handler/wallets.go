package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"

	"walletpulse/internal/models"
	"walletpulse/internal/repository"
)

type WalletHandler struct {
	Repo repository.Repository
}

func (h *WalletHandler) Register(r *gin.Engine) {
	group := r.Group("/api/wallets")
	group.GET("", h.listWallets)
	group.POST("", h.createWallet)
}

type createWalletRequest struct {
	Address string `json:"address" binding:"required"`
	Label   string `json:"label"`
	Active  *bool  `json:"active"`
}

// @Summary List tracked wallets
// @Tags wallets
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Param active query bool false "filter by active flag"
// @Success 200 {object} map[string]any
// @Router /api/wallets [get]
func (h *WalletHandler) listWallets(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	var active *bool
	switch strings.ToLower(strings.TrimSpace(c.Query("active"))) {
	case "true", "1":
		active = boolPtr(true)
	case "false", "0":
		active = boolPtr(false)
	}

	params := repository.ListWalletsParams{
		Limit:   limit,
		Offset:  offset,
		Active:  active,
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	}
	items, err := h.Repo.ListWallets(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountWallets(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	List(c, items, limit, offset, total)
}

// @Summary Track a wallet
// @Tags wallets
// @Accept json
// @Param payload body createWalletRequest true "wallet"
// @Success 200 {object} map[string]any
// @Router /api/wallets [post]
func (h *WalletHandler) createWallet(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req createWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	address := strings.TrimSpace(req.Address)
	if decoded, err := base58.Decode(address); err != nil || len(decoded) != 32 {
		Error(c, http.StatusBadRequest, "invalid solana address", nil)
		return
	}

	if existing, err := h.Repo.GetWalletByAddress(c.Request.Context(), address); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	} else if existing != nil {
		Ok(c, existing, map[string]any{"created": false})
		return
	}

	wallet := &models.Wallet{
		Address: address,
		Label:   strings.TrimSpace(req.Label),
		Active:  true,
	}
	if req.Active != nil {
		wallet.Active = *req.Active
	}
	if err := h.Repo.CreateWallet(c.Request.Context(), wallet); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, wallet, map[string]any{"created": true})
}
