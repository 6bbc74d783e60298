package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fx-eod-service/internal/database"
	"fx-eod-service/internal/models"
	"fx-eod-service/internal/services"
	"fx-eod-service/pkg/common"
)

// TradingHandler serves the trading front end's pre-transaction lock check
// and the currency master it renders rate boards from.
type TradingHandler struct {
	Gate *services.TradingGateService
}

func NewTradingHandler(gate *services.TradingGateService) *TradingHandler {
	return &TradingHandler{Gate: gate}
}

func (h *TradingHandler) CheckLock(c *gin.Context) {
	branchID, err := strconv.Atoi(c.Query("branch_id"))
	if err != nil || branchID <= 0 {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("invalid branch_id", nil, http.StatusBadRequest))
		return
	}

	state, err := h.Gate.CheckLock(c.Request.Context(), branchID)
	if err != nil {
		respondError(c, err)
		return
	}
	if state.IsLocked {
		status := common.HTTPStatus(common.KindBranchLockedForTrading)
		c.JSON(status, common.NewErrorResponse("branch is locked for end-of-day processing", state, status))
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(state, "Branch open for trading"))
}

func (h *TradingHandler) ListCurrencies(c *gin.Context) {
	var currencies []models.Currency
	if err := database.DB.Order("code ASC").Find(&currencies).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(currencies, "Currencies fetched"))
}

func (h *TradingHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/trading/lock-status", h.CheckLock)
	r.GET("/currencies", h.ListCurrencies)
}
