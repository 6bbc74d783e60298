package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fx-eod-service/internal/services"
	"fx-eod-service/pkg/common"
)

const sessionHeader = "X-Session-Id"

type EODHandler struct {
	EOD     *services.EODService
	Exports *services.ExportService
}

func NewEODHandler(eod *services.EODService, exports *services.ExportService) *EODHandler {
	return &EODHandler{EOD: eod, Exports: exports}
}

func respondError(c *gin.Context, err error) {
	var eodErr *common.EODError
	if errors.As(err, &eodErr) {
		status := common.HTTPStatus(eodErr.Kind)
		c.JSON(status, common.NewErrorResponse(eodErr.Message, gin.H{"kind": eodErr.Kind, "details": eodErr.Data}, status))
		return
	}
	c.JSON(http.StatusInternalServerError, common.NewErrorResponse(err.Error(), nil, http.StatusInternalServerError))
}

func eodID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("invalid EOD id", nil, http.StatusBadRequest))
		return 0, false
	}
	return id, true
}

func sessionID(c *gin.Context) (string, bool) {
	session := c.GetHeader(sessionHeader)
	if session == "" {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("missing "+sessionHeader+" header", nil, http.StatusBadRequest))
		return "", false
	}
	return session, true
}

type startRequest struct {
	BranchID int    `json:"branch_id" binding:"required"`
	Operator string `json:"operator" binding:"required"`
}

func (h *EODHandler) Start(c *gin.Context) {
	session, ok := sessionID(c)
	if !ok {
		return
	}
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	eod, err := h.EOD.Start(services.StartEODRequest{
		BranchID:  req.BranchID,
		SessionID: session,
		Operator:  req.Operator,
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.NewSuccessResponse(eod, "EOD started"))
}

func (h *EODHandler) ExtractBalances(c *gin.Context) {
	id, ok := eodID(c)
	if !ok {
		return
	}
	session, ok := sessionID(c)
	if !ok {
		return
	}

	balances, err := h.EOD.ExtractBalances(id, session)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(balances, "Balances extracted"))
}

func (h *EODHandler) Calculate(c *gin.Context) {
	id, ok := eodID(c)
	if !ok {
		return
	}
	session, ok := sessionID(c)
	if !ok {
		return
	}

	calcs, err := h.EOD.Calculate(id, session)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(calcs, "Balances calculated"))
}

func (h *EODHandler) Verify(c *gin.Context) {
	id, ok := eodID(c)
	if !ok {
		return
	}
	session, ok := sessionID(c)
	if !ok {
		return
	}

	result, err := h.EOD.Verify(id, session)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(result, "Verification complete"))
}

type verificationRequest struct {
	Action string                    `json:"action" binding:"required"`
	Reason string                    `json:"reason"`
	Items  []services.AdjustmentItem `json:"items"`
}

func (h *EODHandler) HandleVerification(c *gin.Context) {
	id, ok := eodID(c)
	if !ok {
		return
	}
	session, ok := sessionID(c)
	if !ok {
		return
	}
	var req verificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	var decision services.VerifyDecision
	switch req.Action {
	case "continue":
		decision = services.ContinueDecision{}
	case "cancel":
		decision = services.CancelDecision{Reason: req.Reason}
	case "force":
		if req.Reason == "" {
			c.JSON(http.StatusBadRequest, common.NewErrorResponse("force requires a reason", nil, http.StatusBadRequest))
			return
		}
		decision = services.ForceDecision{Reason: req.Reason}
	case "adjust":
		decision = services.AdjustDecision{Items: req.Items}
	default:
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("unknown action: "+req.Action, nil, http.StatusBadRequest))
		return
	}

	outcome, err := h.EOD.HandleVerification(id, session, decision)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(outcome, "Verification handled"))
}

type adjustRequest struct {
	Items []services.AdjustmentItem `json:"items" binding:"required"`
}

func (h *EODHandler) Adjust(c *gin.Context) {
	id, ok := eodID(c)
	if !ok {
		return
	}
	session, ok := sessionID(c)
	if !ok {
		return
	}
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	outcome, err := h.EOD.AdjustDifferences(id, session, req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(outcome, "Adjustments applied"))
}

type cashOutRequest struct {
	Items []services.CashOutItem `json:"items"`
}

func (h *EODHandler) CashOut(c *gin.Context) {
	id, ok := eodID(c)
	if !ok {
		return
	}
	session, ok := sessionID(c)
	if !ok {
		return
	}
	var req cashOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	records, err := h.EOD.CashOut(id, session, req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(records, "Cash-out recorded"))
}

type printRequest struct {
	Languages []string `json:"languages"`
}

func (h *EODHandler) Print(c *gin.Context) {
	id, ok := eodID(c)
	if !ok {
		return
	}
	session, ok := sessionID(c)
	if !ok {
		return
	}
	var req printRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	files, err := h.EOD.Print(id, session, req.Languages)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(files, "Documents printed"))
}

func (h *EODHandler) GenerateReport(c *gin.Context) {
	id, ok := eodID(c)
	if !ok {
		return
	}
	session, ok := sessionID(c)
	if !ok {
		return
	}

	bundle, err := h.EOD.GenerateReport(id, session)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(bundle, "Report generated"))
}

func (h *EODHandler) Complete(c *gin.Context) {
	id, ok := eodID(c)
	if !ok {
		return
	}
	session, ok := sessionID(c)
	if !ok {
		return
	}

	eod, err := h.EOD.Complete(id, session)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(eod, "EOD completed"))
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *EODHandler) Cancel(c *gin.Context) {
	id, ok := eodID(c)
	if !ok {
		return
	}
	session, ok := sessionID(c)
	if !ok {
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	if err := h.EOD.Cancel(id, session, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(nil, "EOD cancelled"))
}

func (h *EODHandler) GetStatus(c *gin.Context) {
	branchID, err := strconv.Atoi(c.Query("branch_id"))
	if err != nil || branchID <= 0 {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("invalid branch_id", nil, http.StatusBadRequest))
		return
	}

	status, err := h.EOD.GetStatus(branchID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(status, "EOD status fetched"))
}

func (h *EODHandler) GetHistory(c *gin.Context) {
	branchID, err := strconv.Atoi(c.Query("branch_id"))
	if err != nil || branchID <= 0 {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("invalid branch_id", nil, http.StatusBadRequest))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	history, err := h.EOD.GetHistory(branchID, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// Export rebuilds the xlsx workbook on demand, without waiting for the
// queued post-completion export.
func (h *EODHandler) Export(c *gin.Context) {
	id, ok := eodID(c)
	if !ok {
		return
	}

	path, err := h.Exports.Export(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{"file_path": path}, "Workbook exported"))
}

func (h *EODHandler) GetCurrencyTransactions(c *gin.Context) {
	id, ok := eodID(c)
	if !ok {
		return
	}
	currency := c.Query("currency")
	if currency == "" {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("missing currency", nil, http.StatusBadRequest))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))

	transactions, err := h.EOD.GetCurrencyTransactions(id, currency, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transactions)
}

// RegisterRoutes wires the EOD workflow under /eod.
func (h *EODHandler) RegisterRoutes(r *gin.Engine) {
	eod := r.Group("/eod")
	{
		eod.POST("/start", h.Start)
		eod.GET("/status", h.GetStatus)
		eod.GET("/history", h.GetHistory)
		eod.POST("/:id/extract-balances", h.ExtractBalances)
		eod.POST("/:id/calculate", h.Calculate)
		eod.POST("/:id/verify", h.Verify)
		eod.POST("/:id/verification", h.HandleVerification)
		eod.POST("/:id/adjust", h.Adjust)
		eod.POST("/:id/cash-out", h.CashOut)
		eod.POST("/:id/print", h.Print)
		eod.POST("/:id/report", h.GenerateReport)
		eod.POST("/:id/complete", h.Complete)
		eod.POST("/:id/cancel", h.Cancel)
		eod.GET("/:id/transactions", h.GetCurrencyTransactions)
		eod.GET("/:id/export", h.Export)
	}
}
