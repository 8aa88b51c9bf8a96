package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"resto_pos_backend/internal/allocation"
	"resto_pos_backend/internal/clients"
	"resto_pos_backend/internal/services"
	"resto_pos_backend/pkg/utils"
)

// SessionHandler holds the split session service.
type SessionHandler struct {
	sessionService services.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(ss services.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: ss}
}

// OpenSession opens (or restores) the split session for an order.
func (h *SessionHandler) OpenSession(c *gin.Context) {
	orderID := c.Param("orderId")

	var req services.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "OpenSession: Failed to bind JSON")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	view, err := h.sessionService.OpenSession(c.Request.Context(), orderID, req)
	if err != nil {
		utils.LogError(err, "OpenSession: Error from sessionService.OpenSession for order "+orderID)
		h.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetSession returns the current session with fresh totals and validation.
func (h *SessionHandler) GetSession(c *gin.Context) {
	view, err := h.sessionService.GetSession(c.Param("orderId"))
	if err != nil {
		h.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ChangeMode switches the allocation mode, regenerating default splits.
func (h *SessionHandler) ChangeMode(c *gin.Context) {
	orderID := c.Param("orderId")

	var req services.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	view, err := h.sessionService.ChangeMode(orderID, req)
	if err != nil {
		utils.LogError(err, "ChangeMode: Error from sessionService.ChangeMode for order "+orderID)
		h.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SetSplitCount regenerates MONEY-mode splits for a new count.
func (h *SessionHandler) SetSplitCount(c *gin.Context) {
	orderID := c.Param("orderId")
	n, err := strconv.Atoi(c.Query("count"))
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid split count.", err.Error()))
		return
	}

	view, err := h.sessionService.SetSplitCount(orderID, n)
	if err != nil {
		utils.LogError(err, "SetSplitCount: Error from sessionService.SetSplitCount for order "+orderID)
		h.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// SetDiscount sets the session-wide discount percentage.
func (h *SessionHandler) SetDiscount(c *gin.Context) {
	orderID := c.Param("orderId")
	percent, err := strconv.ParseFloat(c.Query("percent"), 64)
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid discount percent.", err.Error()))
		return
	}

	view, err := h.sessionService.SetDiscount(orderID, percent)
	if err != nil {
		utils.LogError(err, "SetDiscount: Error from sessionService.SetDiscount for order "+orderID)
		h.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// AddSplit appends an empty ITEM-mode split.
func (h *SessionHandler) AddSplit(c *gin.Context) {
	orderID := c.Param("orderId")
	view, err := h.sessionService.AddSplit(orderID)
	if err != nil {
		utils.LogError(err, "AddSplit: Error from sessionService.AddSplit for order "+orderID)
		h.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// RemoveSplit deletes one split.
func (h *SessionHandler) RemoveSplit(c *gin.Context) {
	orderID := c.Param("orderId")
	view, err := h.sessionService.RemoveSplit(orderID, c.Param("splitId"))
	if err != nil {
		utils.LogError(err, "RemoveSplit: Error from sessionService.RemoveSplit for order "+orderID)
		h.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// UpdateSplit applies a partial update to one split.
func (h *SessionHandler) UpdateSplit(c *gin.Context) {
	orderID := c.Param("orderId")

	var req services.UpdateSplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError(err, "UpdateSplit: Failed to bind JSON for order "+orderID)
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	view, err := h.sessionService.UpdateSplit(orderID, c.Param("splitId"), req)
	if err != nil {
		utils.LogError(err, "UpdateSplit: Error from sessionService.UpdateSplit for order "+orderID)
		h.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Pay runs the payment gate and, on success, returns the settlement handoff
// alongside the updated session view.
func (h *SessionHandler) Pay(c *gin.Context) {
	orderID := c.Param("orderId")

	var req services.PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Invalid request payload: "+err.Error(), err.Error()))
		return
	}

	handoff, view, err := h.sessionService.Pay(orderID, c.Param("splitId"), req.Channel)
	if err != nil {
		utils.LogError(err, "Pay: Error from sessionService.Pay for order "+orderID)
		h.respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"handoff": handoff, "view": view})
}

// CloseSession drops the live session; the durable backup is kept.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	h.sessionService.CloseSession(c.Param("orderId"))
	c.JSON(http.StatusOK, gin.H{"message": "Session closed"})
}

// respondSessionError maps service and engine errors onto the API envelope.
func (h *SessionHandler) respondSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "No open split session for this order.", err.Error()))
	case errors.Is(err, clients.ErrOrderNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Order not found.", err.Error()))
	case errors.Is(err, services.ErrOrderFetch):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadGateway, utils.ErrCodeUpstreamUnavailable, "Could not load the order. Please go back to the order list and retry.", err.Error()))
	case errors.Is(err, allocation.ErrSessionLocked):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeSessionLocked, "A payment has already started; structural changes are no longer allowed.", err.Error()))
	case errors.Is(err, allocation.ErrSplitNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Split not found.", err.Error()))
	case errors.Is(err, allocation.ErrSplitPaid):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "Split has already been paid.", err.Error()))
	case errors.Is(err, allocation.ErrMinimumSplits),
		errors.Is(err, allocation.ErrNoHeadroom),
		errors.Is(err, allocation.ErrWrongMode),
		errors.Is(err, allocation.ErrInvalidPercent),
		errors.Is(err, services.ErrInvalidMode),
		errors.Is(err, services.ErrInvalidChannel):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Validation failed: "+err.Error(), err.Error()))
	case errors.Is(err, services.ErrPayRejected):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusUnprocessableEntity, utils.ErrCodePayRejected, "Payment cannot proceed: the session does not reconcile or a split is incomplete.", err.Error()))
	default:
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Internal error.", "Internal error"))
	}
}
