package trades

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradelane/trade-portal/trade-portal-backend/internal/auth"
)

// Handler exposes the kernel over HTTP
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new trades handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the trade routes behind the given auth middleware
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, authenticate gin.HandlerFunc) {
	trades := router.Group("/trades", authenticate)
	{
		trades.POST("/transition", h.transition)
		trades.GET("/:id/events", h.listEvents)
	}
}

// transition handles POST /api/v1/trades/transition
func (h *Handler) transition(c *gin.Context) {
	caller, ok := auth.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthenticated"})
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":     false,
			"reason_code": "invalid_body",
			"error":       err.Error(),
		})
		return
	}

	result, err := h.service.Transition(c.Request.Context(), caller, req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// listEvents handles GET /api/v1/trades/:id/events
func (h *Handler) listEvents(c *gin.Context) {
	caller, ok := auth.CallerFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthenticated"})
		return
	}

	tradeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid trade id"})
		return
	}

	events, err := h.service.History(c.Request.Context(), caller, tradeID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    events,
		"count":   len(events),
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var reqErr *RequestError
	var kernelErr *KernelError

	switch {
	case errors.As(err, &reqErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success":     false,
			"reason_code": reqErr.Code,
			"error":       reqErr.Error(),
		})
	case errors.Is(err, ErrTradeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": err.Error()})
	case errors.As(err, &kernelErr):
		c.JSON(http.StatusInternalServerError, kernelErr.Result)
	default:
		h.logger.Error("Trade request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	}
}
