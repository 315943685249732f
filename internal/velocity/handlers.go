package velocity

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fraudguard/fraudguard/internal/validation"
)

// Handler provides HTTP handlers for the velocity gates.
type Handler struct {
	service *Service
}

// NewHandler creates a new velocity handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the velocity routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/events/device", h.LogDevice)
	r.POST("/checkout/clearance", h.Clearance)
}

// DeviceEventRequest is the body of POST /v1/events/device. The
// User-Agent header fills in when the body omits it.
type DeviceEventRequest struct {
	Email     string `json:"email"`
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
}

// LogDevice handles POST /v1/events/device
func (h *Handler) LogDevice(c *gin.Context) {
	var req DeviceEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}
	if req.IP == "" {
		req.IP = c.ClientIP()
	}

	if errs := validation.Validate(
		validation.ValidEmail("email", req.Email),
		validation.ValidIP("ip", req.IP),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
		})
		return
	}

	res, err := h.service.LogDevice(c.Request.Context(), req.Email, req.IP, req.UserAgent)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to log device event",
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

// ClearanceRequest is the body of POST /v1/checkout/clearance.
type ClearanceRequest struct {
	Email string `json:"email"`
}

// Clearance handles POST /v1/checkout/clearance
func (h *Handler) Clearance(c *gin.Context) {
	var req ClearanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("email", req.Email),
		validation.ValidEmail("email", req.Email),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
		})
		return
	}

	res, err := h.service.CheckoutClearance(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to check clearance",
		})
		return
	}

	if !res.Allowed {
		c.JSON(http.StatusForbidden, res)
		return
	}
	c.JSON(http.StatusOK, res)
}
