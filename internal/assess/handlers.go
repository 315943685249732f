package assess

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fraudguard/fraudguard/internal/pagination"
	"github.com/fraudguard/fraudguard/internal/validation"
)

// Handler provides HTTP handlers for the assessment API.
type Handler struct {
	engine *Engine
}

// NewHandler creates a new assessment handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes sets up the assessment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/assess/checkout", h.Checkout)
	r.POST("/assess/login", h.Login)
	r.POST("/assess/scan", h.Scan)
	r.GET("/assessments", h.List)
}

// Checkout handles POST /v1/assess/checkout
func (h *Handler) Checkout(c *gin.Context) {
	var req CheckoutRequest
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
		validation.ValidIP("ip", req.IP),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
		})
		return
	}

	a, err := h.engine.AssessCheckout(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusOK
	if a.Decision == DecisionBlock {
		status = http.StatusForbidden
	}
	c.JSON(status, a)
}

// Login handles POST /v1/assess/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
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
		validation.ValidIP("ip", req.IP),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
		})
		return
	}

	a, err := h.engine.AssessLogin(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	// Login never blocks; banned accounts still answer 403
	status := http.StatusOK
	if a.Decision == DecisionBlock {
		status = http.StatusForbidden
	}
	c.JSON(status, a)
}

// Scan handles POST /v1/assess/scan
func (h *Handler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("url", req.URL),
		validation.ValidURL("url", req.URL),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
		})
		return
	}

	a, err := h.engine.AssessScan(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// List handles GET /v1/assessments?flow=checkout&suspicious=true&limit=50
func (h *Handler) List(c *gin.Context) {
	filter := ListFilter{
		Flow:           Flow(c.Query("flow")),
		SuspiciousOnly: c.Query("suspicious") == "true",
	}
	if limit, ok := parseLimit(c.Query("limit")); ok {
		filter.Limit = limit
	}

	after, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "Cursor is malformed",
		})
		return
	}
	filter.After = after

	out, next, err := h.engine.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list assessments",
		})
		return
	}
	if out == nil {
		out = []*Assessment{}
	}
	resp := gin.H{
		"assessments": out,
		"count":       len(out),
	}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) fail(c *gin.Context, err error) {
	if errors.Is(err, ErrEmptyRequest) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Failed to assess request",
	})
}

func parseLimit(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > DefaultListLimit {
		n = DefaultListLimit
	}
	return n, true
}
