package otp

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fraudguard/fraudguard/internal/validation"
)

// Handler provides HTTP handlers for OTP sessions.
type Handler struct {
	store *Store
}

// NewHandler creates a new OTP handler.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up the OTP routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/otp", h.Issue)
	r.POST("/otp/verify", h.Verify)
}

// IssueRequest is the body of POST /v1/otp.
type IssueRequest struct {
	TransactionRef string `json:"transactionRef"`
}

// Issue handles POST /v1/otp. The code rides in the response because
// delivery channels (SMS, email) are outside this service.
func (h *Handler) Issue(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("transactionRef", req.TransactionRef),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
		})
		return
	}

	sessionID, code := h.store.Issue(req.TransactionRef)
	c.JSON(http.StatusCreated, gin.H{
		"sessionId": sessionID,
		"code":      code,
		"ttl":       h.store.ttl.Seconds(),
	})
}

// VerifyRequest is the body of POST /v1/otp/verify.
type VerifyRequest struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
}

// Verify handles POST /v1/otp/verify
func (h *Handler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("sessionId", req.SessionID),
		validation.Required("code", req.Code),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
		})
		return
	}

	res, err := h.store.Verify(req.SessionID, req.Code)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			c.JSON(http.StatusGone, gin.H{
				"error":   "session_expired",
				"message": "OTP session expired or not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to verify code",
		})
		return
	}

	switch {
	case res.Valid:
		c.JSON(http.StatusOK, res)
	case res.Locked:
		c.JSON(http.StatusLocked, res)
	default:
		c.JSON(http.StatusUnauthorized, res)
	}
}
