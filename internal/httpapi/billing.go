package httpapi

import (
	"errors"
	"io"
	"net/http"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/billing"
	"voice-agent-platform/internal/credits"
	"voice-agent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type createCheckoutRequest struct {
	PackageID string `json:"packageId" binding:"required"`
	IsAnnual  bool   `json:"isAnnual"`
	Email     string `json:"email"`
}

func (h Handlers) CreateCheckout(c *gin.Context) {
	if h.Billing == nil {
		notConfigured(c, "payments")
		return
	}
	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "packageId is required"})
		return
	}
	userID, ok := actingUser(c, "")
	if !ok {
		return
	}

	res, err := h.Billing.CreateCheckout(c.Request.Context(), userID, req.Email, req.PackageID, req.IsAnnual)
	if err != nil {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError && !isConfigError(err) {
			logger.FromGin(c).Error("checkout failed", "package", req.PackageID, "err", err)
			msg = "checkout failed"
		}
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
		return
	}
	if res.URL != "" {
		c.JSON(http.StatusOK, gin.H{"url": res.URL})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h Handlers) ListPackages(c *gin.Context) {
	if h.Billing == nil {
		notConfigured(c, "payments")
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": h.Billing.Packages()})
}

// StripeWebhook verifies and applies a Stripe event. The raw body is needed
// for signature verification, so it must not be bound first.
func (h Handlers) StripeWebhook(c *gin.Context) {
	if h.Billing == nil {
		notConfigured(c, "payments")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if err := h.Billing.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		if errors.Is(err, billing.ErrSignature) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.FromGin(c).Error("stripe webhook failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h Handlers) GetCreditBalance(c *gin.Context) {
	if h.Credits == nil {
		notConfigured(c, "credits")
		return
	}
	userID, ok := actingUser(c, c.Query("user_id"))
	if !ok {
		return
	}
	bal, err := h.Credits.GetBalance(c.Request.Context(), userID)
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

type adminGrantRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	Reason         string `json:"reason" binding:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

// AdminGrantCredits is mounted behind an admin role check.
func (h Handlers) AdminGrantCredits(c *gin.Context) {
	if h.Credits == nil {
		notConfigured(c, "credits")
		return
	}
	var req adminGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "user_id, amount and reason are required"})
		return
	}
	ctx := c.Request.Context()
	adminID, err := auth.UserID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "user_id required"})
		return
	}
	role, _ := auth.Role(ctx)
	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader("Idempotency-Key")
	}

	action, entry, bal, err := h.Credits.AdminGrant(ctx, req.UserID, adminID, role, credits.AdminGrantRequest{
		Amount:         req.Amount,
		Reason:         req.Reason,
		IdempotencyKey: key,
	})
	if err != nil {
		functionError(c, err)
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogCreditGrant(ctx, req.UserID, adminID, role, c.ClientIP(), entry.ID, req.Amount, req.Reason); err != nil {
			logger.FromGin(c).Warn("audit write failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"action": action, "entry": entry, "balance": bal})
}
