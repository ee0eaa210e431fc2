package credits

import (
	"context"
	"net/http"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/rbac"
	"voice-agent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// BalanceReader is the minimal credits interface needed by middleware.
type BalanceReader interface {
	GetBalance(ctx context.Context, userID string) (Balance, error)
}

// RequireCredits blocks user requests when the caller's balance is not positive.
// Admins and service-key callers pass through.
func RequireCredits(svc BalanceReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if auth.IsService(ctx) {
			c.Next()
			return
		}
		role, _ := auth.Role(ctx)
		if rbac.IsAdmin(role) {
			c.Next()
			return
		}
		userID, err := auth.UserID(ctx)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "user_id required"})
			return
		}

		bal, err := svc.GetBalance(ctx, userID)
		if err != nil {
			logger.FromGin(c).Error("balance lookup failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "balance lookup failed"})
			return
		}
		if bal.Credits <= 0 {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"success": false, "error": "insufficient credits"})
			return
		}
		c.Next()
	}
}
