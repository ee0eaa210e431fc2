package httpapi

import (
	"net/http"
	"strings"

	"voice-agent-platform/internal/audit"

	"github.com/gin-gonic/gin"
)

// AdminListAudit returns one account's audit trail. Mounted behind an admin
// role check.
func (h Handlers) AdminListAudit(c *gin.Context) {
	if h.Audit == nil {
		notConfigured(c, "audit")
		return
	}
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	events, err := h.Audit.List(c.Request.Context(), audit.Query{
		UserID: userID,
		Type:   audit.EventType(strings.TrimSpace(c.Query("type"))),
		Limit:  queryInt(c, "limit", 50),
	})
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
