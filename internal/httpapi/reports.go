package httpapi

import (
	"net/http"
	"time"

	"voice-agent-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

const defaultReportWindow = 30 * 24 * time.Hour

func (h Handlers) CallsReport(c *gin.Context) {
	if h.Reports == nil {
		notConfigured(c, "reports")
		return
	}
	r, ok := reportRange(c)
	if !ok {
		return
	}
	userID, ok := actingUser(c, c.Query("user_id"))
	if !ok {
		return
	}
	sum, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		UserID:  userID,
		Range:   r,
		AgentID: c.Query("agent_id"),
	})
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) DashboardReport(c *gin.Context) {
	if h.Reports == nil {
		notConfigured(c, "reports")
		return
	}
	r, ok := reportRange(c)
	if !ok {
		return
	}
	userID, ok := actingUser(c, c.Query("user_id"))
	if !ok {
		return
	}
	rep, err := h.Reports.Dashboard(c.Request.Context(), userID, r)
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// reportRange reads RFC3339 from/to query params, defaulting to the last 30 days.
func reportRange(c *gin.Context) (reporting.TimeRange, bool) {
	now := time.Now().UTC()
	r := reporting.TimeRange{From: now.Add(-defaultReportWindow), To: now}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return reporting.TimeRange{}, false
		}
		r.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return reporting.TimeRange{}, false
		}
		r.To = t
	}
	return r, true
}
