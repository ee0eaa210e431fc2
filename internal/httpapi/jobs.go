package httpapi

import (
	"net/http"
	"strconv"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/scheduling"
	"voice-agent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CheckScheduledTasks is the cron trigger for the scheduled-call executor.
func (h Handlers) CheckScheduledTasks(c *gin.Context) {
	if h.Scheduler == nil {
		notConfigured(c, "scheduler")
		return
	}
	res, err := h.Scheduler.Run(c.Request.Context())
	if err != nil {
		functionError(c, err)
		return
	}
	if res.AnalyticsError != "" {
		logger.FromGin(c).Warn("analytics backfill after scheduled run failed", "err", res.AnalyticsError)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"skipped":        res.Skipped,
		"executedTasks":  res.ExecutedTasks,
		"failedTasks":    res.FailedTasks,
		"missedTasks":    res.MissedTasks,
		"details":        res.Details,
		"analytics":      res.Analytics,
		"analyticsError": res.AnalyticsError,
	})
}

// ProcessConversationAnalytics is the cron trigger for the analytics backfill.
func (h Handlers) ProcessConversationAnalytics(c *gin.Context) {
	if h.Analytics == nil {
		notConfigured(c, "analytics")
		return
	}
	res, err := h.Analytics.Run(c.Request.Context())
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"processed": res.Processed,
		"ok":        res.OK,
		"pending":   res.Pending,
		"failed":    res.Failed,
		"details":   res.Details,
	})
}

func (h Handlers) ListConversationAnalytics(c *gin.Context) {
	if h.Conversations == nil {
		notConfigured(c, "analytics")
		return
	}
	userID, ok := actingUser(c, c.Query("user_id"))
	if !ok {
		return
	}
	rows, err := h.Conversations.ListByUser(c.Request.Context(), userID, queryInt(c, "limit", 50))
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": rows})
}

func (h Handlers) ScheduleCall(c *gin.Context) {
	if h.ScheduledCalls == nil {
		notConfigured(c, "scheduled calls")
		return
	}
	var req scheduling.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "phone_number and scheduled_at are required"})
		return
	}
	userID, ok := actingUser(c, "")
	if !ok {
		return
	}
	sc, err := h.ScheduledCalls.Schedule(c.Request.Context(), userID, req)
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "scheduled_call": sc})
}

func (h Handlers) ListScheduledCalls(c *gin.Context) {
	if h.ScheduledCalls == nil {
		notConfigured(c, "scheduled calls")
		return
	}
	userID, ok := actingUser(c, "")
	if !ok {
		return
	}
	rows, err := h.ScheduledCalls.List(c.Request.Context(), userID, queryInt(c, "limit", 50))
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduled_calls": rows})
}

func (h Handlers) CancelScheduledCall(c *gin.Context) {
	if h.ScheduledCalls == nil {
		notConfigured(c, "scheduled calls")
		return
	}
	userID, ok := actingUser(c, "")
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.ScheduledCalls.Cancel(c.Request.Context(), userID, id); err != nil {
		functionError(c, err)
		return
	}
	if h.Audit != nil {
		ctx := c.Request.Context()
		actor, _ := auth.UserID(ctx)
		role, _ := auth.Role(ctx)
		if err := h.Audit.LogScheduleCancelled(ctx, userID, actor, role, c.ClientIP(), id); err != nil {
			logger.FromGin(c).Warn("audit write failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
