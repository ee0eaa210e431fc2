package main

import (
	"database/sql"
	"net/http"
	"time"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/credits"
	"voice-agent-platform/internal/httpapi"
	"voice-agent-platform/internal/metrics"
	"voice-agent-platform/internal/rbac"
	"voice-agent-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	handlers   httpapi.Handlers
	auth       *auth.Manager
	serviceKey string
	balances   credits.BalanceReader
	db         *sql.DB
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := d.handlers
	userAuth := auth.RequireAccessToken(d.auth)
	serviceAuth := auth.RequireServiceKey(d.serviceKey)
	needCredits := credits.RequireCredits(d.balances)

	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	// Stripe authenticates with its own signature header.
	r.POST("/webhooks/stripe", h.StripeWebhook)

	// Function-style endpoints keep their historical names.
	fn := r.Group("/functions")
	{
		fn.POST("/initiate-scheduled-call", auth.RequireUserOrService(d.auth, d.serviceKey), rbac.RequireUser(), needCredits, h.InitiateCall)
		fn.POST("/check-call-status", userAuth, h.CheckCallStatus)
		fn.POST("/elevenlabs-batch-calling", userAuth, rbac.RequireUser(), needCredits, h.BatchCalling)
		fn.POST("/create-checkout", userAuth, rbac.RequireUser(), h.CreateCheckout)
		fn.POST("/llm-completion", userAuth, rbac.RequireUser(), h.LLMCompletion)

		// cron triggers and provider webhooks
		fn.POST("/check-scheduled-tasks", serviceAuth, h.CheckScheduledTasks)
		fn.POST("/process-conversation-analytics", serviceAuth, h.ProcessConversationAnalytics)
		fn.POST("/contact-context-webhook", serviceAuth, h.ContactContext)
	}

	v1 := r.Group("/v1")
	v1.Use(userAuth, rbac.RequireUser())
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
		})

		v1.GET("/agents", h.ListAgents)

		v1.GET("/contacts", h.ListContacts)
		v1.POST("/contacts", h.SaveContact)
		v1.POST("/contacts/interactions", h.RecordInteraction)

		v1.GET("/scheduled-calls", h.ListScheduledCalls)
		v1.POST("/scheduled-calls", h.ScheduleCall)
		v1.DELETE("/scheduled-calls/:id", h.CancelScheduledCall)

		v1.GET("/batch-calls", h.ListBatchCalls)
		v1.GET("/analytics/conversations", h.ListConversationAnalytics)

		v1.GET("/credits/balance", h.GetCreditBalance)
		v1.GET("/billing/packages", h.ListPackages)

		v1.GET("/reports/calls", h.CallsReport)
		v1.GET("/reports/dashboard", h.DashboardReport)

		// ADMIN routes
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.POST("/credits/grant", h.AdminGrantCredits)
			admin.GET("/audit", h.AdminListAudit)
		}
	}
}
