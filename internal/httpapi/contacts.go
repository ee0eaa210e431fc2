package httpapi

import (
	"net/http"

	"voice-agent-platform/internal/contacts"
	"voice-agent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type contactContextRequest struct {
	PhoneNumber string `json:"phone_number"`
	CallerID    string `json:"caller_id"`
	AgentID     string `json:"agent_id"`
}

// ContactContext answers the provider's conversation-initiation webhook with
// what is known about the caller.
func (h Handlers) ContactContext(c *gin.Context) {
	if h.CallerContext == nil {
		notConfigured(c, "contact context")
		return
	}
	var req contactContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	phoneNumber := req.PhoneNumber
	if phoneNumber == "" {
		phoneNumber = req.CallerID
	}
	if phoneNumber == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone_number is required"})
		return
	}

	cc, err := h.CallerContext.Build(c.Request.Context(), phoneNumber, req.AgentID)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.FromGin(c).Error("caller context failed", "err", err)
			c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
			return
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"context_found":      cc.ContextFound,
		"contact_context":    cc.Contact,
		"agent_instructions": cc.AgentInstructions,
		"dynamic_variables":  cc.DynamicVariables,
	})
}

func (h Handlers) ListContacts(c *gin.Context) {
	if h.Contacts == nil {
		notConfigured(c, "contacts")
		return
	}
	userID, ok := actingUser(c, "")
	if !ok {
		return
	}
	rows, err := h.Contacts.List(c.Request.Context(), userID, queryInt(c, "limit", 100))
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": rows})
}

func (h Handlers) SaveContact(c *gin.Context) {
	if h.Contacts == nil {
		notConfigured(c, "contacts")
		return
	}
	var in contacts.Contact
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	userID, ok := actingUser(c, in.UserID)
	if !ok {
		return
	}
	in.UserID = userID

	saved, err := h.Contacts.Save(c.Request.Context(), in)
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contact": saved})
}

func (h Handlers) RecordInteraction(c *gin.Context) {
	if h.Contacts == nil {
		notConfigured(c, "contacts")
		return
	}
	var req contacts.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "phone is required"})
		return
	}
	userID, ok := actingUser(c, req.UserID)
	if !ok {
		return
	}
	req.UserID = userID

	contact, interaction, err := h.Contacts.RecordInteraction(c.Request.Context(), req)
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contact": contact, "interaction": interaction})
}

func (h Handlers) ListAgents(c *gin.Context) {
	if h.Agents == nil {
		notConfigured(c, "agents")
		return
	}
	userID, ok := actingUser(c, "")
	if !ok {
		return
	}
	rows, err := h.Agents.List(c.Request.Context(), userID)
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": rows})
}
