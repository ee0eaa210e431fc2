package httpapi

import (
	"io"
	"net/http"

	"voice-agent-platform/internal/batch"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/voice"
	"voice-agent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type initiateCallRequest struct {
	AgentID            string `json:"agent_id"`
	PhoneNumber        string `json:"phone_number"`
	UserID             string `json:"user_id"`
	ContactName        string `json:"contact_name"`
	AgentPhoneNumberID string `json:"agent_phone_number_id"`
	IdempotencyKey     string `json:"idempotency_key"`
}

// InitiateCall places one outbound call. The idempotency key may come from the
// body or the Idempotency-Key header.
func (h Handlers) InitiateCall(c *gin.Context) {
	if h.Calls == nil {
		notConfigured(c, "calls")
		return
	}
	var req initiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	userID, ok := actingUser(c, req.UserID)
	if !ok {
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader("Idempotency-Key")
	}

	res, err := h.Calls.Initiate(c.Request.Context(), calls.InitiateRequest{
		UserID:             userID,
		AgentID:            req.AgentID,
		PhoneNumber:        req.PhoneNumber,
		ContactName:        req.ContactName,
		AgentPhoneNumberID: req.AgentPhoneNumberID,
		IdempotencyKey:     key,
	})
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"conversationId": res.ConversationID,
		"callHistoryId":  res.CallHistoryID,
		"callSid":        res.CallSID,
		"replayed":       res.Replayed,
	})
}

type checkStatusRequest struct {
	ConversationID string `json:"conversation_id"`
}

func (h Handlers) CheckCallStatus(c *gin.Context) {
	if h.Status == nil {
		notConfigured(c, "status checker")
		return
	}
	var req checkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	userID, ok := actingUser(c, "")
	if !ok {
		return
	}
	res, err := h.Status.Check(c.Request.Context(), userID, req.ConversationID)
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": res.Status, "is_completed": res.IsCompleted})
}

// BatchCalling relays one batch action. Success bodies are the provider's,
// byte for byte; provider failures keep the provider's status.
func (h Handlers) BatchCalling(c *gin.Context) {
	if h.Batches == nil {
		notConfigured(c, "batch calling")
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	req, err := batch.DecodeRequest(body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, ok := actingUser(c, "")
	if !ok {
		return
	}

	out, err := h.Batches.Do(c.Request.Context(), userID, req)
	if err != nil {
		if apiErr, ok := voice.AsAPIError(err); ok {
			c.AbortWithStatusJSON(providerStatus(apiErr), gin.H{"error": apiErr.Error(), "details": apiErr.Details()})
			return
		}
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.FromGin(c).Error("batch calling failed", "action", req.Action(), "err", err)
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", out)
}

func (h Handlers) ListBatchCalls(c *gin.Context) {
	if h.Batches == nil {
		notConfigured(c, "batch calling")
		return
	}
	userID, ok := actingUser(c, "")
	if !ok {
		return
	}
	rows, err := h.Batches.List(c.Request.Context(), userID, queryInt(c, "limit", 50))
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch_calls": rows})
}
