package httpapi

import (
	"net/http"

	"voice-agent-platform/internal/llm"

	"github.com/gin-gonic/gin"
)

func (h Handlers) LLMCompletion(c *gin.Context) {
	if h.LLM == nil {
		notConfigured(c, "OPENAI_API_KEY")
		return
	}
	var req llm.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "messages array is required"})
		return
	}
	res, err := h.LLM.Complete(c.Request.Context(), req)
	if err != nil {
		functionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       res.Message,
		"tokens_used":   res.TokensUsed,
		"finish_reason": res.FinishReason,
		"model":         res.Model,
	})
}
