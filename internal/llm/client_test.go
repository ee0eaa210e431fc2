package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"voice-agent-platform/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
		}`)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini"}, WithBaseURL(srv.URL+"/v1"))
	require.NotNil(t, c)

	res, err := c.Complete(context.Background(), CompletionRequest{
		Messages:  []Message{{Role: "user", Content: "Say hello"}},
		MaxTokens: 99999,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", res.Message)
	assert.Equal(t, 7, res.TokensUsed)
	assert.Equal(t, "stop", res.FinishReason)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, maxMaxTokens, got["max_tokens"])
}

func TestComplete_NotConfigured(t *testing.T) {
	c := NewClient(config.OpenAIConfig{})
	_, err := c.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: "user", Content: "x"}}})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestComplete_RequiresMessages(t *testing.T) {
	c := NewClient(config.OpenAIConfig{APIKey: "sk-test"})
	_, err := c.Complete(context.Background(), CompletionRequest{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
