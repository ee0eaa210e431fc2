package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/metrics"
	"voice-agent-platform/pkg/logger"

	"golang.org/x/time/rate"
)

const (
	apiKeyHeader    = "xi-api-key"
	maxResponseBody = 4 << 20
)

// Client talks to the provider REST API. Every method makes exactly one
// request; there are no retries.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

var _ Provider = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient swaps the transport, mostly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(cfg config.ProviderConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: provider api key is required", ErrInvalidArgument)
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.elevenlabs.io"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 10
	}

	c := &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) OutboundCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error) {
	if req.AgentID == "" || req.ToNumber == "" {
		return OutboundCallResult{}, fmt.Errorf("%w: agent_id and to_number are required", ErrInvalidArgument)
	}
	body, err := c.do(ctx, "outbound_call", http.MethodPost, "/v1/convai/twilio/outbound-call", nil, req)
	if err != nil {
		return OutboundCallResult{}, err
	}
	var out OutboundCallResult
	if err := json.Unmarshal(body, &out); err != nil {
		return OutboundCallResult{}, fmt.Errorf("decode outbound call response: %w", err)
	}
	out.Raw = body
	return out, nil
}

func (c *Client) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	if conversationID == "" {
		return Conversation{}, fmt.Errorf("%w: conversation_id is required", ErrInvalidArgument)
	}
	body, err := c.do(ctx, "get_conversation", http.MethodGet, "/v1/convai/conversations/"+url.PathEscape(conversationID), nil, nil)
	if err != nil {
		return Conversation{}, err
	}
	var out Conversation
	if err := json.Unmarshal(body, &out); err != nil {
		return Conversation{}, fmt.Errorf("decode conversation: %w", err)
	}
	out.Raw = body
	return out, nil
}

func (c *Client) GetAgent(ctx context.Context, agentID string) (AgentInfo, error) {
	if agentID == "" {
		return AgentInfo{}, fmt.Errorf("%w: agent_id is required", ErrInvalidArgument)
	}
	body, err := c.do(ctx, "get_agent", http.MethodGet, "/v1/convai/agents/"+url.PathEscape(agentID), nil, nil)
	if err != nil {
		return AgentInfo{}, err
	}
	var out AgentInfo
	if err := json.Unmarshal(body, &out); err != nil {
		return AgentInfo{}, fmt.Errorf("decode agent: %w", err)
	}
	return out, nil
}

func (c *Client) SubmitBatch(ctx context.Context, req BatchSubmitRequest) (json.RawMessage, error) {
	return c.do(ctx, "batch_submit", http.MethodPost, "/v1/convai/batch-calling/submit", nil, req)
}

func (c *Client) ListBatches(ctx context.Context, limit int, lastDoc string) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if lastDoc != "" {
		q.Set("last_doc", lastDoc)
	}
	return c.do(ctx, "batch_list", http.MethodGet, "/v1/convai/batch-calling/workspace", q, nil)
}

func (c *Client) GetBatch(ctx context.Context, batchID string) (json.RawMessage, error) {
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch_id is required", ErrInvalidArgument)
	}
	return c.do(ctx, "batch_get", http.MethodGet, "/v1/convai/batch-calling/"+url.PathEscape(batchID), nil, nil)
}

func (c *Client) CancelBatch(ctx context.Context, batchID string) (json.RawMessage, error) {
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch_id is required", ErrInvalidArgument)
	}
	return c.do(ctx, "batch_cancel", http.MethodPost, "/v1/convai/batch-calling/"+url.PathEscape(batchID)+"/cancel", nil, nil)
}

func (c *Client) RetryBatch(ctx context.Context, batchID string) (json.RawMessage, error) {
	if batchID == "" {
		return nil, fmt.Errorf("%w: batch_id is required", ErrInvalidArgument)
	}
	return c.do(ctx, "batch_retry", http.MethodPost, "/v1/convai/batch-calling/"+url.PathEscape(batchID)+"/retry", nil, nil)
}

// do sends one request and returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ProviderLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(op, "transport_error").Inc()
		return nil, fmt.Errorf("voice provider %s: %w", op, err)
	}
	defer resp.Body.Close()

	metrics.ProviderRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.From(ctx).Warn("voice provider error", "op", op, "status", resp.StatusCode)
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}
