package voice

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidArgument = errors.New("voice: invalid argument")

// APIError is a non-2xx response from the provider. Body holds the response
// payload, decoded as JSON when possible.
type APIError struct {
	Op         string
	StatusCode int
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("voice provider %s: status %d: %s", e.Op, e.StatusCode, truncate(string(e.Body), 300))
}

// Details returns the body as a JSON value, or as a string when it is not JSON.
func (e *APIError) Details() any {
	if len(e.Body) == 0 {
		return nil
	}
	if json.Valid(e.Body) {
		return e.Body
	}
	return string(e.Body)
}

// ConversationID extracts a conversation id from a failure body, if the
// provider created one before failing.
func (e *APIError) ConversationID() string {
	var body struct {
		ConversationID string `json:"conversation_id"`
	}
	if json.Unmarshal(e.Body, &body) != nil {
		return ""
	}
	return body.ConversationID
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
