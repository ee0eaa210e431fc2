package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"voice-agent-platform/internal/voice"

	"github.com/go-playground/validator/v10"
)

// Actions accepted by the batch-calling endpoint.
const (
	ActionSubmit  = "submit_batch_call"
	ActionList    = "list_workspace_calls"
	ActionDetails = "get_batch_call_details"
	ActionCancel  = "cancel_batch_call"
	ActionRetry   = "retry_batch_call"
)

var ErrInvalidRequest = errors.New("invalid batch request")

// Request is one decoded, validated batch action.
type Request interface {
	Action() string
}

type SubmitRequest struct {
	CallName           string                 `json:"call_name" validate:"required"`
	AgentID            string                 `json:"agent_id" validate:"required"`
	AgentPhoneNumberID string                 `json:"agent_phone_number_id" validate:"required"`
	Recipients         []voice.BatchRecipient `json:"recipients" validate:"required,min=1,dive"`
	ScheduledTimeUnix  *int64                 `json:"scheduled_time_unix,omitempty" validate:"omitempty,gt=0"`
}

type ListRequest struct {
	Limit   int    `json:"limit" validate:"omitempty,min=1,max=100"`
	LastDoc string `json:"last_doc"`
}

// BatchIDRequest carries the batch id for details, cancel and retry.
type BatchIDRequest struct {
	action  string
	BatchID string `json:"batch_id" validate:"required"`
}

func (SubmitRequest) Action() string    { return ActionSubmit }
func (ListRequest) Action() string      { return ActionList }
func (r BatchIDRequest) Action() string { return r.action }

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeRequest reads the action discriminator, decodes the matching request
// type and validates it. Unknown fields are ignored.
func DecodeRequest(body []byte) (Request, error) {
	var head struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var req Request
	switch strings.TrimSpace(head.Action) {
	case ActionSubmit:
		var r SubmitRequest
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		req = r
	case ActionList:
		var r ListRequest
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		req = r
	case ActionDetails, ActionCancel, ActionRetry:
		r := BatchIDRequest{action: head.Action}
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		req = r
	case "":
		return nil, fmt.Errorf("%w: action is required", ErrInvalidRequest)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, head.Action)
	}

	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, describe(err))
	}
	return req, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
