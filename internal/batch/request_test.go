package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `{`, "invalid batch request"},
		{"no action", `{}`, "action is required"},
		{"unknown action", `{"action":"delete_everything"}`, "unknown action"},
		{"submit without recipients", `{"action":"submit_batch_call","call_name":"x","agent_id":"A","agent_phone_number_id":"P"}`, "Recipients"},
		{"recipient without phone", `{"action":"submit_batch_call","call_name":"x","agent_id":"A","agent_phone_number_id":"P","recipients":[{}]}`, "PhoneNumber"},
		{"cancel without id", `{"action":"cancel_batch_call"}`, "BatchID"},
		{"list limit too large", `{"action":"list_workspace_calls","limit":1000}`, "Limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(tt.body))
			require.ErrorIs(t, err, ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecodeRequest_BatchIDActions(t *testing.T) {
	for _, action := range []string{ActionDetails, ActionCancel, ActionRetry} {
		req, err := DecodeRequest([]byte(`{"action":"` + action + `","batch_id":"b1"}`))
		require.NoError(t, err)
		assert.Equal(t, action, req.Action())
		assert.Equal(t, "b1", req.(BatchIDRequest).BatchID)
	}
}
