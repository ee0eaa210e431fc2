package calls

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"voice-agent-platform/internal/contacts"
	"voice-agent-platform/internal/voice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	calls []voice.OutboundCallRequest
	res   voice.OutboundCallResult
	err   error
}

func (f *fakeCaller) OutboundCall(ctx context.Context, req voice.OutboundCallRequest) (voice.OutboundCallResult, error) {
	f.calls = append(f.calls, req)
	return f.res, f.err
}

func newInitiator(caller voice.Caller, repo Repository, book ContactBook) *Initiator {
	in := NewInitiator(caller, repo, book, "phnum_default", "US")
	in.clock = func() time.Time { return time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC) }
	return in
}

func TestInitiate_ValidatesBeforeCallingProvider(t *testing.T) {
	caller := &fakeCaller{}
	in := newInitiator(caller, NewMemoryRepo(), nil)

	_, err := in.Initiate(context.Background(), InitiateRequest{UserID: "u1", AgentID: "agent_1", PhoneNumber: "  "})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = in.Initiate(context.Background(), InitiateRequest{UserID: "u1", AgentID: "", PhoneNumber: "+14155552671"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Empty(t, caller.calls, "no provider request may be sent for invalid input")
}

func TestInitiate_RecordsHistoryAndContact(t *testing.T) {
	caller := &fakeCaller{res: voice.OutboundCallResult{Success: true, ConversationID: "conv_1", CallSID: "CA1", Raw: []byte(`{"success":true}`)}}
	repo := NewMemoryRepo()
	store := contacts.NewMemoryStore()
	book := contacts.NewService(store, "US")
	in := newInitiator(caller, repo, book)

	res, err := in.Initiate(context.Background(), InitiateRequest{UserID: "u1", AgentID: "agent_1", PhoneNumber: "415-555-2671", ContactName: "Dana"})
	require.NoError(t, err)
	assert.Equal(t, "conv_1", res.ConversationID)
	assert.NotEmpty(t, res.CallHistoryID)

	require.Len(t, caller.calls, 1)
	assert.Equal(t, "+14155552671", caller.calls[0].ToNumber)
	assert.Equal(t, "phnum_default", caller.calls[0].AgentPhoneNumberID)
	require.NotNil(t, caller.calls[0].ClientData)
	assert.Equal(t, "Dana", caller.calls[0].ClientData.DynamicVariables["contact_name"])

	all := repo.All()
	require.Len(t, all, 1)
	assert.Equal(t, StatusInitiated, all[0].Status)
	assert.True(t, all[0].Cost.IsZero())
	assert.Zero(t, all[0].DurationSecs)

	nContacts, nInteractions := store.Counts()
	assert.Equal(t, 1, nContacts)
	assert.Equal(t, 1, nInteractions)
}

func TestInitiate_SwallowsHistoryInsertFailure(t *testing.T) {
	caller := &fakeCaller{res: voice.OutboundCallResult{Success: true, ConversationID: "conv_2"}}
	repo := NewMemoryRepo()
	repo.FailInsert = errors.New("db down")
	in := newInitiator(caller, repo, nil)

	res, err := in.Initiate(context.Background(), InitiateRequest{UserID: "u1", AgentID: "agent_1", PhoneNumber: "+14155552671"})
	require.NoError(t, err)
	assert.Equal(t, "conv_2", res.ConversationID)
	assert.Empty(t, res.CallHistoryID)
}

func TestInitiate_IdempotencyKeyCallsProviderOnce(t *testing.T) {
	caller := &fakeCaller{res: voice.OutboundCallResult{Success: true, ConversationID: "conv_3"}}
	repo := NewMemoryRepo()
	in := newInitiator(caller, repo, nil)
	req := InitiateRequest{UserID: "u1", AgentID: "agent_1", PhoneNumber: "+14155552671", IdempotencyKey: "scheduled:abc"}

	first, err := in.Initiate(context.Background(), req)
	require.NoError(t, err)
	second, err := in.Initiate(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, caller.calls, 1)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.CallHistoryID, second.CallHistoryID)
	assert.Equal(t, "conv_3", second.ConversationID)
}

func TestInitiate_ProviderErrorWithConversationRecordsFailure(t *testing.T) {
	caller := &fakeCaller{err: &voice.APIError{Op: "outbound_call", StatusCode: http.StatusBadGateway, Body: []byte(`{"conversation_id":"conv_4","detail":"twilio error"}`)}}
	repo := NewMemoryRepo()
	in := newInitiator(caller, repo, nil)

	_, err := in.Initiate(context.Background(), InitiateRequest{UserID: "u1", AgentID: "agent_1", PhoneNumber: "+14155552671"})
	apiErr, ok := voice.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)

	all := repo.All()
	require.Len(t, all, 1)
	assert.Equal(t, StatusFailed, all[0].Status)
	assert.Equal(t, "conv_4", all[0].ConversationID)
}

func TestInitiate_ProviderErrorWithoutConversationWritesNothing(t *testing.T) {
	caller := &fakeCaller{err: &voice.APIError{Op: "outbound_call", StatusCode: http.StatusUnauthorized, Body: []byte(`{"detail":"bad key"}`)}}
	repo := NewMemoryRepo()
	in := newInitiator(caller, repo, nil)

	_, err := in.Initiate(context.Background(), InitiateRequest{UserID: "u1", AgentID: "agent_1", PhoneNumber: "+14155552671"})
	require.Error(t, err)
	assert.Empty(t, repo.All())
}

func TestInitiate_RejectedWithoutConversation(t *testing.T) {
	caller := &fakeCaller{res: voice.OutboundCallResult{Success: false, Message: "number blocked"}}
	in := newInitiator(caller, NewMemoryRepo(), nil)

	_, err := in.Initiate(context.Background(), InitiateRequest{UserID: "u1", AgentID: "agent_1", PhoneNumber: "+14155552671"})
	assert.ErrorIs(t, err, ErrProviderRejected)
}

func TestInitiate_RetryAfterProviderFailurePlacesCallAgain(t *testing.T) {
	caller := &fakeCaller{err: &voice.APIError{Op: "outbound_call", StatusCode: http.StatusBadGateway, Body: []byte(`{"conversation_id":"conv_x"}`)}}
	repo := NewMemoryRepo()
	in := newInitiator(caller, repo, nil)
	req := InitiateRequest{UserID: "u1", AgentID: "agent_1", PhoneNumber: "+14155552671", IdempotencyKey: "k1"}

	_, err := in.Initiate(context.Background(), req)
	require.Error(t, err)
	require.Len(t, repo.All(), 1)
	assert.Empty(t, repo.All()[0].IdempotencyKey)

	caller.err = nil
	caller.res = voice.OutboundCallResult{Success: true, ConversationID: "conv_ok"}
	res, err := in.Initiate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, "conv_ok", res.ConversationID)
	assert.Len(t, caller.calls, 2)
}

func TestInitiate_FailedRowWithKeyIsNotReplayed(t *testing.T) {
	repo := NewMemoryRepo(Record{ID: "old", UserID: "u1", Status: StatusFailed, ConversationID: "conv_dead", IdempotencyKey: "k2"})
	caller := &fakeCaller{res: voice.OutboundCallResult{Success: true, ConversationID: "conv_new"}}
	in := newInitiator(caller, repo, nil)

	res, err := in.Initiate(context.Background(), InitiateRequest{UserID: "u1", AgentID: "agent_1", PhoneNumber: "+14155552671", IdempotencyKey: "k2"})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, "conv_new", res.ConversationID)
	assert.Len(t, caller.calls, 1)
}
