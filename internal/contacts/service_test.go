package contacts

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-agent-platform/internal/agents"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *MemoryStore, *time.Time) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(store, "US")
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return now }
	return svc, store, &now
}

func TestRecordInteraction_CreatesThenReusesContact(t *testing.T) {
	svc, store, now := newTestService(t)
	ctx := context.Background()

	c1, _, err := svc.RecordInteraction(ctx, RecordRequest{UserID: "u1", Phone: "(415) 555-2671", Name: "Dana"})
	require.NoError(t, err)
	contacts, interactions := store.Counts()
	assert.Equal(t, 1, contacts)
	assert.Equal(t, 1, interactions)
	assert.Equal(t, "+14155552671", c1.Phone)
	require.NotNil(t, c1.LastContactAt)
	first := *c1.LastContactAt

	*now = now.Add(2 * time.Hour)
	c2, _, err := svc.RecordInteraction(ctx, RecordRequest{UserID: "u1", Phone: "+14155552671", Type: InteractionSMS})
	require.NoError(t, err)

	contacts, interactions = store.Counts()
	assert.Equal(t, 1, contacts, "second interaction must not create a contact")
	assert.Equal(t, 2, interactions)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, "Dana", c2.Name, "empty name must not overwrite")
	require.NotNil(t, c2.LastContactAt)
	assert.True(t, c2.LastContactAt.After(first))
}

func TestRecordInteraction_SamePhoneDifferentUsers(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.RecordInteraction(ctx, RecordRequest{UserID: "u1", Phone: "+14155552671"})
	require.NoError(t, err)
	_, _, err = svc.RecordInteraction(ctx, RecordRequest{UserID: "u2", Phone: "+14155552671"})
	require.NoError(t, err)

	contacts, _ := store.Counts()
	assert.Equal(t, 2, contacts)
}

func TestRecordInteraction_RollsBackContactWhenInteractionFails(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.FailInsertInteraction = errors.New("disk full")

	_, _, err := svc.RecordInteraction(context.Background(), RecordRequest{UserID: "u1", Phone: "+14155552671"})
	require.Error(t, err)

	contacts, interactions := store.Counts()
	assert.Zero(t, contacts)
	assert.Zero(t, interactions)
}

func TestRecordInteraction_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.RecordInteraction(ctx, RecordRequest{UserID: "u1", Phone: " "})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, _, err = svc.RecordInteraction(ctx, RecordRequest{UserID: "u1", Phone: "+14155552671", Type: "fax"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLookupName(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.RecordInteraction(ctx, RecordRequest{UserID: "u1", Phone: "+14155552671", Name: "Dana"})
	require.NoError(t, err)

	name, err := svc.LookupName(ctx, "u1", "415-555-2671")
	require.NoError(t, err)
	assert.Equal(t, "Dana", name)

	name, err = svc.LookupName(ctx, "u1", "+12125550100")
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestContextBuilder(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, _, err := svc.RecordInteraction(ctx, RecordRequest{UserID: "u1", Phone: "+14155552671", Name: "Dana", Summary: "Asked about pricing"})
	require.NoError(t, err)

	reg := agents.NewRegistry(agents.NewMemoryRepo(
		agents.Agent{ID: "a1", UserID: "u1", ProviderAgentID: "p1", Active: true},
		agents.Agent{ID: "a2", UserID: "u2", ProviderAgentID: "p2", Active: true},
	))
	b := NewContextBuilder(svc, reg)

	got, err := b.Build(ctx, "+14155552671", "p1")
	require.NoError(t, err)
	assert.True(t, got.ContextFound)
	require.NotNil(t, got.Contact)
	assert.Equal(t, "Dana", got.Contact.Name)
	assert.Len(t, got.Contact.RecentInteractions, 1)
	assert.Contains(t, got.AgentInstructions, "Dana")
	assert.Contains(t, got.AgentInstructions, "Asked about pricing")

	other, err := b.Build(ctx, "+14155552671", "p2")
	require.NoError(t, err)
	assert.False(t, other.ContextFound, "contacts of another user must not leak")

	anyUser, err := b.Build(ctx, "+14155552671", "")
	require.NoError(t, err)
	assert.True(t, anyUser.ContextFound)
}

func TestSave_UpdatesStatusAndTags(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Save(ctx, Contact{UserID: "u1", Phone: "+14155552671", Name: "Dana", Tags: []string{"lead"}})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, created.Status)
	assert.Equal(t, []string{"lead"}, created.Tags)

	updated, err := svc.Save(ctx, Contact{UserID: "u1", Phone: "(415) 555-2671", Status: StatusBlocked, Tags: []string{"vip", "renewal"}})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, StatusBlocked, updated.Status)
	assert.Equal(t, []string{"vip", "renewal"}, updated.Tags)
	assert.Equal(t, "Dana", updated.Name)

	// An interaction advances last contact without reactivating the contact.
	after, _, err := svc.RecordInteraction(ctx, RecordRequest{UserID: "u1", Phone: "+14155552671"})
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, after.Status)
	assert.Equal(t, []string{"vip", "renewal"}, after.Tags)

	_, err = svc.Save(ctx, Contact{UserID: "u1", Phone: "+14155552671", Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
