package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "healthpass/pkg/domain"
	"healthpass/pkg/requestcontext"
)

func TestInMemoryStoreOrderingAndScopes(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	owner := id.OwnerID(uuid.New())
	base := time.Date(2025, 5, 15, 10, 42, 0, 0, time.UTC)

	events := []Event{
		{ID: id.NewEventID(), OwnerID: owner, Method: MethodQRScan, Outcome: OutcomeAllowed, Timestamp: base},
		{ID: id.NewEventID(), OwnerID: owner, Method: MethodSharedLink, Outcome: OutcomeAllowed, ActorLabel: "Dr. Sarah Johnson", Timestamp: base.Add(time.Minute)},
		{ID: id.NewEventID(), OwnerID: owner, Method: MethodPINEntry, Outcome: OutcomeDenied, Reason: ReasonExpired, Timestamp: base.Add(2 * time.Minute)},
	}
	for _, e := range events {
		require.NoError(t, store.Append(ctx, e))
	}

	all, err := store.ListByOwner(ctx, owner, ScopeAll)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Most-recent-first for display.
	assert.Equal(t, events[2].ID, all[0].ID)
	assert.Equal(t, events[0].ID, all[2].ID)

	emergency, err := store.ListByOwner(ctx, owner, ScopeEmergency)
	require.NoError(t, err)
	require.Len(t, emergency, 2)
	for _, e := range emergency {
		assert.NotEqual(t, MethodSharedLink, e.Method)
	}

	shared, err := store.ListByOwner(ctx, owner, ScopeShared)
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, "Dr. Sarah Johnson", shared[0].ActorLabel)
}

func TestInMemoryStoreIsolatesOwners(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	ownerA := id.OwnerID(uuid.New())
	ownerB := id.OwnerID(uuid.New())

	require.NoError(t, store.Append(ctx, Event{ID: id.NewEventID(), OwnerID: ownerA, Method: MethodQRScan, Outcome: OutcomeAllowed, Timestamp: time.Now()}))

	got, err := store.ListByOwner(ctx, ownerB, ScopeAll)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPublisherStampsIDAndTimestamp(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)
	owner := id.OwnerID(uuid.New())

	fixed := time.Date(2025, 3, 3, 20, 17, 0, 0, time.UTC)
	ctx := requestcontext.WithFixedTime(context.Background(), fixed)

	require.NoError(t, pub.Emit(ctx, Event{OwnerID: owner, Method: MethodPINEntry, Outcome: OutcomeDenied, Reason: ReasonNotFound}))

	got, err := pub.List(ctx, owner, ScopeAll)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].ID.IsNil())
	assert.Equal(t, fixed, got[0].Timestamp)
}

func TestAsyncPublisherDrainsOnClose(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(16))
	owner := id.OwnerID(uuid.New())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, pub.Emit(ctx, Event{OwnerID: owner, Method: MethodQRScan, Outcome: OutcomeAllowed}))
	}
	pub.Close()

	got, err := store.ListByOwner(ctx, owner, ScopeAll)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}
