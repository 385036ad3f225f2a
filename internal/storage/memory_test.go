package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id string, kind Kind, receivedAt time.Time) *Record {
	return &Record{
		MessageID:  id,
		Kind:       kind,
		Service:    "urn:svc",
		Action:     "Submit",
		ReceivedAt: receivedAt,
	}
}

func TestMemoryStoreSaveAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := record("um-1", KindUserMessage, time.Now())
	require.NoError(t, s.SaveMessage(ctx, rec))

	got, err := s.GetMessage(ctx, "um-1")
	require.NoError(t, err)
	assert.Equal(t, rec.MessageID, got.MessageID)
	assert.Equal(t, KindUserMessage, got.Kind)
}

func TestMemoryStoreOverwrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SaveMessage(ctx, record("um-1", KindUserMessage, time.Now())))
	updated := record("um-1", KindUserMessage, time.Now())
	updated.Action = "Resubmit"
	require.NoError(t, s.SaveMessage(ctx, updated))

	got, err := s.GetMessage(ctx, "um-1")
	require.NoError(t, err)
	assert.Equal(t, "Resubmit", got.Action)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.GetMessage(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveMessage(ctx,
			record(fmt.Sprintf("um-%d", i), KindUserMessage, base.Add(time.Duration(i)*time.Minute))))
	}

	recs, err := s.ListMessages(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "um-2", recs[0].MessageID)
	assert.Equal(t, "um-0", recs[2].MessageID)
}

func TestMemoryStoreListFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.SaveMessage(ctx, record("um-1", KindUserMessage, now)))
	require.NoError(t, s.SaveMessage(ctx, record("r-1", KindReceipt, now)))
	other := record("um-2", KindUserMessage, now)
	other.Service = "urn:other"
	require.NoError(t, s.SaveMessage(ctx, other))

	recs, err := s.ListMessages(ctx, Filter{Kind: KindReceipt})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "r-1", recs[0].MessageID)

	recs, err = s.ListMessages(ctx, Filter{Service: "urn:other"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "um-2", recs[0].MessageID)

	recs, err = s.ListMessages(ctx, Filter{Action: "Nothing"})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMemoryStoreListSince(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.SaveMessage(ctx, record("old", KindUserMessage, base.Add(-time.Hour))))
	require.NoError(t, s.SaveMessage(ctx, record("new", KindUserMessage, base)))

	cutoff := base.Add(-time.Minute)
	recs, err := s.ListMessages(ctx, Filter{Since: &cutoff})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new", recs[0].MessageID)
}

func TestMemoryStoreListLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveMessage(ctx,
			record(fmt.Sprintf("um-%d", i), KindUserMessage, base.Add(time.Duration(i)*time.Second))))
	}

	recs, err := s.ListMessages(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "um-4", recs[0].MessageID)
}
