// ABOUTME: Tests for the SQLite store covering tickets, config, and the ledger
// ABOUTME: Uses real on-disk databases in temp dirs with t.Cleanup

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestUpsertTicket_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ticket := &Ticket{
		ID:             "ticket-001",
		RequesterID:    "user-1",
		RequesterName:  "Alice",
		ConversationID: "conv-personal-1",
		Question:       "Why is the sky blue?",
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.UpsertTicket(ctx, ticket))

	got, err := s.GetTicket(ctx, "ticket-001")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.RequesterName)
	assert.Equal(t, "Why is the sky blue?", got.Question)
	assert.False(t, got.Delivered())
	assert.Empty(t, got.NotificationMessageID)
	assert.Empty(t, got.ExpertConversationID)
}

func TestUpsertTicket_IdempotentCorrelationUpdate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ticket := &Ticket{
		ID:             "ticket-002",
		RequesterID:    "user-2",
		RequesterName:  "Bob",
		ConversationID: "conv-2",
		Question:       "How do I reset my password?",
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.UpsertTicket(ctx, ticket))

	// Re-submitting the same ticket with correlation fields set updates
	// them in place instead of duplicating the record.
	ticket.NotificationMessageID = "M1"
	ticket.ExpertConversationID = "C1"
	require.NoError(t, s.UpsertTicket(ctx, ticket))
	require.NoError(t, s.UpsertTicket(ctx, ticket)) // idempotent

	got, err := s.GetTicket(ctx, "ticket-002")
	require.NoError(t, err)
	assert.True(t, got.Delivered())
	assert.Equal(t, "M1", got.NotificationMessageID)
	assert.Equal(t, "C1", got.ExpertConversationID)

	tickets, err := s.ListTickets(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
}

func TestUpsertTicket_RejectsHalfCorrelatedRecord(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.UpsertTicket(ctx, &Ticket{
		ID:                    "ticket-003",
		RequesterID:           "user-3",
		RequesterName:         "Carol",
		ConversationID:        "conv-3",
		Question:              "half-set correlation",
		NotificationMessageID: "M-only",
	})
	require.Error(t, err)

	_, err = s.GetTicket(ctx, "ticket-003")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTicket_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetTicket(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfigEntities(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetConfigEntity(ctx, ConfigExpertTeamID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetConfigEntity(ctx, ConfigExpertTeamID, "experts-room"))

	value, err := s.GetConfigEntity(ctx, ConfigExpertTeamID)
	require.NoError(t, err)
	assert.Equal(t, "experts-room", value)

	// Overwrite
	require.NoError(t, s.SetConfigEntity(ctx, ConfigExpertTeamID, "other-room"))
	value, err = s.GetConfigEntity(ctx, ConfigExpertTeamID)
	require.NoError(t, err)
	assert.Equal(t, "other-room", value)
}

func TestTurnLedger(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	events := []*TurnEvent{
		{ConversationID: "conv-1", Direction: DirectionInbound, Author: "user-1", Type: EventTypeMessage, Text: "hello", Timestamp: base},
		{ConversationID: "conv-1", Direction: DirectionOutbound, Author: "helpline", Type: EventTypeCard, Text: "answer", Timestamp: base.Add(time.Second)},
		{ConversationID: "conv-other", Direction: DirectionInbound, Author: "user-2", Type: EventTypeMessage, Text: "hi", Timestamp: base},
	}
	for _, e := range events {
		require.NoError(t, s.SaveTurnEvent(ctx, e))
	}

	got, err := s.ListTurnEvents(ctx, "conv-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].Text)
	assert.Equal(t, DirectionInbound, got[0].Direction)
	assert.Equal(t, "answer", got[1].Text)
	assert.Equal(t, DirectionOutbound, got[1].Direction)

	// Generated IDs are filled in
	assert.NotEmpty(t, got[0].ID)
}

func TestTurnLedger_SamePlatformIDAcrossConversations(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Platforms only keep message ids unique per conversation.
	for _, conv := range []string{"conv-1", "conv-2"} {
		require.NoError(t, s.SaveTurnEvent(ctx, &TurnEvent{
			TurnID:         "msg-1",
			ConversationID: conv,
			Direction:      DirectionInbound,
			Author:         "user-1",
			Type:           EventTypeMessage,
			Text:           "hello",
		}))
	}

	for _, conv := range []string{"conv-1", "conv-2"} {
		got, err := s.ListTurnEvents(ctx, conv, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "msg-1", got[0].TurnID)
		assert.NotEmpty(t, got[0].ID)
	}
}
