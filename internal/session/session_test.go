package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-chat-service/internal/models"
)

type fetcherFunc func(ctx context.Context, conv models.ConversationRef) ([]models.Message, error)

func (f fetcherFunc) ListMessages(ctx context.Context, conv models.ConversationRef) ([]models.Message, error) {
	return f(ctx, conv)
}

func textMessage(id, sender, receiver int, text string) models.Message {
	return models.Message{ID: id, SenderID: sender, ReceiverID: &receiver, Text: &text}
}

func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.State() == want
	}, time.Second, 5*time.Millisecond, "expected state %s", want)
}

func TestSelectLoadsHistory(t *testing.T) {
	history := []models.Message{
		textMessage(1, 2, 1, "hey"),
		textMessage(2, 1, 2, "hello"),
	}
	s := New(1, fetcherFunc(func(_ context.Context, conv models.ConversationRef) ([]models.Message, error) {
		assert.Equal(t, models.DirectConversation(1, 2), conv)
		return history, nil
	}))
	defer s.Close()

	assert.Equal(t, StateIdle, s.State())
	s.Select(models.DirectConversation(1, 2))
	waitForState(t, s, StateActive)
	assert.Equal(t, history, s.Messages())
	assert.NoError(t, s.Err())
}

func TestFetchFailureFallsBackToIdle(t *testing.T) {
	s := New(1, fetcherFunc(func(context.Context, models.ConversationRef) ([]models.Message, error) {
		return nil, errors.New("history unavailable")
	}))
	defer s.Close()

	s.Select(models.DirectConversation(1, 2))
	require.Eventually(t, func() bool {
		return s.State() == StateIdle && s.Err() != nil
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, s.Messages())
}

func TestStaleFetchDiscarded(t *testing.T) {
	slowRelease := make(chan struct{})
	slowConv := models.DirectConversation(1, 2)
	fastConv := models.DirectConversation(1, 3)

	s := New(1, fetcherFunc(func(_ context.Context, conv models.ConversationRef) ([]models.Message, error) {
		if conv == slowConv {
			<-slowRelease
			return []models.Message{textMessage(99, 2, 1, "stale")}, nil
		}
		return []models.Message{textMessage(5, 3, 1, "fresh")}, nil
	}))
	defer s.Close()

	s.Select(slowConv)
	s.Select(fastConv)
	waitForState(t, s, StateActive)

	close(slowRelease)
	time.Sleep(50 * time.Millisecond)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, 5, msgs[0].ID, "the late result for the abandoned selection must not surface")
	assert.Equal(t, StateActive, s.State())
}

func TestDeselectInvalidatesInFlightFetch(t *testing.T) {
	release := make(chan struct{})
	s := New(1, fetcherFunc(func(context.Context, models.ConversationRef) ([]models.Message, error) {
		<-release
		return []models.Message{textMessage(1, 2, 1, "late")}, nil
	}))
	defer s.Close()

	s.Select(models.DirectConversation(1, 2))
	s.Deselect()
	waitForState(t, s, StateIdle)

	close(release)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.Messages())
}

func TestEventsAppendWhenViewing(t *testing.T) {
	s := New(1, fetcherFunc(func(context.Context, models.ConversationRef) ([]models.Message, error) {
		return nil, nil
	}))
	defer s.Close()

	s.Select(models.DirectConversation(1, 2))
	waitForState(t, s, StateActive)

	first := textMessage(1, 2, 1, "a")
	second := textMessage(2, 2, 1, "b")
	s.HandleEvent(models.ServerEvent{Type: models.ServerMessage, Message: &first})
	s.HandleEvent(models.ServerEvent{Type: models.ServerMessage, Message: &second})

	require.Eventually(t, func() bool {
		return len(s.Messages()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []models.Message{first, second}, s.Messages(), "events append in arrival order")
	assert.Zero(t, s.Unread(models.DirectConversation(1, 2)))
}

func TestMessagesForOtherConversationsBumpUnread(t *testing.T) {
	s := New(1, fetcherFunc(func(context.Context, models.ConversationRef) ([]models.Message, error) {
		return nil, nil
	}))
	defer s.Close()

	s.Select(models.DirectConversation(1, 2))
	waitForState(t, s, StateActive)

	fromElsewhere := textMessage(7, 3, 1, "psst")
	s.HandleEvent(models.ServerEvent{Type: models.ServerMessage, Message: &fromElsewhere})
	s.HandleEvent(models.ServerEvent{Type: models.ServerMessage, Message: &fromElsewhere})

	require.Eventually(t, func() bool {
		return s.Unread(models.DirectConversation(1, 3)) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, s.Messages(), "foreign messages never leak into the open view")

	// Selecting the conversation clears its counter.
	s.Select(models.DirectConversation(1, 3))
	waitForState(t, s, StateActive)
	assert.Zero(t, s.Unread(models.DirectConversation(1, 3)))
}

func TestUpdateAndDeleteEventsApplyToView(t *testing.T) {
	seed := textMessage(1, 2, 1, "original")
	s := New(1, fetcherFunc(func(context.Context, models.ConversationRef) ([]models.Message, error) {
		return []models.Message{seed}, nil
	}))
	defer s.Close()

	s.Select(models.DirectConversation(1, 2))
	waitForState(t, s, StateActive)

	edited := textMessage(1, 2, 1, "edited")
	edited.Edited = true
	s.HandleEvent(models.ServerEvent{Type: models.ServerMessageUpdated, Message: &edited})
	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].Edited
	}, time.Second, 5*time.Millisecond)

	s.HandleEvent(models.ServerEvent{Type: models.ServerMessageDeleted, MessageID: 1, Message: &edited})
	require.Eventually(t, func() bool {
		return len(s.Messages()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestTypingEventsTrackPeers(t *testing.T) {
	s := New(1, fetcherFunc(func(context.Context, models.ConversationRef) ([]models.Message, error) {
		return nil, nil
	}))
	defer s.Close()

	s.Select(models.DirectConversation(1, 2))
	waitForState(t, s, StateActive)

	s.HandleEvent(models.ServerEvent{Type: models.ServerTyping, UserID: 2})
	require.Eventually(t, func() bool {
		return len(s.TypingUsers()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{2}, s.TypingUsers())

	s.HandleEvent(models.ServerEvent{Type: models.ServerStopTyping, UserID: 2})
	require.Eventually(t, func() bool {
		return len(s.TypingUsers()) == 0
	}, time.Second, 5*time.Millisecond)
}
