package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectConversationNormalized(t *testing.T) {
	a := DirectConversation(7, 3)
	b := DirectConversation(3, 7)

	assert.Equal(t, a, b)
	assert.Equal(t, "d:3:7", a.Key())
	assert.False(t, a.IsGroup())
	assert.True(t, a.Includes(7))
	assert.True(t, a.Includes(3))
	assert.False(t, a.Includes(4))
	assert.Equal(t, 3, a.Peer(7))
}

func TestGroupConversationKey(t *testing.T) {
	g := GroupConversation(12)
	assert.True(t, g.IsGroup())
	assert.Equal(t, "g:12", g.Key())
	assert.False(t, g.Includes(1))
}

func TestMessageConversationDerivation(t *testing.T) {
	receiver := 2
	direct := Message{SenderID: 5, ReceiverID: &receiver}
	assert.Equal(t, DirectConversation(2, 5), direct.Conversation())

	group := 9
	grouped := Message{SenderID: 5, GroupID: &group}
	assert.Equal(t, GroupConversation(9), grouped.Conversation())
}

func TestMessageWireShape(t *testing.T) {
	text := "hi"
	receiver := 2
	msg := Message{
		ID:         7,
		SenderID:   1,
		ReceiverID: &receiver,
		Text:       &text,
		Reactions:  []Reaction{{Emoji: "👍", User: 2}},
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, float64(7), decoded["id"])
	assert.Equal(t, float64(1), decoded["sender"])
	assert.Equal(t, float64(2), decoded["receiver"])
	assert.Equal(t, "hi", decoded["text"])
	assert.Contains(t, decoded, "reactions")
	assert.Contains(t, decoded, "starred")
	assert.Contains(t, decoded, "edited")
	assert.Contains(t, decoded, "createdAt")
	assert.NotContains(t, decoded, "group")
	assert.NotContains(t, decoded, "file")
	assert.NotContains(t, decoded, "audio")
	assert.NotContains(t, decoded, "deleted")
}
