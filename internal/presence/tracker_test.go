package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-chat-service/internal/models"
)

func TestConnectDisconnectTransitions(t *testing.T) {
	tr := NewTracker(DefaultTypingTTL)

	assert.False(t, tr.Online(1))
	assert.True(t, tr.Connect(1), "first session should flip the user online")
	assert.False(t, tr.Connect(1), "second session is not a transition")
	assert.True(t, tr.Online(1))

	assert.False(t, tr.Disconnect(1), "one session still open")
	assert.True(t, tr.Disconnect(1), "last session should flip the user offline")
	assert.False(t, tr.Online(1))
	assert.False(t, tr.Disconnect(1), "disconnect without a session is a no-op")
}

func TestStartAndStopTyping(t *testing.T) {
	tr := NewTracker(time.Minute)
	conv := models.DirectConversation(1, 2)

	assert.True(t, tr.StartTyping(conv, 1))
	assert.False(t, tr.StartTyping(conv, 1), "refresh does not change the set")
	assert.ElementsMatch(t, []int{1}, tr.TypingUsers(conv))

	assert.True(t, tr.StartTyping(conv, 2))
	assert.ElementsMatch(t, []int{1, 2}, tr.TypingUsers(conv))

	assert.True(t, tr.StopTyping(conv, 1))
	assert.False(t, tr.StopTyping(conv, 1), "clearing twice changes nothing")
	assert.ElementsMatch(t, []int{2}, tr.TypingUsers(conv))
}

func TestTypingScopedPerConversation(t *testing.T) {
	tr := NewTracker(time.Minute)
	direct := models.DirectConversation(1, 2)
	group := models.GroupConversation(5)

	tr.StartTyping(direct, 1)
	assert.Empty(t, tr.TypingUsers(group))
	assert.ElementsMatch(t, []int{1}, tr.TypingUsers(direct))
}

func TestTypingExpiresAfterTTL(t *testing.T) {
	tr := NewTracker(20 * time.Millisecond)
	conv := models.DirectConversation(1, 2)

	var mu sync.Mutex
	var expired []int
	tr.OnExpire(func(c models.ConversationRef, userID int) {
		mu.Lock()
		defer mu.Unlock()
		require.Equal(t, conv, c)
		expired = append(expired, userID)
	})

	tr.StartTyping(conv, 1)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(expired) == 1 && expired[0] == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, tr.TypingUsers(conv))
}

func TestRefreshPostponesExpiry(t *testing.T) {
	tr := NewTracker(60 * time.Millisecond)
	conv := models.DirectConversation(1, 2)

	tr.StartTyping(conv, 1)
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		tr.StartTyping(conv, 1)
		assert.ElementsMatch(t, []int{1}, tr.TypingUsers(conv),
			"refreshed flag must survive past the original deadline")
	}

	require.Eventually(t, func() bool {
		return len(tr.TypingUsers(conv)) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestStopTypingCancelsExpiryCallback(t *testing.T) {
	tr := NewTracker(20 * time.Millisecond)
	conv := models.DirectConversation(1, 2)

	var mu sync.Mutex
	fired := false
	tr.OnExpire(func(models.ConversationRef, int) {
		mu.Lock()
		defer mu.Unlock()
		fired = true
	})

	tr.StartTyping(conv, 1)
	tr.StopTyping(conv, 1)

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.False(t, fired, "a cancelled flag must not expire")
}
