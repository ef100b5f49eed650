package presence

import (
	"sync"
	"time"

	"social-chat-service/internal/models"
)

// DefaultTypingTTL is how long a typing flag survives without a refresh.
const DefaultTypingTTL = 2 * time.Second

type typingKey struct {
	conv string
	user int
}

// Tracker is the in-memory presence and typing state. It holds a connection
// count per user (a user is online while the count is above zero) and a
// typing set per conversation with a cancellable expiry timer per
// (user, conversation). Everything is rebuilt from live connections after a
// restart; nothing is persisted.
type Tracker struct {
	mu       sync.Mutex
	conns    map[int]int
	typing   map[string]map[int]struct{}
	timers   map[typingKey]*time.Timer
	ttl      time.Duration
	onExpire func(conv models.ConversationRef, userID int)
}

// NewTracker constructs a Tracker with the given typing expiry.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Tracker{
		conns:  make(map[int]int),
		typing: make(map[string]map[int]struct{}),
		timers: make(map[typingKey]*time.Timer),
		ttl:    ttl,
	}
}

// OnExpire registers the callback invoked when a typing flag times out. It
// runs outside the tracker lock, on the timer goroutine.
func (t *Tracker) OnExpire(fn func(conv models.ConversationRef, userID int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

// Connect records one more session for the user and reports whether this was
// the first one (an offline-to-online transition).
func (t *Tracker) Connect(userID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[userID]++
	return t.conns[userID] == 1
}

// Disconnect records one session gone and reports whether it was the last
// one (an online-to-offline transition).
func (t *Tracker) Disconnect(userID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns[userID] == 0 {
		return false
	}
	t.conns[userID]--
	if t.conns[userID] > 0 {
		return false
	}
	delete(t.conns, userID)
	return true
}

// Online reports whether the user has at least one live session.
func (t *Tracker) Online(userID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[userID] > 0
}

// StartTyping marks the user as typing in conv and (re)arms the expiry
// timer. It reports whether the typing set changed; refreshing an
// already-typing user changes nothing but still resets the timer.
func (t *Tracker) StartTyping(conv models.ConversationRef, userID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := conv.Key()
	set, ok := t.typing[key]
	if !ok {
		set = make(map[int]struct{})
		t.typing[key] = set
	}
	_, already := set[userID]
	set[userID] = struct{}{}

	tk := typingKey{conv: key, user: userID}
	if timer, ok := t.timers[tk]; ok {
		timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(t.ttl, func() {
		t.expire(conv, userID, timer)
	})
	t.timers[tk] = timer
	return !already
}

// StopTyping clears the typing flag and cancels the pending expiry. It
// reports whether the set changed.
func (t *Tracker) StopTyping(conv models.ConversationRef, userID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clearLocked(conv.Key(), userID)
}

// TypingUsers returns the users currently typing in conv.
func (t *Tracker) TypingUsers(conv models.ConversationRef) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.typing[conv.Key()]
	users := make([]int, 0, len(set))
	for id := range set {
		users = append(users, id)
	}
	return users
}

func (t *Tracker) expire(conv models.ConversationRef, userID int, fired *time.Timer) {
	t.mu.Lock()
	// A refresh may have replaced this timer between firing and taking the
	// lock; only the current timer may clear the flag.
	if t.timers[typingKey{conv: conv.Key(), user: userID}] != fired {
		t.mu.Unlock()
		return
	}
	changed := t.clearLocked(conv.Key(), userID)
	fn := t.onExpire
	t.mu.Unlock()

	if changed && fn != nil {
		fn(conv, userID)
	}
}

func (t *Tracker) clearLocked(key string, userID int) bool {
	tk := typingKey{conv: key, user: userID}
	if timer, ok := t.timers[tk]; ok {
		timer.Stop()
		delete(t.timers, tk)
	}
	set, ok := t.typing[key]
	if !ok {
		return false
	}
	if _, typing := set[userID]; !typing {
		return false
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(t.typing, key)
	}
	return true
}
