// Package session implements the client-side state machine binding one user
// to one active conversation view. It reconciles local selection state with
// broker events: history fetches that resolve after the selection moved on
// are discarded, and events for conversations other than the selected one
// only bump an unread counter.
package session

import (
	"context"
	"sync"

	"social-chat-service/internal/models"
)

// State is the lifecycle of a conversation view.
type State int

const (
	// StateIdle means no conversation is selected.
	StateIdle State = iota
	// StateLoading means a history fetch is in flight for the selection.
	StateLoading
	// StateActive means history loaded; events append in arrival order.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// HistoryFetcher loads a conversation's message history. Over the wire this
// is the GET /messages surface; tests plug in fakes.
type HistoryFetcher interface {
	ListMessages(ctx context.Context, conv models.ConversationRef) ([]models.Message, error)
}

// Session is one user's conversation view. All state transitions run on a
// single internal event queue, so no two transitions race; reads take a
// snapshot under the same lock the queue mutates under.
type Session struct {
	userID  int
	fetcher HistoryFetcher

	cmds chan func()
	done chan struct{}

	mu         sync.Mutex
	state      State
	current    models.ConversationRef
	hasCurrent bool
	fetchSeq   int
	messages   []models.Message
	typing     map[int]struct{}
	unread     map[string]int
	lastErr    error
}

// New starts a session's event loop.
func New(userID int, fetcher HistoryFetcher) *Session {
	s := &Session{
		userID:  userID,
		fetcher: fetcher,
		cmds:    make(chan func(), 64),
		done:    make(chan struct{}),
		typing:  make(map[int]struct{}),
		unread:  make(map[string]int),
	}
	go s.loop()
	return s
}

// Close stops the event loop. Pending commands are dropped.
func (s *Session) Close() {
	close(s.done)
}

func (s *Session) loop() {
	for {
		select {
		case <-s.done:
			return
		case cmd := <-s.cmds:
			cmd()
		}
	}
}

func (s *Session) post(cmd func()) {
	select {
	case s.cmds <- cmd:
	case <-s.done:
	}
}

// Select switches the view to conv and starts the history fetch. Selecting
// while a previous fetch is in flight invalidates that fetch.
func (s *Session) Select(conv models.ConversationRef) {
	s.post(func() {
		s.mu.Lock()
		s.state = StateLoading
		s.current = conv
		s.hasCurrent = true
		s.messages = nil
		s.typing = map[int]struct{}{}
		s.lastErr = nil
		s.unread[conv.Key()] = 0
		s.fetchSeq++
		seq := s.fetchSeq
		s.mu.Unlock()

		go s.fetch(seq, conv)
	})
}

// Deselect returns the view to Idle.
func (s *Session) Deselect() {
	s.post(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.state = StateIdle
		s.hasCurrent = false
		s.messages = nil
		s.typing = map[int]struct{}{}
		s.fetchSeq++ // invalidate any in-flight fetch
	})
}

func (s *Session) fetch(seq int, conv models.ConversationRef) {
	msgs, err := s.fetcher.ListMessages(context.Background(), conv)
	s.post(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if seq != s.fetchSeq {
			// Stale: the selection changed while this fetch was in flight.
			return
		}
		if err != nil {
			s.state = StateIdle
			s.hasCurrent = false
			s.lastErr = err
			return
		}
		s.state = StateActive
		s.messages = msgs
	})
}

// HandleEvent feeds one broker event into the session.
func (s *Session) HandleEvent(ev models.ServerEvent) {
	s.post(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch ev.Type {
		case models.ServerMessage:
			if ev.Message == nil {
				return
			}
			conv := ev.Message.Conversation()
			if s.state == StateActive && s.hasCurrent && conv.Key() == s.current.Key() {
				s.messages = append(s.messages, *ev.Message)
				return
			}
			s.unread[conv.Key()]++

		case models.ServerMessageUpdated:
			if ev.Message == nil || !s.viewing(ev.Message.Conversation()) {
				return
			}
			for i := range s.messages {
				if s.messages[i].ID == ev.Message.ID {
					s.messages[i] = *ev.Message
					return
				}
			}

		case models.ServerMessageDeleted:
			if ev.Message == nil || !s.viewing(ev.Message.Conversation()) {
				return
			}
			for i := range s.messages {
				if s.messages[i].ID == ev.Message.ID {
					s.messages = append(s.messages[:i], s.messages[i+1:]...)
					return
				}
			}

		case models.ServerTyping:
			if s.state == StateActive {
				s.typing[ev.UserID] = struct{}{}
			}

		case models.ServerStopTyping:
			delete(s.typing, ev.UserID)
		}
	})
}

func (s *Session) viewing(conv models.ConversationRef) bool {
	return s.state == StateActive && s.hasCurrent && conv.Key() == s.current.Key()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the visible message list.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// TypingUsers returns who is typing in the selected conversation.
func (s *Session) TypingUsers() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.typing))
	for id := range s.typing {
		out = append(out, id)
	}
	return out
}

// Unread returns the unread counter for a conversation. The presentation
// layer renders these next to each chat in the sidebar.
func (s *Session) Unread(conv models.ConversationRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[conv.Key()]
}

// Err returns the last history-load failure, cleared on the next Select.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
