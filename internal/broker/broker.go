package broker

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"social-chat-service/internal/models"
	"social-chat-service/internal/observability"
	"social-chat-service/internal/presence"
	"social-chat-service/internal/repositories"
)

// EventSink delivers server events to live connections. Implemented by the
// websocket hub; mocked in tests.
type EventSink interface {
	SendToUsers(userIDs []int, ev models.ServerEvent)
	SendToUsersExcept(userIDs []int, except int, ev models.ServerEvent)
	SendToAll(ev models.ServerEvent)
}

// Broker is the single ordering point for conversation events. Operations on
// the same conversation are serialized so that every connected client
// observes messages in the order the store holds them; operations on
// different conversations proceed in parallel. Nothing is ever broadcast
// before it is persisted.
type Broker struct {
	sink     EventSink
	users    repositories.UserRepository
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
	tracker  *presence.Tracker

	mu        sync.Mutex
	convLocks map[string]*sync.Mutex
}

// New wires a Broker. The tracker's expiry callback is registered here so a
// typing flag that times out is re-broadcast as stopTyping.
func New(sink EventSink, users repositories.UserRepository, groups repositories.GroupRepository, messages repositories.MessageRepository, tracker *presence.Tracker) *Broker {
	b := &Broker{
		sink:      sink,
		users:     users,
		groups:    groups,
		messages:  messages,
		tracker:   tracker,
		convLocks: make(map[string]*sync.Mutex),
	}
	tracker.OnExpire(b.typingExpired)
	return b
}

// Send validates the payload, persists the message and fans it out to every
// member's live sessions, including the sender's own. A store failure aborts
// the whole operation; nothing reaches any client.
func (b *Broker) Send(ctx context.Context, senderID int, conv models.ConversationRef, payload models.MessagePayload) (models.Message, error) {
	if err := validatePayload(payload); err != nil {
		return models.Message{}, err
	}
	if err := b.checkParticipant(ctx, conv, senderID); err != nil {
		return models.Message{}, err
	}

	lock := b.convLock(conv)
	lock.Lock()
	defer lock.Unlock()

	msg, err := b.messages.CreateMessage(ctx, conv, senderID, payload)
	if err != nil {
		return models.Message{}, &StoreError{Op: "send", Err: err}
	}

	members, err := b.members(ctx, conv)
	if err != nil {
		// The message is durable; a failed member lookup only costs the live
		// event. Clients recover it from history on next fetch.
		log.Printf("member lookup failed after send, skipping broadcast: %v", err)
		return msg, nil
	}
	b.sink.SendToUsers(members, models.ServerEvent{Type: models.ServerMessage, Message: &msg})
	observability.IncBroadcast(models.ServerMessage)
	return msg, nil
}

// React appends a reaction and broadcasts the updated message. Duplicate
// (emoji, user) pairs accumulate; there is deliberately no dedup.
func (b *Broker) React(ctx context.Context, userID int, messageID int, emoji string) (models.Message, error) {
	if strings.TrimSpace(emoji) == "" {
		return models.Message{}, &ValidationError{Reason: "emoji must not be empty"}
	}
	return b.mutate(ctx, userID, messageID, "react", false, func(ctx context.Context) error {
		return b.messages.AddReaction(ctx, messageID, userID, emoji)
	})
}

// SetStarred flips the starred flag and broadcasts the updated message.
// Starring is conversation-wide, like every other mutation.
func (b *Broker) SetStarred(ctx context.Context, userID int, messageID int, starred bool) (models.Message, error) {
	return b.mutate(ctx, userID, messageID, "star", false, func(ctx context.Context) error {
		return b.messages.SetStarred(ctx, messageID, starred)
	})
}

// Edit replaces a text message's content, marks it edited and broadcasts the
// updated message. Only the sender may edit.
func (b *Broker) Edit(ctx context.Context, userID int, messageID int, newText string) (models.Message, error) {
	if strings.TrimSpace(newText) == "" {
		return models.Message{}, &ValidationError{Reason: "text must not be empty"}
	}
	return b.mutate(ctx, userID, messageID, "edit", true, func(ctx context.Context) error {
		return b.messages.UpdateText(ctx, messageID, newText)
	})
}

// Delete soft-deletes a message and broadcasts the removal. Only the sender
// may delete.
func (b *Broker) Delete(ctx context.Context, userID int, messageID int) (models.Message, error) {
	msg, err := b.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, wrapStoreErr("delete", err)
	}
	if msg.SenderID != userID {
		return models.Message{}, ErrNotSender
	}
	conv := msg.Conversation()
	if err := b.checkParticipant(ctx, conv, userID); err != nil {
		return models.Message{}, err
	}

	lock := b.convLock(conv)
	lock.Lock()
	defer lock.Unlock()

	if err := b.messages.MarkDeleted(ctx, messageID); err != nil {
		return models.Message{}, wrapStoreErr("delete", err)
	}
	msg.Deleted = true

	members, err := b.members(ctx, conv)
	if err != nil {
		log.Printf("member lookup failed after delete, skipping broadcast: %v", err)
		return msg, nil
	}
	b.sink.SendToUsers(members, models.ServerEvent{Type: models.ServerMessageDeleted, MessageID: messageID, Message: &msg})
	observability.IncBroadcast(models.ServerMessageDeleted)
	return msg, nil
}

// NotifyTyping updates the typing tracker and tells the conversation's other
// members. A true signal arms the inactivity expiry; refreshing replaces the
// pending timer. Redundant signals change nothing and are not re-broadcast.
func (b *Broker) NotifyTyping(ctx context.Context, userID int, conv models.ConversationRef, isTyping bool) error {
	if err := b.checkParticipant(ctx, conv, userID); err != nil {
		return err
	}

	var changed bool
	if isTyping {
		changed = b.tracker.StartTyping(conv, userID)
	} else {
		changed = b.tracker.StopTyping(conv, userID)
	}
	if !changed {
		return nil
	}

	members, err := b.members(ctx, conv)
	if err != nil {
		return wrapStoreErr("typing", err)
	}
	eventType := models.ServerTyping
	if !isTyping {
		eventType = models.ServerStopTyping
	}
	b.sink.SendToUsersExcept(members, userID, models.ServerEvent{Type: eventType, UserID: userID})
	observability.IncBroadcast(eventType)
	return nil
}

// ClientConnected records one more live session for the user. The first
// session flips the stored online flag and announces the presence change.
func (b *Broker) ClientConnected(ctx context.Context, userID int) {
	if !b.tracker.Connect(userID) {
		return
	}
	b.announcePresence(ctx, userID, true)
}

// ClientDisconnected records a session gone. The last one flips the flag
// back and announces it.
func (b *Broker) ClientDisconnected(ctx context.Context, userID int) {
	if !b.tracker.Disconnect(userID) {
		return
	}
	b.announcePresence(ctx, userID, false)
}

func (b *Broker) announcePresence(ctx context.Context, userID int, online bool) {
	if err := b.users.SetOnline(ctx, userID, online); err != nil {
		log.Printf("set online flag failed for user %d: %v", userID, err)
	}
	flag := online
	b.sink.SendToAll(models.ServerEvent{Type: models.ServerPresence, UserID: userID, Online: &flag})
	observability.IncBroadcast(models.ServerPresence)
}

// mutate is the shared flow for message mutations that broadcast the updated
// message: fetch, authorize, serialize on the conversation, apply, re-fetch,
// fan out.
func (b *Broker) mutate(ctx context.Context, userID int, messageID int, op string, senderOnly bool, apply func(context.Context) error) (models.Message, error) {
	msg, err := b.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, wrapStoreErr(op, err)
	}
	if senderOnly && msg.SenderID != userID {
		return models.Message{}, ErrNotSender
	}
	conv := msg.Conversation()
	if err := b.checkParticipant(ctx, conv, userID); err != nil {
		return models.Message{}, err
	}

	lock := b.convLock(conv)
	lock.Lock()
	defer lock.Unlock()

	if err := apply(ctx); err != nil {
		return models.Message{}, wrapStoreErr(op, err)
	}
	updated, err := b.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, wrapStoreErr(op, err)
	}

	members, err := b.members(ctx, conv)
	if err != nil {
		log.Printf("member lookup failed after %s, skipping broadcast: %v", op, err)
		return updated, nil
	}
	b.sink.SendToUsers(members, models.ServerEvent{Type: models.ServerMessageUpdated, Message: &updated})
	observability.IncBroadcast(models.ServerMessageUpdated)
	return updated, nil
}

func (b *Broker) typingExpired(conv models.ConversationRef, userID int) {
	members, err := b.members(context.Background(), conv)
	if err != nil {
		log.Printf("member lookup failed on typing expiry: %v", err)
		return
	}
	b.sink.SendToUsersExcept(members, userID, models.ServerEvent{Type: models.ServerStopTyping, UserID: userID})
	observability.IncBroadcast(models.ServerStopTyping)
}

func (b *Broker) checkParticipant(ctx context.Context, conv models.ConversationRef, userID int) error {
	if !conv.IsGroup() {
		if !conv.Includes(userID) {
			return ErrNotParticipant
		}
		return nil
	}
	member, err := b.groups.IsMember(ctx, conv.GroupID, userID)
	if err != nil {
		return &StoreError{Op: "membership check", Err: err}
	}
	if !member {
		return ErrNotParticipant
	}
	return nil
}

func (b *Broker) members(ctx context.Context, conv models.ConversationRef) ([]int, error) {
	if conv.IsGroup() {
		return b.groups.MemberIDs(ctx, conv.GroupID)
	}
	if conv.UserA == conv.UserB {
		return []int{conv.UserA}, nil
	}
	return []int{conv.UserA, conv.UserB}, nil
}

func (b *Broker) convLock(conv models.ConversationRef) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := conv.Key()
	lock, ok := b.convLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		b.convLocks[key] = lock
	}
	return lock
}

func validatePayload(p models.MessagePayload) error {
	set := 0
	if p.Text != nil {
		set++
	}
	if p.File != nil {
		set++
	}
	if p.Audio != nil {
		set++
	}
	if set == 0 {
		return &ValidationError{Reason: "one of text, file or audio is required"}
	}
	if set > 1 {
		return &ValidationError{Reason: "only one of text, file or audio may be set"}
	}
	if p.Text != nil && strings.TrimSpace(*p.Text) == "" {
		return &ValidationError{Reason: "text must not be empty"}
	}
	if p.File != nil && p.File.URL == "" {
		return &ValidationError{Reason: "file url is required"}
	}
	if p.Audio != nil && *p.Audio == "" {
		return &ValidationError{Reason: "audio url is required"}
	}
	return nil
}

func wrapStoreErr(op string, err error) error {
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
