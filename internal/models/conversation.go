package models

import "fmt"

// ConversationRef addresses a single conversation: either the unordered pair
// of users in a direct chat, or a group. It is a value type, never stored.
type ConversationRef struct {
	GroupID int
	UserA   int
	UserB   int
}

// DirectConversation builds a ref for the chat between two users. The pair is
// normalized so (a,b) and (b,a) address the same conversation.
func DirectConversation(a, b int) ConversationRef {
	if a > b {
		a, b = b, a
	}
	return ConversationRef{UserA: a, UserB: b}
}

// GroupConversation builds a ref for a group chat.
func GroupConversation(groupID int) ConversationRef {
	return ConversationRef{GroupID: groupID}
}

// IsGroup reports whether the ref addresses a group conversation.
func (r ConversationRef) IsGroup() bool {
	return r.GroupID != 0
}

// Key returns a stable string form usable as a map key.
func (r ConversationRef) Key() string {
	if r.IsGroup() {
		return fmt.Sprintf("g:%d", r.GroupID)
	}
	return fmt.Sprintf("d:%d:%d", r.UserA, r.UserB)
}

// Includes reports whether userID is one of the direct participants. Group
// membership is a store question and not answered here.
func (r ConversationRef) Includes(userID int) bool {
	if r.IsGroup() {
		return false
	}
	return r.UserA == userID || r.UserB == userID
}

// Peer returns the other direct participant.
func (r ConversationRef) Peer(userID int) int {
	if r.UserA == userID {
		return r.UserB
	}
	return r.UserA
}
