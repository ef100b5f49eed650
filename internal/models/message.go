package models

import "time"

// FileAttachment describes an uploaded file referenced by a message.
type FileAttachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Reaction is one emoji reaction by one user. The reaction list on a message
// is an append-only multiset: the same (emoji, user) pair may repeat.
type Reaction struct {
	Emoji string `json:"emoji"`
	User  int    `json:"user"`
}

// MessagePayload is the content variant of an outgoing message. Exactly one
// field must be set.
type MessagePayload struct {
	Text  *string         `json:"text,omitempty"`
	File  *FileAttachment `json:"file,omitempty"`
	Audio *string         `json:"audio,omitempty"`
}

// Message is a persisted chat message. The JSON field names are the wire
// contract: exactly one of receiver/group is set, exactly one of
// text/file/audio is set.
type Message struct {
	ID         int             `json:"id"`
	SenderID   int             `json:"sender"`
	ReceiverID *int            `json:"receiver,omitempty"`
	GroupID    *int            `json:"group,omitempty"`
	Text       *string         `json:"text,omitempty"`
	File       *FileAttachment `json:"file,omitempty"`
	Audio      *string         `json:"audio,omitempty"`
	Reactions  []Reaction      `json:"reactions"`
	Starred    bool            `json:"starred"`
	Edited     bool            `json:"edited"`
	Deleted    bool            `json:"-"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Conversation derives the ref the message belongs to.
func (m Message) Conversation() ConversationRef {
	if m.GroupID != nil {
		return GroupConversation(*m.GroupID)
	}
	receiver := 0
	if m.ReceiverID != nil {
		receiver = *m.ReceiverID
	}
	return DirectConversation(m.SenderID, receiver)
}
