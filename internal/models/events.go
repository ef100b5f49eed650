package models

// Client-to-server event kinds.
const (
	ClientJoin       = "join"
	ClientMessage    = "message"
	ClientTyping     = "typing"
	ClientStopTyping = "stopTyping"
	ClientReact      = "react"
	ClientStar       = "star"
	ClientEdit       = "edit"
	ClientDelete     = "delete"
)

// Server-to-client event kinds.
const (
	ServerMessage        = "message"
	ServerMessageUpdated = "messageUpdated"
	ServerMessageDeleted = "messageDeleted"
	ServerTyping         = "typing"
	ServerStopTyping     = "stopTyping"
	ServerPresence       = "presence"
	ServerError          = "error"
)

// ClientEvent is the tagged union a connected client sends over the socket.
// Which fields are meaningful depends on Type; the broker boundary matches
// the type exhaustively and rejects anything it does not recognize.
type ClientEvent struct {
	Type string `json:"type"`

	// join
	Token string `json:"token,omitempty"`

	// message
	Text       *string         `json:"text,omitempty"`
	File       *FileAttachment `json:"file,omitempty"`
	Audio      *string         `json:"audio,omitempty"`
	ReceiverID int             `json:"receiverId,omitempty"`
	IsGroup    bool            `json:"isGroup,omitempty"`

	// typing / stopTyping
	ChatID int `json:"chatId,omitempty"`

	// react / star / edit / delete
	MessageID int    `json:"messageId,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
	Starred   *bool  `json:"starred,omitempty"`
	NewText   string `json:"newText,omitempty"`
}

// ServerEvent is broadcast to connected clients.
type ServerEvent struct {
	Type      string   `json:"type"`
	Message   *Message `json:"message,omitempty"`
	MessageID int      `json:"messageId,omitempty"`
	UserID    int      `json:"userId,omitempty"`
	Online    *bool    `json:"online,omitempty"`
	Error     string   `json:"error,omitempty"`
}
