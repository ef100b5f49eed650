package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"social-chat-service/internal/models"
	"social-chat-service/internal/repositories"
)

// MessageHandler serves conversation history. Live delivery happens over the
// websocket; this surface is how sessions load history and how disconnected
// clients catch up.
type MessageHandler struct {
	messages repositories.MessageRepository
	groups   repositories.GroupRepository
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(messages repositories.MessageRepository, groups repositories.GroupRepository) *MessageHandler {
	return &MessageHandler{messages: messages, groups: groups}
}

// GetDirectMessages handles GET /messages/:user_id — the conversation
// between the authenticated user and :user_id, ascending by createdAt.
func (h *MessageHandler) GetDirectMessages(c *gin.Context) {
	peerID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userID := c.GetInt("userID")

	msgs, err := h.messages.ListMessages(c.Request.Context(), models.DirectConversation(userID, peerID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// GetGroupMessages handles GET /messages/group/:group_id.
func (h *MessageHandler) GetGroupMessages(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.groups.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), models.GroupConversation(groupID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}
