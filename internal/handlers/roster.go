package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"social-chat-service/internal/repositories"
)

// RosterHandler serves the user directory the chat sidebar is built from.
type RosterHandler struct {
	users repositories.UserRepository
}

// NewRosterHandler constructs a RosterHandler.
func NewRosterHandler(users repositories.UserRepository) *RosterHandler {
	return &RosterHandler{users: users}
}

// ListUsers handles GET /users.
func (h *RosterHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	c.JSON(http.StatusOK, users)
}
