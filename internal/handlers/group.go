package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"social-chat-service/internal/repositories"
	"social-chat-service/internal/telemetry"
)

// GroupHandler manages group creation and listing.
type GroupHandler struct {
	groups repositories.GroupRepository
	audit  *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groups repositories.GroupRepository, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{groups: groups, audit: audit}
}

// CreateGroup handles POST /groups. The UI contract requires at least two
// members beyond the creator; that floor is enforced here, not in the broker.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		Name    string `json:"name" binding:"required"`
		Members []int  `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group name must not be empty"})
		return
	}

	others := 0
	for _, id := range req.Members {
		if id != userID {
			others++
		}
	}
	if others < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a group needs at least two members beyond the creator"})
		return
	}

	group, err := h.groups.CreateGroup(c.Request.Context(), userID, req.Name, req.Members)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.emitAudit(c, "INFO", "Group created")
	c.JSON(http.StatusCreated, group)
}

// ListGroups handles GET /groups.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groups.ListGroups(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
