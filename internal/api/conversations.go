package api

import (
	"net/http"
	"strconv"

	"zapgpt/backend/internal/service"
	"zapgpt/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ConversationHandler serves conversation threads and their messages.
type ConversationHandler struct {
	conversations *service.ConversationService
	logger        *logger.Logger
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversations *service.ConversationService, logger *logger.Logger) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, logger: logger}
}

// List returns every conversation across the user's bots.
func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	convs, err := h.conversations.ListByUser(userID)
	if err != nil {
		h.logger.Error("Error listing conversations", "userID", userID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// Messages returns one thread's messages in order. Reading marks the
// thread as seen.
func (h *ConversationHandler) Messages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	convID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation id"})
		return
	}

	msgs, err := h.conversations.Messages(userID, uint(convID))
	if err != nil {
		if err == service.ErrConversationNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		h.logger.Error("Error loading messages", "conversationID", convID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
