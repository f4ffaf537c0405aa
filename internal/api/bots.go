package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"zapgpt/backend/internal/models"
	"zapgpt/backend/internal/service"
	"zapgpt/backend/pkg/logger"
	"zapgpt/backend/whatsapp"

	"github.com/gin-gonic/gin"
)

// eventBuffer bounds the per-subscriber SSE queue; a stalled client
// drops events instead of blocking the broadcaster.
const eventBuffer = 16

// BotHandler serves the bot catalog and session lifecycle endpoints.
type BotHandler struct {
	bots          *service.BotService
	users         *service.UserService
	conversations *service.ConversationService
	manager       *whatsapp.Manager
	logger        *logger.Logger
}

// NewBotHandler creates a new bot handler
func NewBotHandler(bots *service.BotService, users *service.UserService, conversations *service.ConversationService, manager *whatsapp.Manager, logger *logger.Logger) *BotHandler {
	return &BotHandler{
		bots:          bots,
		users:         users,
		conversations: conversations,
		manager:       manager,
		logger:        logger,
	}
}

func (h *BotHandler) botFromPath(c *gin.Context) (*models.Bot, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}

	botID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot id"})
		return nil, false
	}

	bot, err := h.bots.GetBot(userID, uint(botID))
	if err != nil {
		if err == service.ErrBotNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Bot not found"})
		} else {
			h.logger.Error("Error loading bot", "botID", botID, "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load bot"})
		}
		return nil, false
	}
	return bot, true
}

// Create registers a new bot.
func (h *BotHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if !req.Model.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported AI model"})
		return
	}

	bot, err := h.bots.CreateBot(userID, &req)
	if err != nil {
		h.logger.Error("Error creating bot", "userID", userID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create bot"})
		return
	}

	h.users.InvalidateStats(c.Request.Context(), userID)
	c.JSON(http.StatusCreated, gin.H{"bot": bot})
}

// List returns the user's bots.
func (h *BotHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	bots, err := h.bots.ListBots(userID)
	if err != nil {
		h.logger.Error("Error listing bots", "userID", userID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list bots"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bots": bots})
}

// Get returns one bot.
func (h *BotHandler) Get(c *gin.Context) {
	bot, ok := h.botFromPath(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"bot": bot})
}

// Update applies partial changes to a bot. Prompt and model changes
// take effect on the contact's next turn; the live session is kept.
func (h *BotHandler) Update(c *gin.Context) {
	bot, ok := h.botFromPath(c)
	if !ok {
		return
	}

	var req models.UpdateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if req.Model != nil && !req.Model.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported AI model"})
		return
	}

	updated, err := h.bots.UpdateBot(bot.UserID, bot.ID, &req)
	if err != nil {
		h.logger.Error("Error updating bot", "botID", bot.ID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update bot"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bot": updated})
}

// Delete stops the bot's session if running and removes it with its
// history.
func (h *BotHandler) Delete(c *gin.Context) {
	bot, ok := h.botFromPath(c)
	if !ok {
		return
	}

	if h.manager.IsRunning(bot.ID) {
		if err := h.manager.StopSession(c.Request.Context(), bot.ID); err != nil {
			h.logger.Warn("Error stopping session before delete", "botID", bot.ID, "error", err.Error())
		}
	}

	if err := h.bots.DeleteBot(bot.UserID, bot.ID); err != nil {
		h.logger.Error("Error deleting bot", "botID", bot.ID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete bot"})
		return
	}

	h.users.InvalidateStats(c.Request.Context(), bot.UserID)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Connect starts the bot's WhatsApp session. The connect itself runs in
// the background; the QR code and status updates arrive on the events
// stream.
func (h *BotHandler) Connect(c *gin.Context) {
	bot, ok := h.botFromPath(c)
	if !ok {
		return
	}

	if h.manager.IsRunning(bot.ID) {
		c.JSON(http.StatusOK, gin.H{"status": "already_connected"})
		return
	}

	go func() {
		if err := h.manager.StartSession(context.Background(), bot); err != nil {
			h.logger.Error("Session start failed", "botID", bot.ID, "error", err.Error())
			if err := h.bots.UpdateFlags(bot.ID, false, false); err != nil {
				h.logger.Error("Error rolling back bot flags", "botID", bot.ID, "error", err.Error())
			}
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "connecting"})
}

// Disconnect stops the bot's session.
func (h *BotHandler) Disconnect(c *gin.Context) {
	bot, ok := h.botFromPath(c)
	if !ok {
		return
	}

	if err := h.manager.StopSession(c.Request.Context(), bot.ID); err != nil {
		h.logger.Error("Error stopping session", "botID", bot.ID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stop session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

// Conversations lists one bot's conversation threads.
func (h *BotHandler) Conversations(c *gin.Context) {
	bot, ok := h.botFromPath(c)
	if !ok {
		return
	}

	convs, err := h.conversations.ListByBot(bot.UserID, bot.ID)
	if err != nil {
		h.logger.Error("Error listing conversations", "botID", bot.ID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

type sseEvent struct {
	name string
	data any
}

// botEventListeners builds the stream's listeners, filtered to one bot.
// A logged-in status additionally emits the refreshed bot record so
// subscribers see the persisted flags, not a snapshot from before the
// transition.
func botEventListeners(botID uint, lookup func(uint) (*models.Bot, error), push func(sseEvent), log *logger.Logger) (whatsapp.QRListener, whatsapp.SessionListener) {
	qr := func(e whatsapp.QRCodeEvent) {
		if e.BotID != botID {
			return
		}
		push(sseEvent{name: "qr", data: e})
	}

	status := func(e whatsapp.SessionEvent) {
		if e.BotID != botID {
			return
		}
		push(sseEvent{name: "status", data: e})
		if whatsapp.StatusMeansConnected(e.Status) {
			refreshed, err := lookup(e.BotID)
			if err != nil {
				log.Warn("Error refreshing bot for event stream", "botID", e.BotID, "error", err.Error())
				return
			}
			push(sseEvent{name: "bot", data: refreshed})
		}
	}

	return qr, status
}

// Events streams the bot's QR codes and session status over SSE until
// the client disconnects.
func (h *BotHandler) Events(c *gin.Context) {
	bot, ok := h.botFromPath(c)
	if !ok {
		return
	}

	events := make(chan sseEvent, eventBuffer)
	push := func(e sseEvent) {
		select {
		case events <- e:
		default:
			// slow consumer: drop rather than stall the engine
		}
	}

	qrListener, statusListener := botEventListeners(bot.ID, h.bots.GetBotByID, push, h.logger)

	unsubQR := h.manager.OnQRCode(qrListener)
	defer unsubQR()

	unsubStatus := h.manager.OnSessionUpdate(statusListener)
	defer unsubStatus()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case event := <-events:
			payload, err := json.Marshal(event.data)
			if err != nil {
				h.logger.Warn("Error encoding SSE payload", "error", err.Error())
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.name, payload)
			return true
		}
	})
}
