package service

import (
	"errors"
	"time"

	"zapgpt/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
)

// ConversationService persists conversation threads and their
// messages.
type ConversationService struct {
	db *gorm.DB
}

// NewConversationService creates a new conversation service
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{db: db}
}

// ConversationUpdate describes one turn's effect on a thread. Counter
// fields are increments applied on top of the stored values.
type ConversationUpdate struct {
	BotID         uint
	UserID        uint
	ContactName   string
	ContactPhone  string
	LastMessage   string
	LastMessageAt time.Time
	UnreadInc     int
	MessageInc    int
}

// upsertAssignments builds the conflict-branch column set. The unread
// and message counters are SQL increments over the stored values, so
// concurrent turns never lose counts; the remaining columns overwrite.
func upsertAssignments(update ConversationUpdate) map[string]any {
	return map[string]any{
		"contact_name":    update.ContactName,
		"last_message":    update.LastMessage,
		"last_message_at": update.LastMessageAt,
		"unread_count":    gorm.Expr("conversations.unread_count + ?", update.UnreadInc),
		"message_count":   gorm.Expr("conversations.message_count + ?", update.MessageInc),
		"updated_at":      time.Now(),
	}
}

// Upsert creates the (bot, contact) thread on first contact and
// updates it in place afterwards. The conflict target matches the
// unique index on (bot_id, contact_phone).
func (s *ConversationService) Upsert(update ConversationUpdate) (*models.Conversation, error) {
	conv := models.Conversation{
		BotID:         update.BotID,
		UserID:        update.UserID,
		ContactName:   update.ContactName,
		ContactPhone:  update.ContactPhone,
		LastMessage:   update.LastMessage,
		LastMessageAt: update.LastMessageAt,
		UnreadCount:   update.UnreadInc,
		MessageCount:  update.MessageInc,
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bot_id"}, {Name: "contact_phone"}},
		DoUpdates: clause.Assignments(upsertAssignments(update)),
	}).Create(&conv).Error
	if err != nil {
		return nil, err
	}

	// The upsert path does not populate the struct on conflict; read
	// the row back so callers get the real id and counters.
	var stored models.Conversation
	err = s.db.Where("bot_id = ? AND contact_phone = ?", update.BotID, update.ContactPhone).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// AppendMessage stores one message in a thread.
func (s *ConversationService) AppendMessage(conversationID uint, role, content string) error {
	msg := models.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}
	return s.db.Create(&msg).Error
}

// ListByUser returns all of the user's conversations across bots,
// most recent activity first.
func (s *ConversationService) ListByUser(userID uint) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.Where("user_id = ?", userID).
		Order("last_message_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// ListByBot returns one bot's conversations, most recent first.
func (s *ConversationService) ListByBot(userID, botID uint) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.Where("user_id = ? AND bot_id = ?", userID, botID).
		Order("last_message_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// Messages returns a conversation's messages in chronological order.
// Reading a thread clears its unread counter.
func (s *ConversationService) Messages(userID, conversationID uint) ([]models.Message, error) {
	var conv models.Conversation
	result := s.db.Where("id = ? AND user_id = ?", conversationID, userID).First(&conv)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, result.Error
	}

	var msgs []models.Message
	err := s.db.Where("conversation_id = ?", conv.ID).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	if conv.UnreadCount != 0 {
		if err := s.db.Model(&conv).Update("unread_count", 0).Error; err != nil {
			return nil, err
		}
	}
	return msgs, nil
}
