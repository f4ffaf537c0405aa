package service

import (
	"zapgpt/backend/internal/models"
	"zapgpt/backend/whatsapp"
)

// EngineStore adapts the persistence services to the narrow view the
// message engine consumes.
type EngineStore struct {
	bots          *BotService
	users         *UserService
	conversations *ConversationService
}

// NewEngineStore wires the engine's storage adapter.
func NewEngineStore(bots *BotService, users *UserService, conversations *ConversationService) *EngineStore {
	return &EngineStore{bots: bots, users: users, conversations: conversations}
}

func (s *EngineStore) BotByID(id uint) (*models.Bot, error) {
	return s.bots.GetBotByID(id)
}

func (s *EngineStore) UserByID(id uint) (*models.User, error) {
	return s.users.GetUserByID(id)
}

func (s *EngineStore) UpsertConversation(upsert whatsapp.ConversationUpsert) (*models.Conversation, error) {
	return s.conversations.Upsert(ConversationUpdate{
		BotID:         upsert.BotID,
		UserID:        upsert.UserID,
		ContactName:   upsert.ContactName,
		ContactPhone:  upsert.ContactPhone,
		LastMessage:   upsert.LastMessage,
		LastMessageAt: upsert.LastMessageAt,
		UnreadInc:     upsert.UnreadInc,
		MessageInc:    upsert.MessageInc,
	})
}

func (s *EngineStore) AppendMessage(conversationID uint, role, content string) error {
	return s.conversations.AppendMessage(conversationID, role, content)
}

func (s *EngineStore) UpdateBotFlags(botID uint, connected, active bool) error {
	return s.bots.UpdateFlags(botID, connected, active)
}

func (s *EngineStore) IncrementBotMessages(botID uint) error {
	return s.bots.IncrementMessageCount(botID)
}
