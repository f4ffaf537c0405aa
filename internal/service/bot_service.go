package service

import (
	"errors"
	"fmt"

	"zapgpt/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrBotNotFound = errors.New("bot not found")
)

// BotService owns the bot catalog. Every query is scoped to the owning
// user; a bot id belonging to someone else behaves like a missing bot.
type BotService struct {
	db *gorm.DB
}

// NewBotService creates a new bot service
func NewBotService(db *gorm.DB) *BotService {
	return &BotService{db: db}
}

// CreateBot registers a bot for the user. The session name is the
// stable identifier handed to the WhatsApp bridge; it survives
// renames.
func (s *BotService) CreateBot(userID uint, req *models.CreateBotRequest) (*models.Bot, error) {
	bot := models.Bot{
		UserID:      userID,
		Name:        req.Name,
		Model:       req.Model,
		Prompt:      req.Prompt,
		SessionName: fmt.Sprintf("zapgpt_%d_%s", userID, uuid.New().String()[:8]),
	}

	if err := s.db.Create(&bot).Error; err != nil {
		return nil, err
	}
	return &bot, nil
}

// GetBot retrieves one of the user's bots.
func (s *BotService) GetBot(userID, botID uint) (*models.Bot, error) {
	var bot models.Bot
	result := s.db.Where("id = ? AND user_id = ?", botID, userID).First(&bot)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrBotNotFound
		}
		return nil, result.Error
	}
	return &bot, nil
}

// GetBotByID retrieves a bot without owner scoping. Used by the engine,
// which acts on behalf of the system rather than a request.
func (s *BotService) GetBotByID(botID uint) (*models.Bot, error) {
	var bot models.Bot
	result := s.db.First(&bot, botID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrBotNotFound
		}
		return nil, result.Error
	}
	return &bot, nil
}

// ListBots returns all of the user's bots, newest first.
func (s *BotService) ListBots(userID uint) ([]models.Bot, error) {
	var bots []models.Bot
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&bots).Error; err != nil {
		return nil, err
	}
	return bots, nil
}

// UpdateBot applies the non-nil fields of the request.
func (s *BotService) UpdateBot(userID, botID uint, req *models.UpdateBotRequest) (*models.Bot, error) {
	bot, err := s.GetBot(userID, botID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Model != nil {
		updates["model"] = *req.Model
	}
	if req.Prompt != nil {
		updates["prompt"] = *req.Prompt
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return bot, nil
	}

	if err := s.db.Model(bot).Updates(updates).Error; err != nil {
		return nil, err
	}
	return bot, nil
}

// DeleteBot removes the bot and its conversation history.
func (s *BotService) DeleteBot(userID, botID uint) error {
	bot, err := s.GetBot(userID, botID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id IN (?)",
			tx.Model(&models.Conversation{}).Select("id").Where("bot_id = ?", bot.ID),
		).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("bot_id = ?", bot.ID).Delete(&models.Conversation{}).Error; err != nil {
			return err
		}
		return tx.Delete(bot).Error
	})
}

// UpdateFlags sets the connection lifecycle flags.
func (s *BotService) UpdateFlags(botID uint, connected, active bool) error {
	return s.db.Model(&models.Bot{}).Where("id = ?", botID).Updates(map[string]any{
		"is_connected": connected,
		"is_active":    active,
	}).Error
}

// IncrementMessageCount bumps the bot's lifetime message counter.
func (s *BotService) IncrementMessageCount(botID uint) error {
	return s.db.Model(&models.Bot{}).Where("id = ?", botID).
		UpdateColumn("message_count", gorm.Expr("message_count + ?", 1)).Error
}
