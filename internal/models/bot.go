package models

import (
	"time"
)

// AIModel selects which AI backend answers for a bot.
type AIModel string

const (
	ModelGeminiFlash AIModel = "gemini-2.0-flash"
	ModelGPT4        AIModel = "gpt-4"
	ModelGPT35Turbo  AIModel = "gpt-3.5-turbo"
)

// Valid reports whether the model is one of the supported backends.
func (m AIModel) Valid() bool {
	switch m {
	case ModelGeminiFlash, ModelGPT4, ModelGPT35Turbo:
		return true
	}
	return false
}

// Bot is one AI persona bound to one WhatsApp account.
// IsActive (the bot should answer) and IsConnected (the transport is
// live) are independent: a bot can be active but momentarily offline.
type Bot struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	UserID       uint      `json:"user_id" gorm:"index"`
	Name         string    `json:"name" gorm:"not null"`
	Model        AIModel   `json:"model" gorm:"not null"`
	Prompt       string    `json:"prompt" gorm:"type:text;not null"`
	IsActive     bool      `json:"is_active" gorm:"default:false"`
	IsConnected  bool      `json:"is_connected" gorm:"default:false"`
	SessionName  string    `json:"session_name" gorm:"uniqueIndex"` // stable id so reconnects resume the same WhatsApp session
	MessageCount int       `json:"message_count" gorm:"default:0"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CreateBotRequest struct {
	Name   string  `json:"name" binding:"required,min=2"`
	Model  AIModel `json:"model" binding:"required"`
	Prompt string  `json:"prompt" binding:"required,min=10"`
}

type UpdateBotRequest struct {
	Name     *string  `json:"name" binding:"omitempty,min=2"`
	Model    *AIModel `json:"model"`
	Prompt   *string  `json:"prompt" binding:"omitempty,min=10"`
	IsActive *bool    `json:"is_active"`
}
