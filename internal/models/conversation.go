package models

import (
	"time"
)

// Conversation is one contact's thread with one bot. It is created
// lazily on the first inbound message and updated in place on every
// later turn, keyed by (bot id, contact phone).
type Conversation struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	BotID         uint      `json:"bot_id" gorm:"uniqueIndex:idx_conversations_bot_contact"`
	UserID        uint      `json:"user_id" gorm:"index"`
	ContactName   string    `json:"contact_name"`
	ContactPhone  string    `json:"contact_phone" gorm:"uniqueIndex:idx_conversations_bot_contact"`
	LastMessage   string    `json:"last_message" gorm:"type:text"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int       `json:"unread_count" gorm:"default:0"`
	MessageCount  int       `json:"message_count" gorm:"default:0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
