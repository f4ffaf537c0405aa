package models

import (
	"encoding/json"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Plan is the subscription tier of a user account.
type Plan string

const (
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Valid reports whether the plan is a known tier.
func (p Plan) Valid() bool {
	switch p {
	case PlanStarter, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// APIKeys holds the per-user AI provider credentials.
type APIKeys struct {
	OpenAIKey         string `json:"openaiKey,omitempty"`
	OpenAIAssistantID string `json:"openaiAssistantId,omitempty"`
	GeminiKey         string `json:"geminiKey,omitempty"`
}

// User represents a user account in the system
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `json:"name"`
	LastName  string    `json:"last_name"`
	Email     string    `gorm:"uniqueIndex" json:"email"`
	Password  string    `json:"-"` // Never return password in JSON
	Plan      Plan      `json:"plan" gorm:"default:starter"`
	APIKeys   string    `json:"-" gorm:"type:text"` // JSON-encoded APIKeys
	LastLogin time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateUserRequest is the request structure for creating a new user
type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	LastName string `json:"last_name"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Plan     Plan   `json:"plan,omitempty"`
}

// LoginRequest is the request structure for user login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest carries partial profile changes.
type UpdateProfileRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=1"`
	LastName *string `json:"last_name"`
}

// UpdateAPIKeysRequest carries new provider credentials for a user
type UpdateAPIKeysRequest struct {
	OpenAIKey         *string `json:"openaiKey"`
	OpenAIAssistantID *string `json:"openaiAssistantId"`
	GeminiKey         *string `json:"geminiKey"`
}

// UserResponse is the response structure for user data (without sensitive info)
type UserResponse struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Plan      Plan      `json:"plan"`
	LastLogin time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HashPassword hashes a password for storage
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with a hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// BeforeCreate is a GORM hook to hash the password before saving
func (u *User) BeforeCreate(tx *gorm.DB) error {
	hashedPassword, err := HashPassword(u.Password)
	if err != nil {
		return err
	}
	u.Password = hashedPassword

	if u.Plan == "" {
		u.Plan = PlanStarter
	}

	return nil
}

// Keys decodes the stored provider credentials. A corrupt or empty
// column yields zero-value keys rather than an error.
func (u *User) Keys() APIKeys {
	var keys APIKeys
	if u.APIKeys != "" {
		_ = json.Unmarshal([]byte(u.APIKeys), &keys)
	}
	return keys
}

// SetKeys encodes and stores the provider credentials.
func (u *User) SetKeys(keys APIKeys) error {
	raw, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	u.APIKeys = string(raw)
	return nil
}

// ToResponse converts a User model to a UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		LastName:  u.LastName,
		Email:     u.Email,
		Plan:      u.Plan,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
