package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"zapgpt/backend/internal/models"
	"zapgpt/backend/pkg/jwt"

	"gorm.io/gorm"
)

var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
)

// tokensPerMessage is the rough token estimate used for the usage
// stats shown in the dashboard.
const tokensPerMessage = 150

// Cache is the small slice of caching the services need. Backed by
// Redis when configured, an in-process TTL cache otherwise.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// UserService handles account operations
type UserService struct {
	db    *gorm.DB
	jwt   *jwt.Service
	cache Cache
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB, jwtService *jwt.Service, cache Cache) *UserService {
	return &UserService{db: db, jwt: jwtService, cache: cache}
}

// CreateUser registers an account and returns it with a fresh token.
func (s *UserService) CreateUser(req *models.CreateUserRequest) (*models.User, string, error) {
	var existingUser models.User
	result := s.db.Where("email = ?", req.Email).First(&existingUser)
	if result.RowsAffected > 0 {
		return nil, "", ErrUserAlreadyExists
	}

	user := newUserFromRequest(req)

	if err := s.db.Create(&user).Error; err != nil {
		return nil, "", err
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, "", err
	}

	return &user, token, nil
}

// Login authenticates a user and returns a JWT token
func (s *UserService) Login(req *models.LoginRequest) (*models.User, string, error) {
	var user models.User
	result := s.db.Where("email = ?", req.Email).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", result.Error
	}

	if !models.CheckPasswordHash(req.Password, user.Password) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, "", err
	}

	return &user, token, nil
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	result := s.db.First(&user, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// newUserFromRequest maps a signup request onto the model. An omitted
// or unknown plan falls back to starter.
func newUserFromRequest(req *models.CreateUserRequest) models.User {
	plan := req.Plan
	if !plan.Valid() {
		plan = models.PlanStarter
	}

	return models.User{
		Name:     req.Name,
		LastName: req.LastName,
		Email:    req.Email,
		Password: req.Password,
		Plan:     plan,
	}
}

// profileUpdates builds the column map for a partial profile change.
func profileUpdates(req *models.UpdateProfileRequest) map[string]any {
	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	return updates
}

// UpdateProfile applies the non-nil name fields.
func (s *UserService) UpdateProfile(userID uint, req *models.UpdateProfileRequest) (*models.User, error) {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return nil, err
	}

	updates := profileUpdates(req)
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateAPIKeys merges the request into the user's stored provider
// credentials. Omitted fields are left untouched; an empty string
// clears a key.
func (s *UserService) UpdateAPIKeys(userID uint, req *models.UpdateAPIKeysRequest) (*models.User, error) {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return nil, err
	}

	keys := user.Keys()
	if req.OpenAIKey != nil {
		keys.OpenAIKey = *req.OpenAIKey
	}
	if req.OpenAIAssistantID != nil {
		keys.OpenAIAssistantID = *req.OpenAIAssistantID
	}
	if req.GeminiKey != nil {
		keys.GeminiKey = *req.GeminiKey
	}
	if err := user.SetKeys(keys); err != nil {
		return nil, err
	}

	if err := s.db.Model(user).Update("api_keys", user.APIKeys).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// UserStats is the dashboard usage summary.
type UserStats struct {
	TotalBots          int64 `json:"total_bots"`
	ActiveBots         int64 `json:"active_bots"`
	TotalConversations int64 `json:"total_conversations"`
	TotalMessages      int64 `json:"total_messages"`
	EstimatedTokens    int64 `json:"estimated_tokens"`
}

// GetStats aggregates the user's usage counters. Results are cached
// briefly since the dashboard polls them.
func (s *UserService) GetStats(ctx context.Context, userID uint) (*UserStats, error) {
	cacheKey := fmt.Sprintf("stats:%d", userID)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, cacheKey); ok {
			var stats UserStats
			if err := json.Unmarshal([]byte(cached), &stats); err == nil {
				return &stats, nil
			}
		}
	}

	var stats UserStats
	if err := s.db.Model(&models.Bot{}).Where("user_id = ?", userID).Count(&stats.TotalBots).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Bot{}).Where("user_id = ? AND is_active = ?", userID, true).Count(&stats.ActiveBots).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Conversation{}).Where("user_id = ?", userID).Count(&stats.TotalConversations).Error; err != nil {
		return nil, err
	}

	var totalMessages struct{ Total int64 }
	err := s.db.Model(&models.Bot{}).
		Select("COALESCE(SUM(message_count), 0) AS total").
		Where("user_id = ?", userID).
		Scan(&totalMessages).Error
	if err != nil {
		return nil, err
	}
	stats.TotalMessages = totalMessages.Total
	stats.EstimatedTokens = stats.TotalMessages * tokensPerMessage

	if s.cache != nil {
		if payload, err := json.Marshal(&stats); err == nil {
			_ = s.cache.Set(ctx, cacheKey, string(payload))
		}
	}
	return &stats, nil
}

// InvalidateStats drops the cached stats after a mutation.
func (s *UserService) InvalidateStats(ctx context.Context, userID uint) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, fmt.Sprintf("stats:%d", userID))
	}
}
