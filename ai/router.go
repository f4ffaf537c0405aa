package ai

import (
	"context"
	"fmt"
	"time"

	"zapgpt/backend/internal/models"
)

// RouterOptions configures the provider router.
type RouterOptions struct {
	Greeting        string
	RunPollInterval time.Duration
	RunMaxPolls     int
}

// Router maps a bot's configured model to a concrete AI backend call.
// Each family keeps its own per-conversation continuity: an in-process
// chat history for Gemini, a provider-side thread for OpenAI
// assistants.
type Router struct {
	gemini     *GeminiManager
	assistants *AssistantManager
}

// NewRouter creates a router with fresh provider memory.
func NewRouter(opts RouterOptions) *Router {
	return &Router{
		gemini:     NewGeminiManager(opts.Greeting),
		assistants: NewAssistantManager(opts.RunPollInterval, opts.RunMaxPolls),
	}
}

// Reply dispatches one combined turn to the backend configured on the
// bot and returns the assistant's reply. Missing credentials fail
// immediately with a *CredentialsError.
func (r *Router) Reply(ctx context.Context, bot *models.Bot, keys models.APIKeys, conversationKey, message string) (string, error) {
	switch bot.Model {
	case models.ModelGeminiFlash:
		if keys.GeminiKey == "" {
			return "", &CredentialsError{
				Message: "Gemini API key not configured. Configure em Configurações → API Keys.",
			}
		}
		return r.gemini.SendMessage(ctx, conversationKey, message, GeminiOptions{
			APIKey:       keys.GeminiKey,
			Model:        string(bot.Model),
			SystemPrompt: bot.Prompt,
		})

	case models.ModelGPT4, models.ModelGPT35Turbo:
		if keys.OpenAIKey == "" || keys.OpenAIAssistantID == "" {
			return "", &CredentialsError{
				Message: "OpenAI credentials not configured. Configure em Configurações → API Keys.",
			}
		}
		return r.assistants.SendMessage(ctx, conversationKey, message, AssistantOptions{
			APIKey:      keys.OpenAIKey,
			AssistantID: keys.OpenAIAssistantID,
		})

	default:
		return "", fmt.Errorf("unsupported model %q", bot.Model)
	}
}

// ClearConversation drops provider memory for one conversation.
func (r *Router) ClearConversation(key string) {
	r.gemini.ClearConversation(key)
	r.assistants.ClearConversation(key)
}

// ClearBot drops provider memory for every conversation of a bot.
// Called when the bot's session stops.
func (r *Router) ClearBot(botID uint) {
	prefix := fmt.Sprintf("%d:", botID)
	r.gemini.ClearPrefix(prefix)
	r.assistants.ClearPrefix(prefix)
}
