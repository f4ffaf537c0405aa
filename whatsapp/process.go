package whatsapp

import (
	"context"
	"time"

	"zapgpt/backend/ai"
	"zapgpt/backend/internal/models"
	"zapgpt/backend/pkg/logger"
	"zapgpt/backend/pkg/messages"
	"zapgpt/backend/shared/observability"
)

// processTurn runs one conversation turn end to end: resolve the bot
// and its owner's credentials, ask the AI router for a reply (with
// retries), persist the exchange, then split and pace the outbound
// messages. Invoked by the debounce buffer once per flushed burst.
func (m *Manager) processTurn(key ConvKey, from, combined string) {
	ctx := context.Background()
	log := m.log.WithBot(key.BotID)

	bot, err := m.store.BotByID(key.BotID)
	if err != nil {
		log.Error("turn abandoned: bot lookup failed", "error", err.Error())
		return
	}

	user, err := m.store.UserByID(bot.UserID)
	if err != nil {
		log.Error("turn abandoned: owner lookup failed", "user_id", bot.UserID, "error", err.Error())
		return
	}

	keys := m.resolveCredentials(ctx, user.Keys())
	convKey := ai.ConversationKey(key.BotID, key.ChatID)

	answer, failed := m.generateReply(ctx, log, bot, keys, convKey, combined)

	now := time.Now()
	conv, err := m.store.UpsertConversation(ConversationUpsert{
		BotID:         bot.ID,
		UserID:        bot.UserID,
		ContactName:   from,
		ContactPhone:  from,
		LastMessage:   answer,
		LastMessageAt: now,
		UnreadInc:     1,
		MessageInc:    1,
	})
	if err != nil {
		log.Error("turn abandoned: conversation upsert failed", "chat_id", key.ChatID, "error", err.Error())
		return
	}

	if err := m.store.AppendMessage(conv.ID, models.RoleUser, combined); err != nil {
		log.Error("turn abandoned: failed to persist inbound message", "conversation_id", conv.ID, "error", err.Error())
		return
	}
	if err := m.store.AppendMessage(conv.ID, models.RoleAssistant, answer); err != nil {
		log.Error("turn abandoned: failed to persist reply", "conversation_id", conv.ID, "error", err.Error())
		return
	}

	if err := m.store.IncrementBotMessages(bot.ID); err != nil {
		log.Warn("failed to bump bot message count", "error", err.Error())
	}

	// The session may have been stopped while the provider call was in
	// flight; a turn for an untracked bot is discarded after persistence.
	conn := m.connection(key.BotID)
	if conn == nil {
		log.Info("turn persisted but not sent: session no longer running", "chat_id", key.ChatID)
		return
	}

	chunks := messages.Split(answer)
	messages.SendWithDelay(ctx, conn, key.ChatID, chunks, m.cfg.SendDelayPerChar, log)

	if m.metrics != nil {
		observability.Add(ctx, m.metrics.ChunksSent, int64(len(chunks)))
		if failed {
			observability.Add(ctx, m.metrics.TurnsFailed, 1)
		} else {
			observability.Add(ctx, m.metrics.TurnsProcessed, 1)
		}
	}
}

// generateReply calls the router up to MaxRetries times. Credential
// errors are never retried: the configuration hint is logged for the
// bot owner and the contact gets the apology, same as exhaustion.
// failed reports that fallback.
func (m *Manager) generateReply(ctx context.Context, log *logger.Logger, bot *models.Bot, keys models.APIKeys, convKey, message string) (string, bool) {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		answer, err := m.router.Reply(ctx, bot, keys, convKey, message)
		if err == nil {
			return answer, false
		}
		lastErr = err

		if ai.IsCredentialsError(err) {
			log.Warn("provider credentials not configured", "error", err.Error())
			return m.cfg.ApologyText, true
		}

		log.Warn("provider call failed", "attempt", attempt, "error", err.Error())
		if m.metrics != nil {
			observability.Add(ctx, m.metrics.ProviderRetries, 1)
		}
	}

	log.Error("all provider attempts failed", "attempts", m.cfg.MaxRetries, "error", lastErr.Error())
	return m.cfg.ApologyText, true
}

// resolveCredentials fills gaps in the user's own keys from the shared
// secret store, when one is configured.
func (m *Manager) resolveCredentials(ctx context.Context, keys models.APIKeys) models.APIKeys {
	if m.secrets == nil {
		return keys
	}
	if keys.GeminiKey == "" {
		keys.GeminiKey = m.secrets.GetSecretWithDefault(ctx, "GEMINI_API_KEY", "")
	}
	if keys.OpenAIKey == "" {
		keys.OpenAIKey = m.secrets.GetSecretWithDefault(ctx, "OPENAI_API_KEY", "")
	}
	if keys.OpenAIAssistantID == "" {
		keys.OpenAIAssistantID = m.secrets.GetSecretWithDefault(ctx, "OPENAI_ASSISTANT_ID", "")
	}
	return keys
}
