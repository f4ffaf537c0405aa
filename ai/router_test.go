package ai

import (
	"context"
	"testing"

	"zapgpt/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyRequiresGeminiKey(t *testing.T) {
	r := NewRouter(RouterOptions{})
	bot := &models.Bot{ID: 1, Model: models.ModelGeminiFlash}

	_, err := r.Reply(context.Background(), bot, models.APIKeys{}, "1:a@c.us", "oi")
	require.Error(t, err)
	assert.True(t, IsCredentialsError(err))
	assert.Contains(t, err.Error(), "Gemini API key not configured")
}

func TestReplyRequiresBothOpenAICredentials(t *testing.T) {
	r := NewRouter(RouterOptions{})
	bot := &models.Bot{ID: 1, Model: models.ModelGPT4}

	// key without assistant id
	_, err := r.Reply(context.Background(), bot, models.APIKeys{OpenAIKey: "sk-x"}, "1:a@c.us", "oi")
	require.Error(t, err)
	assert.True(t, IsCredentialsError(err))

	// assistant id without key
	_, err = r.Reply(context.Background(), bot, models.APIKeys{OpenAIAssistantID: "asst_x"}, "1:a@c.us", "oi")
	require.Error(t, err)
	assert.True(t, IsCredentialsError(err))
}

func TestReplyRejectsUnknownModel(t *testing.T) {
	r := NewRouter(RouterOptions{})
	bot := &models.Bot{ID: 1, Model: "llama-unknown"}

	_, err := r.Reply(context.Background(), bot, models.APIKeys{GeminiKey: "k"}, "1:a@c.us", "oi")
	require.Error(t, err)
	assert.False(t, IsCredentialsError(err))
	assert.Contains(t, err.Error(), "unsupported model")
}

func TestConversationKey(t *testing.T) {
	assert.Equal(t, "7:5511999@c.us", ConversationKey(7, "5511999@c.us"))
}

func TestGeminiHistorySeeding(t *testing.T) {
	m := NewGeminiManager("Olá! Pode me chamar a qualquer hora 😊")

	history := m.seededHistory("1:a@c.us", "Você é um atendente.")
	require.Len(t, history, 2)
	assert.Equal(t, "user", string(history[0].Role))
	assert.Equal(t, "model", string(history[1].Role))
}

func TestClearBotDropsOnlyThatBotsMemory(t *testing.T) {
	m := NewGeminiManager("oi")
	m.histories.Set("1:a@c.us", m.seededHistory("1:a@c.us", "p"))
	m.histories.Set("12:b@c.us", m.seededHistory("12:b@c.us", "p"))

	r := &Router{gemini: m, assistants: NewAssistantManager(0, 0)}
	r.ClearBot(1)

	_, ok := m.histories.Get("1:a@c.us")
	assert.False(t, ok)
	// bot 12 shares the "1" digit prefix but not the "1:" key prefix
	_, ok = m.histories.Get("12:b@c.us")
	assert.True(t, ok)
}
