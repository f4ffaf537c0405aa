package whatsapp

import (
	"context"
	"testing"
	"time"

	"zapgpt/backend/ai"
	"zapgpt/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedManager(t *testing.T, store *fakeStore, router *fakeRouter) (*Manager, *fakeTransport) {
	t.Helper()

	transport := &fakeTransport{}
	m := newTestManager(t, transport, store, router)

	bot := testBot()
	user := &models.User{ID: bot.UserID, Email: "owner@example.com"}
	require.NoError(t, user.SetKeys(models.APIKeys{GeminiKey: "gk"}))
	store.bots[bot.ID] = bot
	store.users[user.ID] = user

	require.NoError(t, m.StartSession(context.Background(), bot))
	return m, transport
}

func TestProcessTurnHappyPath(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{reply: "Claro! O plano Pro custa R$49."}
	m, transport := startedManager(t, store, router)
	require.True(t, m.IsRunning(testBot().ID))

	transport.handlers.OnMessage(InboundMessage{
		From: "5511999@c.us", Body: "oi", ChatID: "5511999@c.us",
	})
	transport.handlers.OnMessage(InboundMessage{
		From: "5511999@c.us", Body: "quanto custa o plano?", ChatID: "5511999@c.us",
	})

	assert.Eventually(t, func() bool {
		return len(transport.conn.sentTexts()) > 0
	}, time.Second, 5*time.Millisecond)

	// the burst arrives at the router as one combined message
	assert.Equal(t, 1, router.callCount())

	msgs := store.storedMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "oi \n quanto custa o plano?", msgs[0].Content)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, router.reply, msgs[1].Content)

	// the reply goes out split by sentence
	assert.Equal(t, []string{"Claro!", "O plano Pro custa R$49."}, transport.conn.sentTexts())
}

func TestProcessTurnRetriesThenSucceeds(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{reply: "consegui!", failures: 2}
	_, transport := startedManager(t, store, router)

	transport.handlers.OnMessage(InboundMessage{
		From: "1@c.us", Body: "oi", ChatID: "1@c.us",
	})

	assert.Eventually(t, func() bool {
		return len(transport.conn.sentTexts()) > 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 3, router.callCount())
	assert.Equal(t, []string{"consegui!"}, transport.conn.sentTexts())
}

func TestProcessTurnFallsBackToApology(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{failures: 10}
	m, transport := startedManager(t, store, router)

	transport.handlers.OnMessage(InboundMessage{
		From: "1@c.us", Body: "oi", ChatID: "1@c.us",
	})

	assert.Eventually(t, func() bool {
		return len(transport.conn.sentTexts()) > 0
	}, time.Second, 5*time.Millisecond)

	// bounded attempts, then the apology is persisted and sent
	assert.Equal(t, m.cfg.MaxRetries, router.callCount())
	assert.Equal(t, []string{m.cfg.ApologyText}, transport.conn.sentTexts())

	msgs := store.storedMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, m.cfg.ApologyText, msgs[1].Content)
}

func TestProcessTurnCredentialsErrorSkipsRetries(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{err: &ai.CredentialsError{
		Message: "Gemini API key not configured. Configure em Configurações → API Keys.",
	}}
	m, transport := startedManager(t, store, router)

	transport.handlers.OnMessage(InboundMessage{
		From: "1@c.us", Body: "oi", ChatID: "1@c.us",
	})

	assert.Eventually(t, func() bool {
		return len(transport.conn.sentTexts()) > 0
	}, time.Second, 5*time.Millisecond)

	// one attempt only, and the contact sees the apology, never the
	// configuration hint
	assert.Equal(t, 1, router.callCount())
	assert.Equal(t, []string{m.cfg.ApologyText}, transport.conn.sentTexts())

	msgs := store.storedMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, m.cfg.ApologyText, msgs[1].Content)
	assert.NotContains(t, msgs[1].Content, "API key")
}

func TestProcessTurnDiscardedAfterStop(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{reply: "tarde demais"}
	m, transport := startedManager(t, store, router)

	transport.handlers.OnMessage(InboundMessage{
		From: "1@c.us", Body: "oi", ChatID: "1@c.us",
	})
	require.NoError(t, m.StopSession(context.Background(), testBot().ID))

	// pending buffers died with the session: nothing reaches the router
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, router.callCount())
	assert.Empty(t, transport.conn.sentTexts())
}

func TestProcessTurnUpsertsConversation(t *testing.T) {
	store := newFakeStore()
	router := &fakeRouter{reply: "resposta"}
	_, transport := startedManager(t, store, router)

	transport.handlers.OnMessage(InboundMessage{
		From: "5511999@c.us", Body: "oi", ChatID: "5511999@c.us",
	})

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.upserts) == 1
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	up := store.upserts[0]
	store.mu.Unlock()

	assert.Equal(t, uint(1), up.BotID)
	assert.Equal(t, uint(10), up.UserID)
	assert.Equal(t, "5511999@c.us", up.ContactPhone)
	assert.Equal(t, "resposta", up.LastMessage)
	assert.Equal(t, 1, up.UnreadInc)
	assert.Equal(t, 1, up.MessageInc)
}
