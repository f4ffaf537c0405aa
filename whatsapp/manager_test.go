package whatsapp

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"zapgpt/backend/internal/models"
	"zapgpt/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

type fakeConnection struct {
	mu     sync.Mutex
	sent   []string
	sentTo []string
	closed bool
}

func (c *fakeConnection) SendText(ctx context.Context, to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	c.sentTo = append(c.sentTo, to)
	return nil
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConnection) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type fakeTransport struct {
	mu       sync.Mutex
	conn     *fakeConnection
	handlers EventHandlers
	connects int
	err      error
}

func (t *fakeTransport) Connect(ctx context.Context, session string, handlers EventHandlers) (Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	if t.err != nil {
		return nil, t.err
	}
	t.handlers = handlers
	if t.conn == nil {
		t.conn = &fakeConnection{}
	}
	return t.conn, nil
}

type flagUpdate struct {
	botID     uint
	connected bool
	active    bool
}

type fakeStore struct {
	mu          sync.Mutex
	bots        map[uint]*models.Bot
	users       map[uint]*models.User
	flagUpdates []flagUpdate
	upserts     []ConversationUpsert
	messages    []models.Message
	botBumps    int
	nextConvID  uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bots:       make(map[uint]*models.Bot),
		users:      make(map[uint]*models.User),
		nextConvID: 1,
	}
}

func (s *fakeStore) BotByID(id uint) (*models.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bot, ok := s.bots[id]
	if !ok {
		return nil, errors.New("bot not found")
	}
	copied := *bot
	return &copied, nil
}

func (s *fakeStore) UserByID(id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	copied := *user
	return &copied, nil
}

func (s *fakeStore) UpsertConversation(upsert ConversationUpsert) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, upsert)
	conv := &models.Conversation{
		ID:           s.nextConvID,
		BotID:        upsert.BotID,
		UserID:       upsert.UserID,
		ContactPhone: upsert.ContactPhone,
	}
	s.nextConvID++
	return conv, nil
}

func (s *fakeStore) AppendMessage(conversationID uint, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, models.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	})
	return nil
}

func (s *fakeStore) UpdateBotFlags(botID uint, connected, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flagUpdates = append(s.flagUpdates, flagUpdate{botID, connected, active})
	return nil
}

func (s *fakeStore) IncrementBotMessages(botID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.botBumps++
	return nil
}

func (s *fakeStore) lastFlagUpdate() (flagUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.flagUpdates) == 0 {
		return flagUpdate{}, false
	}
	return s.flagUpdates[len(s.flagUpdates)-1], true
}

func (s *fakeStore) storedMessages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

type fakeRouter struct {
	mu       sync.Mutex
	reply    string
	err      error
	failures int // fail the first N calls, then succeed
	calls    int
	cleared  []uint
}

func (r *fakeRouter) Reply(ctx context.Context, bot *models.Bot, keys models.APIKeys, conversationKey, message string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	if r.calls <= r.failures {
		return "", errors.New("provider unavailable")
	}
	return r.reply, nil
}

func (r *fakeRouter) ClearBot(botID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, botID)
}

func (r *fakeRouter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func testBot() *models.Bot {
	return &models.Bot{
		ID:          1,
		UserID:      10,
		Name:        "Atendente",
		Model:       models.ModelGeminiFlash,
		Prompt:      "Você é um atendente simpático.",
		SessionName: "zapgpt_10_abc",
	}
}

func newTestManager(t *testing.T, transport Transport, store Store, router Router) *Manager {
	t.Helper()
	return NewManager(transport, store, router, nil, Config{
		BufferWindow:     20 * time.Millisecond,
		MaxRetries:       3,
		SendDelayPerChar: 0,
		ApologyText:      "Desculpe, não consegui responder agora.",
	}, testLogger(), nil)
}

func TestStartSessionIsIdempotent(t *testing.T) {
	transport := &fakeTransport{}
	store := newFakeStore()
	m := newTestManager(t, transport, store, &fakeRouter{})
	bot := testBot()

	require.NoError(t, m.StartSession(context.Background(), bot))
	require.NoError(t, m.StartSession(context.Background(), bot))

	assert.Equal(t, 1, transport.connects)
	assert.True(t, m.IsRunning(bot.ID))
}

func TestStartSessionReleasesSlotOnError(t *testing.T) {
	transport := &fakeTransport{err: errors.New("bridge down")}
	store := newFakeStore()
	m := newTestManager(t, transport, store, &fakeRouter{})
	bot := testBot()

	err := m.StartSession(context.Background(), bot)
	require.Error(t, err)
	assert.False(t, m.IsRunning(bot.ID))

	// a retry gets a fresh attempt instead of hitting the dead reservation
	transport.err = nil
	require.NoError(t, m.StartSession(context.Background(), bot))
	assert.True(t, m.IsRunning(bot.ID))
}

func TestStopSessionClosesAndClears(t *testing.T) {
	transport := &fakeTransport{}
	store := newFakeStore()
	router := &fakeRouter{}
	m := newTestManager(t, transport, store, router)
	bot := testBot()

	require.NoError(t, m.StartSession(context.Background(), bot))
	require.NoError(t, m.StopSession(context.Background(), bot.ID))

	assert.False(t, m.IsRunning(bot.ID))
	assert.True(t, transport.conn.closed)
	assert.Equal(t, []uint{bot.ID}, router.cleared)

	last, ok := store.lastFlagUpdate()
	require.True(t, ok)
	assert.Equal(t, flagUpdate{bot.ID, false, false}, last)
}

func TestStopSessionUnknownBotIsNoOp(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, &fakeTransport{}, store, &fakeRouter{})

	require.NoError(t, m.StopSession(context.Background(), 99))
	_, ok := store.lastFlagUpdate()
	assert.False(t, ok)
}

func TestStatusTransitionsPersistFlags(t *testing.T) {
	transport := &fakeTransport{}
	store := newFakeStore()
	m := newTestManager(t, transport, store, &fakeRouter{})
	bot := testBot()
	require.NoError(t, m.StartSession(context.Background(), bot))

	transport.handlers.OnStatus("isLogged")
	assert.Eventually(t, func() bool {
		last, ok := store.lastFlagUpdate()
		return ok && last == flagUpdate{bot.ID, true, true}
	}, time.Second, 5*time.Millisecond)

	transport.handlers.OnStatus("browserClose")
	assert.Eventually(t, func() bool {
		last, ok := store.lastFlagUpdate()
		return ok && last == flagUpdate{bot.ID, false, false}
	}, time.Second, 5*time.Millisecond)
}

func TestSessionListenersReceiveEveryStatus(t *testing.T) {
	transport := &fakeTransport{}
	m := newTestManager(t, transport, newFakeStore(), &fakeRouter{})
	bot := testBot()
	require.NoError(t, m.StartSession(context.Background(), bot))

	var mu sync.Mutex
	var got []SessionEvent
	unsubscribe := m.OnSessionUpdate(func(e SessionEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	transport.handlers.OnStatus("qrReadSuccess")
	unsubscribe()
	transport.handlers.OnStatus("inChat")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, SessionEvent{BotID: bot.ID, Status: "qrReadSuccess"}, got[0])
}

func TestQRListenerReceivesCode(t *testing.T) {
	transport := &fakeTransport{}
	m := newTestManager(t, transport, newFakeStore(), &fakeRouter{})
	bot := testBot()
	require.NoError(t, m.StartSession(context.Background(), bot))

	var mu sync.Mutex
	var got []QRCodeEvent
	m.OnQRCode(func(e QRCodeEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	transport.handlers.OnQR("base64data", "ascii art")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, QRCodeEvent{BotID: bot.ID, QRBase64: "base64data", QRAscii: "ascii art"}, got[0])
}

func TestInboundFiltersNoise(t *testing.T) {
	transport := &fakeTransport{}
	store := newFakeStore()
	router := &fakeRouter{reply: "oi!"}
	m := newTestManager(t, transport, store, router)
	bot := testBot()
	store.bots[bot.ID] = bot
	require.NoError(t, m.StartSession(context.Background(), bot))

	transport.handlers.OnMessage(InboundMessage{From: "g", Body: "group chatter", ChatID: "123@g.us", IsGroup: true})
	transport.handlers.OnMessage(InboundMessage{From: "s", Body: "story", ChatID: "status@broadcast"})
	transport.handlers.OnMessage(InboundMessage{From: "m", Body: "", ChatID: "551@c.us"})

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, router.callCount())
}
