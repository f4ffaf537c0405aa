package whatsapp

import (
	"context"
	"sync"
	"time"

	"zapgpt/backend/internal/models"
	"zapgpt/backend/pkg/logger"
	"zapgpt/backend/shared/observability"
)

// Store is the slice of persistence the engine needs. Implemented by
// the service layer; kept narrow so tests can fake it.
type Store interface {
	BotByID(id uint) (*models.Bot, error)
	UserByID(id uint) (*models.User, error)
	UpsertConversation(upsert ConversationUpsert) (*models.Conversation, error)
	AppendMessage(conversationID uint, role, content string) error
	UpdateBotFlags(botID uint, connected, active bool) error
	IncrementBotMessages(botID uint) error
}

// ConversationUpsert carries one turn's conversation update. Counters
// are increments, not absolute values.
type ConversationUpsert struct {
	BotID         uint
	UserID        uint
	ContactName   string
	ContactPhone  string
	LastMessage   string
	LastMessageAt time.Time
	UnreadInc     int
	MessageInc    int
}

// Router produces AI replies and owns per-conversation provider memory.
type Router interface {
	Reply(ctx context.Context, bot *models.Bot, keys models.APIKeys, conversationKey, message string) (string, error)
	ClearBot(botID uint)
}

// SecretSource resolves fallback credentials (e.g. a shared key from
// Vault) when a user has not configured their own.
type SecretSource interface {
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// QRCodeEvent is broadcast whenever the transport produces a pairing QR.
type QRCodeEvent struct {
	BotID    uint   `json:"botId"`
	QRBase64 string `json:"qrBase64"`
	QRAscii  string `json:"qrAscii"`
}

// SessionEvent is broadcast on every transport status change.
type SessionEvent struct {
	BotID  uint   `json:"botId"`
	Status string `json:"status"`
}

type QRListener func(QRCodeEvent)
type SessionListener func(SessionEvent)

// Config tunes the engine.
type Config struct {
	BufferWindow     time.Duration
	MaxRetries       int
	SendDelayPerChar time.Duration
	ApologyText      string
}

// Manager owns one live WhatsApp connection per bot: it wires inbound
// events into the debounce buffer, persists lifecycle transitions and
// fans QR/status events out to subscribers. Constructed once at startup
// and passed by handle; all session state lives here.
type Manager struct {
	transport Transport
	store     Store
	router    Router
	secrets   SecretSource
	log       *logger.Logger
	cfg       Config
	metrics   *observability.EngineMetrics

	mu      sync.Mutex
	clients map[uint]Connection // nil value = connection being established

	buffer *DebounceBuffer

	listenerMu       sync.Mutex
	nextListenerID   int
	qrListeners      map[int]QRListener
	sessionListeners map[int]SessionListener
}

// NewManager creates the engine. metrics and secrets may be nil.
func NewManager(transport Transport, store Store, router Router, secrets SecretSource, cfg Config, log *logger.Logger, metrics *observability.EngineMetrics) *Manager {
	if cfg.BufferWindow <= 0 {
		cfg.BufferWindow = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	m := &Manager{
		transport:        transport,
		store:            store,
		router:           router,
		secrets:          secrets,
		log:              log,
		cfg:              cfg,
		metrics:          metrics,
		clients:          make(map[uint]Connection),
		qrListeners:      make(map[int]QRListener),
		sessionListeners: make(map[int]SessionListener),
	}
	return m
}

// OnQRCode registers a QR listener and returns its unsubscribe
// function. Fan-out is global; filtering by bot is the subscriber's
// job.
func (m *Manager) OnQRCode(listener QRListener) func() {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()

	id := m.nextListenerID
	m.nextListenerID++
	m.qrListeners[id] = listener

	return func() {
		m.listenerMu.Lock()
		defer m.listenerMu.Unlock()
		delete(m.qrListeners, id)
	}
}

// OnSessionUpdate registers a status listener and returns its
// unsubscribe function.
func (m *Manager) OnSessionUpdate(listener SessionListener) func() {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()

	id := m.nextListenerID
	m.nextListenerID++
	m.sessionListeners[id] = listener

	return func() {
		m.listenerMu.Lock()
		defer m.listenerMu.Unlock()
		delete(m.sessionListeners, id)
	}
}

func (m *Manager) broadcastQR(event QRCodeEvent) {
	m.listenerMu.Lock()
	listeners := make([]QRListener, 0, len(m.qrListeners))
	for _, l := range m.qrListeners {
		listeners = append(listeners, l)
	}
	m.listenerMu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}

func (m *Manager) broadcastStatus(event SessionEvent) {
	m.listenerMu.Lock()
	listeners := make([]SessionListener, 0, len(m.sessionListeners))
	for _, l := range m.sessionListeners {
		listeners = append(listeners, l)
	}
	m.listenerMu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}

// StartSession opens a transport connection for the bot. A bot whose
// session is already tracked is a no-op; the insert-if-absent guard is
// atomic, so concurrent calls cannot open duplicate connections. A
// connection error is returned to the caller, who owns rolling the
// bot's flags back.
func (m *Manager) StartSession(ctx context.Context, bot *models.Bot) error {
	m.ensureBuffer()

	m.mu.Lock()
	if _, tracked := m.clients[bot.ID]; tracked {
		m.mu.Unlock()
		m.log.Info("session already running", "bot_id", bot.ID)
		return nil
	}
	m.clients[bot.ID] = nil // reserve the slot before the slow connect
	m.mu.Unlock()

	m.log.Info("starting session", "bot_id", bot.ID, "bot_name", bot.Name)

	botCopy := *bot
	conn, err := m.transport.Connect(ctx, bot.SessionName, EventHandlers{
		OnQR: func(qrBase64, qrAscii string) {
			m.broadcastQR(QRCodeEvent{BotID: botCopy.ID, QRBase64: qrBase64, QRAscii: qrAscii})
		},
		OnStatus: func(status string) {
			m.handleStatus(&botCopy, status)
		},
		OnMessage: func(msg InboundMessage) {
			m.handleInbound(&botCopy, msg)
		},
	})
	if err != nil {
		m.mu.Lock()
		delete(m.clients, bot.ID)
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.clients[bot.ID] = conn
	m.mu.Unlock()

	m.log.Info("session ready", "bot_id", bot.ID, "bot_name", bot.Name)
	return nil
}

// StopSession closes the bot's connection, discards its pending
// buffers and provider memory, and marks the bot offline in storage.
// Unknown bot ids are a no-op.
func (m *Manager) StopSession(ctx context.Context, botID uint) error {
	m.mu.Lock()
	conn, tracked := m.clients[botID]
	if tracked {
		delete(m.clients, botID)
	}
	m.mu.Unlock()

	if !tracked {
		return nil
	}

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.log.Warn("error closing connection", "bot_id", botID, "error", err.Error())
		}
	}

	if m.buffer != nil {
		m.buffer.CancelBot(botID)
	}
	m.router.ClearBot(botID)

	if err := m.store.UpdateBotFlags(botID, false, false); err != nil {
		m.log.Error("failed to mark bot disconnected", "bot_id", botID, "error", err.Error())
	}

	m.log.Info("session stopped", "bot_id", botID)
	return nil
}

// IsRunning reports whether a session for the bot id is tracked.
func (m *Manager) IsRunning(botID uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, tracked := m.clients[botID]
	return tracked
}

// connection returns the tracked live connection, if any.
func (m *Manager) connection(botID uint) Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[botID]
}

func (m *Manager) ensureBuffer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buffer == nil {
		m.buffer = NewDebounceBuffer(m.cfg.BufferWindow, m.processTurn)
	}
}

// handleStatus broadcasts the raw status and persists the lifecycle
// transition. The write is detached: a storage failure only logs, it
// never reaches the transport callback.
func (m *Manager) handleStatus(bot *models.Bot, status string) {
	m.log.Info("session status", "bot_id", bot.ID, "bot_name", bot.Name, "status", status)

	m.broadcastStatus(SessionEvent{BotID: bot.ID, Status: status})

	switch {
	case statusMeansConnected(status):
		go m.persistFlags(bot.ID, true, true)
	case statusMeansDisconnected(status):
		go m.persistFlags(bot.ID, false, false)
	}
}

func (m *Manager) persistFlags(botID uint, connected, active bool) {
	if err := m.store.UpdateBotFlags(botID, connected, active); err != nil {
		m.log.Error("failed to persist bot flags", "bot_id", botID, "error", err.Error())
	}
}

// handleInbound filters transport noise and buffers the fragment.
func (m *Manager) handleInbound(bot *models.Bot, msg InboundMessage) {
	if msg.IsGroup || msg.ChatID == "status@broadcast" || msg.Body == "" {
		return
	}

	m.buffer.Add(ConvKey{BotID: bot.ID, ChatID: msg.ChatID}, msg.From, msg.Body)
}
