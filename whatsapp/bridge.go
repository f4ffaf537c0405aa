package whatsapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zapgpt/backend/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	bridgeWriteTimeout = 10 * time.Second
	bridgeDialTimeout  = 45 * time.Second
)

// bridgeEvent is one JSON event pushed by the wppconnect bridge.
type bridgeEvent struct {
	Event    string `json:"event"` // "qr", "status" or "message"
	QRBase64 string `json:"qrBase64,omitempty"`
	QRAscii  string `json:"qrAscii,omitempty"`
	Status   string `json:"status,omitempty"`
	From     string `json:"from,omitempty"`
	Body     string `json:"body,omitempty"`
	ChatID   string `json:"chatId,omitempty"`
	IsGroup  bool   `json:"isGroup,omitempty"`
	Type     string `json:"type,omitempty"`
}

// bridgeCommand is one JSON command sent to the bridge.
type bridgeCommand struct {
	Action  string `json:"action"` // "start" or "sendText"
	Session string `json:"session,omitempty"`
	To      string `json:"to,omitempty"`
	Body    string `json:"body,omitempty"`
}

// BridgeTransport talks to a wppconnect-style bridge process over a
// websocket: one socket per WhatsApp session, JSON events in, JSON
// commands out.
type BridgeTransport struct {
	url string
	log *logger.Logger
}

// NewBridgeTransport creates a transport for the bridge at url.
func NewBridgeTransport(url string, log *logger.Logger) *BridgeTransport {
	return &BridgeTransport{url: url, log: log}
}

// Connect opens a socket, asks the bridge to start (or resume) the
// named session, and spawns the read pump that dispatches events to the
// handlers.
func (t *BridgeTransport) Connect(ctx context.Context, session string, handlers EventHandlers) (Connection, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: bridgeDialTimeout}

	ws, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to reach whatsapp bridge at %s: %w", t.url, err)
	}

	conn := &bridgeConn{ws: ws, log: t.log}

	if err := conn.write(bridgeCommand{Action: "start", Session: session}); err != nil {
		ws.Close()
		return nil, fmt.Errorf("failed to start session %s: %w", session, err)
	}

	go conn.readPump(handlers)

	return conn, nil
}

// bridgeConn is one live socket to the bridge. Writes are serialized by
// writeMu; gorilla/websocket allows a single concurrent writer.
type bridgeConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	log     *logger.Logger

	closeOnce sync.Once
}

func (c *bridgeConn) readPump(handlers EventHandlers) {
	for {
		var ev bridgeEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("bridge socket closed unexpectedly", "error", err.Error())
			}
			return
		}

		switch ev.Event {
		case "qr":
			if handlers.OnQR != nil {
				handlers.OnQR(ev.QRBase64, ev.QRAscii)
			}
		case "status":
			if handlers.OnStatus != nil {
				handlers.OnStatus(ev.Status)
			}
		case "message":
			// Only plain chat messages reach the engine.
			if ev.Type != "" && ev.Type != "chat" {
				continue
			}
			if handlers.OnMessage != nil {
				handlers.OnMessage(InboundMessage{
					From:    ev.From,
					Body:    ev.Body,
					ChatID:  ev.ChatID,
					IsGroup: ev.IsGroup,
				})
			}
		default:
			c.log.Debug("ignoring unknown bridge event", "event", ev.Event)
		}
	}
}

func (c *bridgeConn) write(cmd bridgeCommand) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(bridgeWriteTimeout))
	return c.ws.WriteJSON(cmd)
}

// SendText delivers one outbound message through the bridge.
func (c *bridgeConn) SendText(ctx context.Context, to string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(bridgeCommand{Action: "sendText", To: to, Body: text})
}

// Close shuts the socket down. Safe to call more than once.
func (c *bridgeConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(bridgeWriteTimeout))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
