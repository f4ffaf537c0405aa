package whatsapp

import (
	"context"
)

// InboundMessage is one text message delivered by the transport.
type InboundMessage struct {
	From    string
	Body    string
	ChatID  string
	IsGroup bool
}

// EventHandlers are the callbacks a session registers on its transport
// connection.
type EventHandlers struct {
	OnQR      func(qrBase64, qrAscii string)
	OnStatus  func(status string)
	OnMessage func(msg InboundMessage)
}

// Connection is one live WhatsApp session. Implementations must allow
// SendText and Close from different goroutines.
type Connection interface {
	SendText(ctx context.Context, to string, text string) error
	Close() error
}

// Transport opens WhatsApp sessions. The wire protocol behind it is
// opaque to the engine: connect, emit QR/status events, send text,
// receive inbound text events.
type Transport interface {
	Connect(ctx context.Context, session string, handlers EventHandlers) (Connection, error)
}

// Transport statuses that mean the session is fully logged in.
func statusMeansConnected(status string) bool {
	return status == "inChat" || status == "isLogged"
}

// Transport statuses that mean the session was lost.
func statusMeansDisconnected(status string) bool {
	return status == "notLogged" || status == "browserClose"
}

// StatusMeansConnected reports whether a raw transport status denotes a
// fully-logged-in session. Exposed for the HTTP event stream, which
// attaches the refreshed bot record to such statuses.
func StatusMeansConnected(status string) bool {
	return statusMeansConnected(status)
}
