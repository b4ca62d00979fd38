package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hubcast/hubcast/proto"
)

// WebSocketTransport carries protocol messages as JSON text frames over a
// gorilla websocket connection. Writes are serialized with a mutex because
// the underlying connection forbids concurrent writers.
type WebSocketTransport struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{}
}

// NewWebSocketDialer returns a Dialer producing fresh websocket transports.
func NewWebSocketDialer() Dialer {
	return func() Transport { return NewWebSocketTransport() }
}

func (t *WebSocketTransport) Connect(ctx context.Context, addr string, creds Credentials) error {
	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("invalid relay URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "":
		u.Scheme = "wss"
	default:
		return fmt.Errorf("invalid relay URL scheme %q", u.Scheme)
	}

	q := u.Query()
	q.Set("device_id", creds.DeviceID)
	if creds.DeviceName != "" {
		q.Set("device_name", creds.DeviceName)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+creds.Token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}

	t.conn = conn
	return nil
}

func (t *WebSocketTransport) Send(msg proto.Message) error {
	if t.conn == nil {
		return fmt.Errorf("transport is not connected")
	}

	data, err := proto.Encode(msg)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	err = t.conn.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	slog.Debug("Sent message", "type", msg.Type, "action", msg.Action, "id", msg.ID)
	return nil
}

func (t *WebSocketTransport) Read() (proto.Message, error) {
	if t.conn == nil {
		return proto.Message{}, fmt.Errorf("transport is not connected")
	}

	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			return proto.Message{}, fmt.Errorf("connection error: %w", err)
		}
		return proto.Message{}, fmt.Errorf("connection closed: %w", err)
	}

	return proto.Decode(data)
}

func (t *WebSocketTransport) Close() error {
	if t.conn == nil {
		return nil
	}

	t.writeMu.Lock()
	err := t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	if err != nil {
		slog.Warn("Failed to send close message", "error", err)
	}

	return t.conn.Close()
}
