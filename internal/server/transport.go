package server

import (
	"time"

	"github.com/gorilla/websocket"
)

// Time allowed to write a frame to the peer.
const writeWait = 10 * time.Second

// WebSocketTransport adapts a gorilla connection to broadcaster.Transport.
type WebSocketTransport struct {
	connection *websocket.Conn
}

func NewWebSocketTransport(connection *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{
		connection,
	}
}

func (t *WebSocketTransport) WriteMessage(data []byte) error {
	if err := t.connection.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return t.connection.WriteMessage(websocket.TextMessage, data)
}

func (t *WebSocketTransport) WritePing() error {
	return t.connection.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (t *WebSocketTransport) Close(code int, reason string) error {
	_ = t.connection.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait),
	)

	return t.connection.Close()
}
