package client

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// Subprotocol identifies the chat session wire format.
const Subprotocol = "traceline.chat.v1"

// maxFrameSize bounds a single inbound frame. Tool results can be
// large, but anything past this is a protocol violation.
const maxFrameSize = 1 << 20

// Transport carries raw text frames over one logical connection. The
// WebSocket implementation is the normal path; the demo responder
// satisfies the same interface as an in-memory loopback.
type Transport interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, data []byte) error
	Close() error
}

type wsTransport struct {
	conn *websocket.Conn
}

// dialWebSocket opens a WebSocket connection to the session backend.
func dialWebSocket(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxFrameSize)
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageText {
		return nil, fmt.Errorf("unexpected %v frame", typ)
	}
	return data, nil
}

func (t *wsTransport) WriteFrame(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}
