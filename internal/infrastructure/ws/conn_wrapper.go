package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// connWrapper serialises writes; gorilla allows one concurrent writer.
type connWrapper struct {
	conn      *websocket.Conn
	mutex     sync.Mutex
	writeWait time.Duration
}

func newConnWrapper(c *websocket.Conn, writeWait time.Duration) *connWrapper {
	return &connWrapper{conn: c, writeWait: writeWait}
}

func (w *connWrapper) deadline() time.Time {
	return time.Now().Add(w.writeWait)
}

func (w *connWrapper) WriteJSON(v any) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	_ = w.conn.SetWriteDeadline(w.deadline())
	return w.conn.WriteJSON(v)
}

func (w *connWrapper) WriteText(data []byte) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	_ = w.conn.SetWriteDeadline(w.deadline())
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *connWrapper) Ping() error {
	return w.conn.WriteControl(websocket.PingMessage, nil, w.deadline())
}

// CloseWith sends a close frame carrying code before dropping the socket.
func (w *connWrapper) CloseWith(code int, reason string) error {
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), w.deadline())
	return w.Close()
}

func (w *connWrapper) Close() error {
	return w.conn.Close()
}
