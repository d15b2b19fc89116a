package ws

import (
	"errors"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/chorus/internal/domain"
)

var (
	ErrSendQueueFull    = errors.New("send queue full")
	ErrConnectionClosed = errors.New("connection closed")
)

// Client is one authenticated websocket connection. Its room set lives only
// as long as the connection.
type Client struct {
	ID       string
	Identity domain.Identity

	conn  *connWrapper
	send  chan []byte
	rooms mapset.Set[string]

	done        chan struct{}
	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func newClient(conn *connWrapper, id string, identity domain.Identity, buffer int) *Client {
	return &Client{
		ID:       id,
		Identity: identity,
		conn:     conn,
		send:     make(chan []byte, buffer),
		rooms:    mapset.NewSet[string](),
		done:     make(chan struct{}),
	}
}

// Rooms returns a snapshot of the joined room keys.
func (c *Client) Rooms() []string {
	return c.rooms.ToSlice()
}

// enqueue never blocks. A full queue means the peer is not keeping up.
func (c *Client) enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// close asks the write pump to send a close frame and drop the socket.
func (c *Client) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump hands every inbound data frame to handle until the socket fails
// or the pong deadline passes. onPong, if set, runs after every pong.
func (c *Client) readPump(maxMessageSize int64, pongWait time.Duration, onPong func(), handle func([]byte)) error {
	c.conn.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.conn.SetPongHandler(func(string) error {
		if onPong != nil {
			onPong()
		}
		return c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, raw, err := c.conn.conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		handle(raw)
	}
}

// writePump owns all data writes and the keep-alive ping.
func (c *Client) writePump(pingPeriod time.Duration) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteText(data); err != nil {
				c.close(websocket.CloseAbnormalClosure, "")
				return err
			}
		case <-ticker.C:
			if err := c.conn.Ping(); err != nil {
				c.close(websocket.CloseAbnormalClosure, "")
				return err
			}
		case <-c.done:
			return c.conn.CloseWith(c.closeCode, c.closeReason)
		}
	}
}
