package control

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is a websocket control client. Requests are synchronous: each
// Send waits for the server's reply.
type Client struct {
	url  string
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewClient creates a control client for the given ws:// URL.
func NewClient(url string) *Client {
	return &Client{url: url}
}

// Connect dials the control endpoint.
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("control dial: %w", err)
	}
	c.conn = conn
	return nil
}

// Send issues a command and returns the caster's state after applying it.
func (c *Client) Send(msgType string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return Snapshot{}, errors.New("not connected")
	}
	if err := c.conn.WriteJSON(Message{Type: msgType}); err != nil {
		return Snapshot{}, fmt.Errorf("control send: %w", err)
	}
	var reply Message
	if err := c.conn.ReadJSON(&reply); err != nil {
		return Snapshot{}, fmt.Errorf("control reply: %w", err)
	}
	if reply.Type == TypeError {
		return Snapshot{}, fmt.Errorf("control: %s", reply.Msg)
	}
	if reply.State == nil {
		return Snapshot{}, nil
	}
	return *reply.State, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
	err := c.conn.Close()
	c.conn = nil
	return err
}
