package hub

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/config"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/log"
)

// Client is one live WebSocket connection. Username is the participant
// identity the server stamps on everything this connection sends.
type Client struct {
	ID       string
	RoomID   string
	Username string
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	config   config.WebSocketConfig
}

func NewClient(id, roomID, username string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		ID:       id,
		RoomID:   roomID,
		Username: username,
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		config:   cfg,
	}
}

// ReadPump reads frames until the connection dies, passing each one to
// handler. It owns the read side: pong handling and the read deadline
// live here.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.L().Warn().Err(err).
					Str(log.FieldRoomID, c.RoomID).
					Str(log.FieldUsername, c.Username).
					Msg("websocket read failed")
			}
			return
		}
		handler(c, frame)
	}
}

// WritePump drains the send channel onto the socket and keeps the
// connection alive with pings. It owns the write side; nothing else may
// write to Conn while it runs.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage marshals v and queues it for this connection. A slow
// consumer whose buffer is full loses the frame rather than stalling
// the room.
func (c *Client) SendMessage(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
	default:
		log.L().Warn().
			Str(log.FieldRoomID, c.RoomID).
			Str(log.FieldUsername, c.Username).
			Msg("send buffer full, dropping frame")
	}
	return nil
}
