package ws

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const sendBufferSize = 16

// Client is one live websocket connection belonging to a user group.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// writePump drains the send buffer onto the connection until the client
// shuts down or a write fails.
func (c *Client) writePump() {
	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Serve runs the connection lifecycle for a user: join the user's group,
// stream updates out, and leave on disconnect. Inbound frames are read only
// to detect the close.
func Serve(hub *Hub, conn *websocket.Conn, userID uint) {
	client := NewClient(conn)
	group := GroupForUser(userID)

	hub.Register(group, client)
	defer func() {
		hub.Unregister(group, client)
		close(client.done)
		conn.Close()
	}()

	go client.writePump()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
