package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wishpop/wishpop/internal/board"
	"github.com/wishpop/wishpop/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client is one websocket connection, bound at upgrade time to a room
// code and a viewer role.
type Client struct {
	conn     *websocket.Conn
	ps       *PartyServer
	log      *log.Logger
	roomCode string
	role     types.Role
	composer *board.Composer
	send     chan *ServerMessage
	room     *Room
	roomLock sync.RWMutex
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(roomCode string, role types.Role, conn *websocket.Conn, ps *PartyServer, l *log.Logger) *Client {
	return &Client{
		conn:     conn,
		ps:       ps,
		log:      l,
		roomCode: roomCode,
		role:     role,
		composer: board.NewComposer(nil),
		send:     make(chan *ServerMessage, 256),
		stop:     make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.Timestamp = Now()

		switch {
		case msg.Leave != nil:
			c.leaveRoom()
		case msg.Publish != nil, msg.Pop != nil, msg.Theme != nil:
			c.dispatch(&msg)
		default:
			c.queueMessage(ErrInvalidMessage(msg.Id))
		}
	}
}

// dispatch forwards an action to the room engine.
func (c *Client) dispatch(msg *ClientMessage) {
	r := c.getRoom()
	if r == nil {
		// The join has not been routed yet.
		c.queueMessage(ErrServiceUnavailable(msg.Id))
		return
	}

	select {
	case r.actionChan <- msg:
	default:
		c.log.Printf("action channel full on room %q", r.code)
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) leaveRoom() {
	r := c.getRoom()
	if r == nil {
		return
	}

	select {
	case r.leaveChan <- c:
	default:
		c.log.Printf("leave channel full on room %q", r.code)
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.leaveRoom()
	select {
	case c.ps.deRegisterChan <- c:
	case <-c.ps.done:
		// Server already drained; nothing left to deregister from.
	}
	c.stopClient()
}

func (c *Client) setRoom(r *Room) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()
	c.room = r
}

func (c *Client) getRoom() *Room {
	c.roomLock.RLock()
	defer c.roomLock.RUnlock()
	return c.room
}
