package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vidshare/roomchat/internal/types"
	"github.com/vidshare/roomchat/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one persistent connection. The user identity may be zero for
// anonymous connections; identity travels inside each published envelope.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	send       chan *wire.ServerMessage
	rooms      map[string]*Room
	roomsLock  sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan *wire.ServerMessage, 256),
		rooms:      make(map[string]*Room),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
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

		msg, err := wire.DecodeClientMessage(raw)
		if err != nil {
			// malformed envelopes are dropped, never propagated
			c.log.Printf("discarding envelope: %v", err)
			continue
		}

		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *wire.ClientMessage) {
	ev := &clientEvent{msg: msg, client: c}

	switch {
	case msg.Join != nil:
		c.joinRoom(ev)
	case msg.Leave != nil:
		c.leaveRoom(ev)
	case msg.Publish != nil:
		c.publish(ev)
	}
}

func (c *Client) joinRoom(ev *clientEvent) {
	select {
	case c.chatServer.joinChan <- ev:
	default:
		c.log.Printf("joinChan full")
		c.queueMessage(wire.ErrServiceUnavailable(ev.msg.Id))
	}
}

func (c *Client) leaveRoom(ev *clientEvent) {
	r, ok := c.getRoom(ev.msg.Leave.Room)
	if !ok {
		// leaving a room never joined is a no-op
		return
	}

	select {
	case r.leaveChan <- ev:
	default:
		c.log.Printf("leaveChan full for room %q", r.name)
		c.queueMessage(wire.ErrServiceUnavailable(ev.msg.Id))
	}
}

// publish routes a message to its room. Messages for rooms the sender has
// not joined are still accepted and routed through the chat server, where
// they reach current members or, with none, are persisted and dropped.
func (c *Client) publish(ev *clientEvent) {
	r, ok := c.getRoom(ev.msg.Publish.Room)
	if !ok {
		select {
		case c.chatServer.publishChan <- ev:
		default:
			c.log.Printf("publishChan full")
			c.queueMessage(wire.ErrServiceUnavailable(ev.msg.Id))
		}
		return
	}

	select {
	case r.publishChan <- ev:
	default:
		c.log.Printf("publishChan full for room %q", r.name)
		c.queueMessage(wire.ErrServiceUnavailable(ev.msg.Id))
	}
}

func (c *Client) queueMessage(msg *wire.ServerMessage) bool {
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

// cleanup runs when the read pump exits. Disconnection atomically removes
// the connection from every room it belonged to.
func (c *Client) cleanup() {
	c.chatServer.deRegisterChan <- c
	c.leaveAllRooms()
	c.stopClient()
}

func (c *Client) leaveAllRooms() {
	c.roomsLock.RLock()
	rooms := make([]*Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.roomsLock.RUnlock()

	for _, room := range rooms {
		room.leaveChan <- &clientEvent{
			msg: &wire.ClientMessage{
				Leave: &wire.Leave{Room: room.name},
			},
			client: c,
		}
	}
}

func (c *Client) delRoom(name string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, name)
}

func (c *Client) addRoom(r *Room) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[r.name] = r
}

func (c *Client) getRoom(name string) (*Room, bool) {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	room, ok := c.rooms[name]
	return room, ok
}
