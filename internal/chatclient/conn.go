package chatclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vidshare/roomchat/internal/types"
	"github.com/vidshare/roomchat/internal/wire"
)

var (
	ErrNoIdentity   = errors.New("chatclient: identity not resolved")
	ErrNotConnected = errors.New("chatclient: not connected")
)

// Conn is one client connection to the chat server. It owns the room views
// for every joined room and reconciles each one against the history
// endpoint on join. Connect is idempotent; joined rooms are rejoined and
// refetched after a reconnect.
type Conn struct {
	wsURL   string
	dialer  *websocket.Dialer
	history *HistoryClient
	id      Identity
	log     *log.Logger

	mu     sync.Mutex
	ws     *websocket.Conn
	rooms  map[string]*RoomView
	nextId int
}

func NewConn(wsURL string, history *HistoryClient, id Identity, logger *log.Logger) *Conn {
	return &Conn{
		wsURL:   wsURL,
		dialer:  websocket.DefaultDialer,
		history: history,
		id:      id,
		log:     logger,
		rooms:   make(map[string]*RoomView),
	}
}

// Connect dials the server. Calling Connect on an established connection
// is a no-op. After a reconnect every tracked room is rejoined and its
// view rebuilt from history.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws != nil {
		return nil
	}

	ws, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.wsURL, err)
	}

	c.ws = ws
	go c.readLoop(ws)

	for room, view := range c.rooms {
		view.reset()
		if err := c.sendJoinLocked(room); err != nil {
			return fmt.Errorf("rejoin room %q: %w", room, err)
		}
		go c.fetchHistory(room, view)
	}

	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		return nil
	}

	err := c.ws.Close()
	c.ws = nil
	return err
}

// JoinRoom requests membership and starts the history fetch for the room's
// view. Joining a room twice returns the existing view.
func (c *Conn) JoinRoom(room string) (*RoomView, error) {
	if room == "" {
		return nil, wire.ErrMissingRoom
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		return nil, ErrNotConnected
	}

	if view, ok := c.rooms[room]; ok {
		return view, nil
	}

	if err := c.sendJoinLocked(room); err != nil {
		return nil, err
	}

	view := newRoomView(room)
	c.rooms[room] = view
	go c.fetchHistory(room, view)

	return view, nil
}

// LeaveRoom drops the room's view and notifies the server. Leaving a room
// never joined is a no-op.
func (c *Conn) LeaveRoom(room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rooms[room]; !ok {
		return nil
	}
	delete(c.rooms, room)

	if c.ws == nil {
		return nil
	}

	c.nextId++
	return c.ws.WriteJSON(&wire.ClientMessage{
		BaseMessage: wire.BaseMessage{Id: c.nextId, Timestamp: wire.Now()},
		Leave:       &wire.Leave{Room: room},
	})
}

// Send publishes a message attributed to this connection's identity.
func (c *Conn) Send(msg types.Message) error {
	if !c.id.Resolved() {
		return ErrNoIdentity
	}
	if msg.Room == "" {
		return wire.ErrMissingRoom
	}
	if !msg.HasContent() {
		return wire.ErrNoContent
	}

	msg.UserId = c.id.Id
	msg.UserName = c.id.Name
	msg.UserImage = c.id.Image

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		return ErrNotConnected
	}

	c.nextId++
	return c.ws.WriteJSON(&wire.ClientMessage{
		BaseMessage: wire.BaseMessage{Id: c.nextId, Timestamp: wire.Now()},
		Publish:     &msg,
	})
}

// Room returns the view for a joined room.
func (c *Conn) Room(name string) (*RoomView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	view, ok := c.rooms[name]
	return view, ok
}

// IsOwn reports whether a message was sent under this connection's
// identity.
func (c *Conn) IsOwn(m types.Message) bool {
	return c.id.Resolved() && m.UserId == c.id.Id
}

func (c *Conn) sendJoinLocked(room string) error {
	c.nextId++
	return c.ws.WriteJSON(&wire.ClientMessage{
		BaseMessage: wire.BaseMessage{Id: c.nextId, Timestamp: wire.Now()},
		Join:        &wire.Join{Room: room},
	})
}

func (c *Conn) fetchHistory(room string, view *RoomView) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	history, err := c.history.Fetch(ctx, room)
	if err != nil {
		// the view starts from live messages only
		c.log.Printf("history fetch for room %q: %v", room, err)
		view.resolveHistory(nil)
		return
	}

	view.resolveHistory(history)
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.ws == ws {
			c.ws = nil
		}
		c.mu.Unlock()
	}()

	for {
		var msg wire.ServerMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Printf("read: %v", err)
			}
			return
		}

		switch {
		case msg.Message != nil:
			if view, ok := c.Room(msg.Message.Room); ok {
				view.appendLive(*msg.Message)
			}
		case msg.Response != nil:
			if msg.Response.ResponseCode >= 400 {
				c.log.Printf("server error %d: %s", msg.Response.ResponseCode, msg.Response.Error)
			}
		}
	}
}
