package server

import (
	"log"
	"sync"

	"github.com/vidshare/roomchat/internal/wire"
)

// Room is a named broadcast channel. Each room runs its own goroutine, so
// joins, leaves and publishes for one room apply in arrival order. Rooms
// are created implicitly on first join and are never destroyed while the
// server runs.
type Room struct {
	name        string
	cs          *ChatServer
	joinChan    chan *clientEvent
	leaveChan   chan *clientEvent
	publishChan chan *clientEvent
	clients     map[*Client]struct{}
	clientLock  sync.RWMutex
	log         *log.Logger
	exit        chan struct{}
	done        chan struct{}
}

func newRoom(name string, cs *ChatServer, logger *log.Logger) *Room {
	return &Room{
		name:        name,
		cs:          cs,
		joinChan:    make(chan *clientEvent, 256),
		leaveChan:   make(chan *clientEvent, 256),
		publishChan: make(chan *clientEvent, 256),
		clients:     make(map[*Client]struct{}),
		log:         logger,
		exit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.name)

	for {
		select {
		case ev := <-r.joinChan:
			r.handleJoin(ev)
		case ev := <-r.leaveChan:
			r.handleLeave(ev)
		case ev := <-r.publishChan:
			r.handlePublish(ev)
		case <-r.exit:
			r.handleExit()
			return
		}
	}
}

// handleJoin adds the connection to the membership set and confirms to the
// requester only. Joining a room already joined is a no-op, not an error,
// and still confirms. No event reaches other members.
func (r *Room) handleJoin(ev *clientEvent) {
	c := ev.client
	r.addClient(c)
	c.queueMessage(wire.RoomJoined(ev.msg.Id, r.name))
}

// handleLeave removes the connection if present. Leaves are idempotent and
// unacknowledged.
func (r *Room) handleLeave(ev *clientEvent) {
	r.removeClient(ev.client)
}

// handlePublish stamps, persists and fans the message out to every current
// member, the sender included. The sender's own UI updates through the same
// delivery path as every other recipient.
func (r *Room) handlePublish(ev *clientEvent) {
	msg := *ev.msg.Publish
	r.cs.stampMessage(&msg)
	r.cs.saveMessage(msg)

	r.broadcast(&wire.ServerMessage{
		BaseMessage: wire.BaseMessage{
			Id:        ev.msg.Id,
			Timestamp: msg.Timestamp,
		},
		Message: &msg,
	})

	r.cs.stats.Incr(statMessagesBroadcast)
}

func (r *Room) handleExit() {
	r.log.Printf("room %q is exiting", r.name)

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.name)
		delete(r.clients, c)
	}
	r.clientLock.Unlock()

	close(r.done)
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; ok {
		return
	}

	r.clients[c] = struct{}{}
	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r.name)
}

func (r *Room) hasClient(c *Client) bool {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	_, ok := r.clients[c]
	return ok
}

func (r *Room) memberCount() int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return len(r.clients)
}

func (r *Room) broadcast(msg *wire.ServerMessage) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		client.queueMessage(msg)
	}
}
