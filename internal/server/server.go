package server

import (
	"context"
	"log"
	"sync"

	"github.com/teris-io/shortid"
	"github.com/vidshare/roomchat/internal/stats"
	"github.com/vidshare/roomchat/internal/store"
	"github.com/vidshare/roomchat/internal/types"
	"github.com/vidshare/roomchat/internal/wire"
)

const (
	statActiveClients     = "NumActiveClients"
	statActiveRooms       = "NumActiveRooms"
	statMessagesBroadcast = "MessagesBroadcast"
	statMessagesDropped   = "MessagesDropped"
)

// clientEvent pairs an inbound envelope with the connection it arrived on.
type clientEvent struct {
	msg    *wire.ClientMessage
	client *Client
}

type stopReq struct {
	done chan struct{}
}

// ChatServer owns the room registry. All room creation and lookup happens
// on its single Run loop, so membership mutations apply atomically without
// callers holding locks.
type ChatServer struct {
	log            *log.Logger
	db             store.Repository
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *clientEvent
	publishChan    chan *clientEvent
	registerChan   chan *Client
	deRegisterChan chan *Client
	rooms          map[string]*Room
	sid            *shortid.Shortid
	stop           chan stopReq
}

func NewChatServer(logger *log.Logger, db store.Repository, su stats.StatsProvider) (*ChatServer, error) {
	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		return nil, err
	}

	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *clientEvent, 256),
		publishChan:    make(chan *clientEvent, 256),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		rooms:          make(map[string]*Room),
		sid:            sid,
		stop:           make(chan stopReq),
	}

	for _, name := range []string{statActiveClients, statActiveRooms, statMessagesBroadcast, statMessagesDropped} {
		su.RegisterMetric(name)
	}

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case ev := <-cs.joinChan:
			cs.handleJoin(ev)
		case ev := <-cs.publishChan:
			cs.handleOrphanPublish(ev)
		case client := <-cs.registerChan:
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.removeClient(client)
		case req := <-cs.stop:
			cs.log.Println("shutting down rooms")
			for name, r := range cs.rooms {
				close(r.exit)
				<-r.done
				delete(cs.rooms, name)
				cs.stats.Decr(statActiveRooms)
			}

			cs.clientsLock.Lock()
			for c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.Unlock()

			close(req.done)
			return
		}
	}
}

// handleJoin resolves the target room, creating it implicitly on first
// join. Rooms live for the lifetime of the process.
func (cs *ChatServer) handleJoin(ev *clientEvent) {
	name := ev.msg.Join.Room
	if name == "" {
		ev.client.queueMessage(wire.ErrRoomError(ev.msg.Id, "room id required"))
		return
	}

	room, ok := cs.rooms[name]
	if !ok {
		room = newRoom(name, cs, cs.log)
		cs.rooms[name] = room
		go room.start()
		cs.stats.Incr(statActiveRooms)
	}

	select {
	case room.joinChan <- ev:
	default:
		cs.log.Printf("join channel full on room %q", room.name)
		ev.client.queueMessage(wire.ErrServiceUnavailable(ev.msg.Id))
	}
}

// handleOrphanPublish handles a publish to a room the sender has not
// joined. If the room has members the message is routed to them; otherwise
// it is accepted, persisted and has no recipients.
func (cs *ChatServer) handleOrphanPublish(ev *clientEvent) {
	if room, ok := cs.rooms[ev.msg.Publish.Room]; ok {
		select {
		case room.publishChan <- ev:
		default:
			cs.log.Printf("publish channel full on room %q", room.name)
			ev.client.queueMessage(wire.ErrServiceUnavailable(ev.msg.Id))
		}
		return
	}

	msg := *ev.msg.Publish
	cs.stampMessage(&msg)
	cs.saveMessage(msg)
	cs.stats.Incr(statMessagesDropped)
}

// stampMessage assigns the server-side id and timestamp under which the
// message is broadcast and persisted.
func (cs *ChatServer) stampMessage(m *types.Message) {
	id, err := cs.sid.Generate()
	if err != nil {
		cs.log.Println("generate message id:", err)
	} else {
		m.Id = id
	}
	m.Timestamp = wire.Now()
}

// saveMessage persists a message to the backlog. Persistence failures are
// logged and do not block the broadcast path.
func (cs *ChatServer) saveMessage(m types.Message) {
	if _, err := cs.db.SaveMessage(store.Message{
		MessageId:   m.Id,
		Room:        m.Room,
		Text:        m.Text,
		UserId:      m.UserId,
		UserName:    m.UserName,
		UserImage:   m.UserImage,
		ImageUrl:    m.ImageUrl,
		VideoUrl:    m.VideoUrl,
		RawFileUrl:  m.RawFileUrl,
		ReplyToId:   m.ReplyToId,
		ReplyToText: m.ReplyToText,
		CreatedAt:   m.Timestamp,
	}); err != nil {
		cs.log.Printf("save message in room %q: %v", m.Room, err)
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.registerChan <- c
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
	cs.stats.Incr(statActiveClients)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	if _, ok := cs.clients[c]; !ok {
		return
	}
	delete(cs.clients, c)
	cs.stats.Decr(statActiveClients)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
