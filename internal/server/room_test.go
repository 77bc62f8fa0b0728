package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vidshare/roomchat/internal/stats"
	"github.com/vidshare/roomchat/internal/store"
	"github.com/vidshare/roomchat/internal/testutil"
	"github.com/vidshare/roomchat/internal/types"
	"github.com/vidshare/roomchat/internal/wire"
)

func newTestRoom(t *testing.T, cs *ChatServer) *Room {
	t.Helper()
	return newRoom("testroom", cs, testutil.TestLogger(t))
}

func newTestClient(t *testing.T, cs *ChatServer, user types.User) *Client {
	t.Helper()
	return NewClient(user, nil, cs, testutil.TestLogger(t))
}

func joinEvent(c *Client, id int, room string) *clientEvent {
	return &clientEvent{
		msg: &wire.ClientMessage{
			BaseMessage: wire.BaseMessage{Id: id, Timestamp: wire.Now()},
			Join:        &wire.Join{Room: room},
		},
		client: c,
	}
}

func Test_handleJoin_confirmsRequesterOnly(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(4)
	cs := newTestChatServer(t, &store.MockRepository{}, su)

	r := newTestRoom(t, cs)
	member := newTestClient(t, cs, types.User{Id: "u1"})
	r.addClient(member)

	joiner := newTestClient(t, cs, types.User{Id: "u2"})
	r.handleJoin(joinEvent(joiner, 1, r.name))

	select {
	case msg := <-joiner.send:
		require.NotNil(t, msg.Response, "expected a join confirmation response")
		assert.Equal(t, 1, msg.Id, "expected confirmation id to match join id")
		assert.Equal(t, 200, msg.Response.ResponseCode)
		assert.Equal(t, r.name, msg.Response.Data["room"])
	default:
		t.Error("expected a confirmation to be sent to the joining client")
	}

	select {
	case msg := <-member.send:
		t.Errorf("expected no event for existing members on join, got %+v", msg)
	default:
	}

	assert.True(t, r.hasClient(joiner), "expected joiner in membership")
}

func Test_handleJoin_idempotent(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(4)
	cs := newTestChatServer(t, &store.MockRepository{}, su)

	r := newTestRoom(t, cs)
	c := newTestClient(t, cs, types.User{Id: "u1"})

	r.handleJoin(joinEvent(c, 1, r.name))
	r.handleJoin(joinEvent(c, 2, r.name))

	assert.Equal(t, 1, r.memberCount(), "expected connection to appear exactly once in membership")
	assert.Len(t, c.send, 2, "expected both joins to be confirmed")

	_, ok := c.getRoom(r.name)
	assert.True(t, ok, "expected client to track the room")
}

func Test_handleLeave_idempotent(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(4)
	cs := newTestChatServer(t, &store.MockRepository{}, su)

	r := newTestRoom(t, cs)
	c := newTestClient(t, cs, types.User{Id: "u1"})
	r.addClient(c)

	leave := &clientEvent{
		msg:    &wire.ClientMessage{Leave: &wire.Leave{Room: r.name}},
		client: c,
	}

	r.handleLeave(leave)
	assert.Equal(t, 0, r.memberCount(), "expected client removed from membership")
	_, ok := c.getRoom(r.name)
	assert.False(t, ok, "expected room removed from client")

	// leaving again is a no-op
	r.handleLeave(leave)
	assert.Equal(t, 0, r.memberCount())
	assert.Len(t, c.send, 0, "expected no acknowledgment for leave")
}

func Test_handlePublish_fanOutIncludesSender(t *testing.T) {
	db := &store.MockRepository{}
	db.On("SaveMessage", mock.AnythingOfType("store.Message")).Return(store.Message{Id: 1}, nil).Once()
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(4)
	su.On("Incr", statMessagesBroadcast).Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, db, su)
	r := newTestRoom(t, cs)

	sender := newTestClient(t, cs, types.User{Id: "u1"})
	peer := newTestClient(t, cs, types.User{Id: "u2"})
	r.addClient(sender)
	r.addClient(peer)

	r.handlePublish(&clientEvent{
		msg: &wire.ClientMessage{
			BaseMessage: wire.BaseMessage{Id: 9},
			Publish: &types.Message{
				Text:   "hi",
				Room:   r.name,
				UserId: "u1",
			},
		},
		client: sender,
	})

	for _, c := range []*Client{sender, peer} {
		select {
		case msg := <-c.send:
			require.NotNil(t, msg.Message, "expected a broadcast message")
			assert.Equal(t, "hi", msg.Message.Text)
			assert.Equal(t, "u1", msg.Message.UserId)
			assert.NotEmpty(t, msg.Message.Id, "expected a server-assigned message id")
			assert.False(t, msg.Message.Timestamp.IsZero(), "expected a server-assigned timestamp")
		default:
			t.Errorf("expected message delivered to client %q", c.user.Id)
		}
	}
}

func Test_handlePublish_persistFailureStillBroadcasts(t *testing.T) {
	db := &store.MockRepository{}
	db.On("SaveMessage", mock.AnythingOfType("store.Message")).Return(store.Message{}, assert.AnError).Once()
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(4)
	su.On("Incr", statMessagesBroadcast).Once()

	cs := newTestChatServer(t, db, su)
	r := newTestRoom(t, cs)

	c := newTestClient(t, cs, types.User{Id: "u1"})
	r.addClient(c)

	r.handlePublish(&clientEvent{
		msg: &wire.ClientMessage{
			Publish: &types.Message{Text: "hi", Room: r.name, UserId: "u1"},
		},
		client: c,
	})

	select {
	case msg := <-c.send:
		require.NotNil(t, msg.Message, "expected broadcast despite persistence failure")
	default:
		t.Error("expected message delivered despite persistence failure")
	}
}

func Test_fifoPerSender(t *testing.T) {
	db := &store.MockRepository{}
	db.On("SaveMessage", mock.AnythingOfType("store.Message")).Return(store.Message{}, nil)

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(4)
	su.On("Incr", statMessagesBroadcast)

	cs := newTestChatServer(t, db, su)
	r := newTestRoom(t, cs)

	sender := newTestClient(t, cs, types.User{Id: "u1"})
	receiver := newTestClient(t, cs, types.User{Id: "u2"})
	r.addClient(sender)
	r.addClient(receiver)

	go r.start()
	defer func() {
		close(r.exit)
		<-r.done
	}()

	const n = 20
	for i := 0; i < n; i++ {
		r.publishChan <- &clientEvent{
			msg: &wire.ClientMessage{
				BaseMessage: wire.BaseMessage{Id: i + 1},
				Publish: &types.Message{
					Text:   "msg",
					Room:   r.name,
					UserId: "u1",
				},
			},
			client: sender,
		}
	}

	for i := 0; i < n; i++ {
		select {
		case msg := <-receiver.send:
			require.NotNil(t, msg.Message)
			assert.Equal(t, i+1, msg.Id, "expected messages delivered in send order")
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i+1)
		}
	}
}

func Test_handleExit_removesRoomFromClients(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(4)
	cs := newTestChatServer(t, &store.MockRepository{}, su)

	r := newTestRoom(t, cs)
	c := newTestClient(t, cs, types.User{Id: "u1"})
	r.addClient(c)

	r.handleExit()

	_, ok := c.getRoom(r.name)
	assert.False(t, ok, "expected room removed from client on exit")
	assert.Equal(t, 0, r.memberCount())

	select {
	case <-r.done:
	default:
		t.Error("expected done channel to be closed")
	}
}
