package chatclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vidshare/roomchat/internal/server"
	"github.com/vidshare/roomchat/internal/stats"
	"github.com/vidshare/roomchat/internal/store"
	"github.com/vidshare/roomchat/internal/testutil"
	"github.com/vidshare/roomchat/internal/types"
	"github.com/vidshare/roomchat/internal/wire"
)

// startChatBackend runs a chat server behind a websocket endpoint and a
// history endpoint serving a fixed two-message backlog for room1.
func startChatBackend(t *testing.T) (string, *HistoryClient) {
	t.Helper()

	logger := testutil.TestLogger(t)

	db := &store.MockRepository{}
	db.On("SaveMessage", mock.AnythingOfType("store.Message")).Return(store.Message{}, nil).Maybe()

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	cs, err := server.NewChatServer(logger, db, su)
	require.NoError(t, err)
	go cs.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		cs.Shutdown(ctx)
	})

	upgrader := websocket.Upgrader{}
	wsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		client := server.NewClient(types.User{}, conn, cs, logger)
		cs.RegisterClient(client)
		go client.Write()
		go client.Read()
	}))
	t.Cleanup(wsServer.Close)

	historyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"success": true,
			"messages": [
				{"id": "h1", "text": "first", "room": "room1", "userId": "u1"},
				{"id": "h2", "text": "second", "room": "room1", "userId": "u2"}
			],
			"count": 2
		}`)
	}))
	t.Cleanup(historyServer.Close)

	wsURL := "ws" + strings.TrimPrefix(wsServer.URL, "http")
	return wsURL, NewHistoryClient(historyServer.URL, nil)
}

func TestConn_EndToEnd(t *testing.T) {
	wsURL, hc := startChatBackend(t)

	id := Identity{Id: "anon_1_abcdefghi", Name: "Anon"}
	conn := NewConn(wsURL, hc, id, testutil.TestLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, conn.Connect(ctx))
	require.NoError(t, conn.Connect(ctx), "expected Connect to be idempotent")
	defer conn.Close()

	view, err := conn.JoinRoom("room1")
	require.NoError(t, err)

	again, err := conn.JoinRoom("room1")
	require.NoError(t, err)
	assert.Same(t, view, again, "expected the same view on repeat join")

	require.Eventually(t, func() bool {
		return !view.Pending()
	}, 2*time.Second, 10*time.Millisecond, "expected history fetch to resolve")

	require.Equal(t, []string{"h1", "h2"}, msgIds(view.Messages()))

	require.NoError(t, conn.Send(types.Message{Text: "hi", Room: "room1"}))

	require.Eventually(t, func() bool {
		return len(view.Messages()) == 3
	}, 2*time.Second, 10*time.Millisecond, "expected the live broadcast to land behind history")

	msgs := view.Messages()
	live := msgs[2]
	assert.Equal(t, "hi", live.Text)
	assert.Equal(t, id.Id, live.UserId, "expected the live message attributed to this identity")
	assert.True(t, conn.IsOwn(live))
	assert.False(t, conn.IsOwn(msgs[0]))

	require.NoError(t, conn.LeaveRoom("room1"))
	_, ok := conn.Room("room1")
	assert.False(t, ok, "expected the view dropped after leave")
}

func TestConn_historyFailureStartsEmpty(t *testing.T) {
	wsURL, _ := startChatBackend(t)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	conn := NewConn(wsURL, NewHistoryClient(failing.URL, nil), Identity{Id: "anon_1_abcdefghi"}, testutil.TestLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Connect(ctx))
	defer conn.Close()

	view, err := conn.JoinRoom("room1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return !view.Pending()
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(t, view.Messages(), "expected an empty view when the backlog fetch fails")

	// live messages still arrive
	require.NoError(t, conn.Send(types.Message{Text: "hi", Room: "room1"}))
	require.Eventually(t, func() bool {
		return len(view.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConn_Send_requiresIdentity(t *testing.T) {
	conn := NewConn("ws://unused", nil, Identity{}, testutil.TestLogger(t))

	err := conn.Send(types.Message{Text: "hi", Room: "room1"})
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestConn_Send_validation(t *testing.T) {
	conn := NewConn("ws://unused", nil, Identity{Id: "anon_1_abcdefghi"}, testutil.TestLogger(t))

	err := conn.Send(types.Message{Text: "hi"})
	assert.ErrorIs(t, err, wire.ErrMissingRoom)

	err = conn.Send(types.Message{Room: "room1"})
	assert.ErrorIs(t, err, wire.ErrNoContent)

	err = conn.Send(types.Message{Text: "hi", Room: "room1"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConn_JoinRoom_requiresConnection(t *testing.T) {
	conn := NewConn("ws://unused", nil, Identity{Id: "anon_1_abcdefghi"}, testutil.TestLogger(t))

	_, err := conn.JoinRoom("room1")
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = conn.JoinRoom("")
	assert.ErrorIs(t, err, wire.ErrMissingRoom)
}

func TestConn_IsOwn(t *testing.T) {
	conn := NewConn("ws://unused", nil, Identity{Id: "u1"}, testutil.TestLogger(t))
	assert.True(t, conn.IsOwn(types.Message{UserId: "u1"}))
	assert.False(t, conn.IsOwn(types.Message{UserId: "u2"}))

	anon := NewConn("ws://unused", nil, Identity{}, testutil.TestLogger(t))
	assert.False(t, anon.IsOwn(types.Message{UserId: ""}), "expected unresolved identity to own nothing")
}
