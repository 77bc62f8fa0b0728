package chatclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidshare/roomchat/internal/types"
)

func msgIds(msgs []types.Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.Id
	}
	return ids
}

func TestRoomView_historyThenLive(t *testing.T) {
	v := newRoomView("room1")
	require.True(t, v.Pending())

	// a live broadcast lands while the backlog fetch is outstanding
	v.appendLive(types.Message{Id: "m3", Room: "room1"})
	assert.Empty(t, v.Messages(), "expected no visible messages while pending")

	v.resolveHistory([]types.Message{
		{Id: "m1", Room: "room1"},
		{Id: "m2", Room: "room1"},
	})

	assert.False(t, v.Pending())
	assert.Equal(t, []string{"m1", "m2", "m3"}, msgIds(v.Messages()),
		"expected history first, buffered live messages after")
}

func TestRoomView_liveAfterResolveAppends(t *testing.T) {
	v := newRoomView("room1")
	v.resolveHistory([]types.Message{{Id: "m1"}})

	v.appendLive(types.Message{Id: "m2"})
	v.appendLive(types.Message{Id: "m3"})

	assert.Equal(t, []string{"m1", "m2", "m3"}, msgIds(v.Messages()))
}

func TestRoomView_failedFetchStartsFromLive(t *testing.T) {
	v := newRoomView("room1")
	v.appendLive(types.Message{Id: "live1"})

	// a failed fetch resolves with no backlog
	v.resolveHistory(nil)

	assert.Equal(t, []string{"live1"}, msgIds(v.Messages()))
	assert.False(t, v.Pending())
}

func TestRoomView_duplicateNotRemoved(t *testing.T) {
	v := newRoomView("room1")

	// a message both persisted and broadcast during the fetch window
	// appears twice
	v.appendLive(types.Message{Id: "m2"})
	v.resolveHistory([]types.Message{{Id: "m1"}, {Id: "m2"}})

	assert.Equal(t, []string{"m1", "m2", "m2"}, msgIds(v.Messages()))
}

func TestRoomView_resolveHistoryIdempotent(t *testing.T) {
	v := newRoomView("room1")
	v.resolveHistory([]types.Message{{Id: "m1"}})
	v.resolveHistory([]types.Message{{Id: "other"}})

	assert.Equal(t, []string{"m1"}, msgIds(v.Messages()), "expected a second resolve to be ignored")
}

func TestRoomView_reset(t *testing.T) {
	v := newRoomView("room1")
	v.resolveHistory([]types.Message{{Id: "m1"}})
	require.NotEmpty(t, v.Messages())

	v.reset()

	assert.True(t, v.Pending())
	assert.Empty(t, v.Messages())
}
