package chatclient

import (
	"sync"

	"github.com/vidshare/roomchat/internal/types"
)

// RoomView is the client-side message list for one room. While a history
// fetch is outstanding, live broadcasts are buffered; once the backlog
// arrives the view becomes history followed by the buffered live messages.
// Messages are never de-duplicated across the two sources.
type RoomView struct {
	room string

	mu       sync.Mutex
	pending  bool
	buffered []types.Message
	messages []types.Message
}

func newRoomView(room string) *RoomView {
	return &RoomView{
		room:    room,
		pending: true,
	}
}

func (v *RoomView) Room() string {
	return v.room
}

// appendLive records a broadcast received over the socket.
func (v *RoomView) appendLive(m types.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.pending {
		v.buffered = append(v.buffered, m)
		return
	}

	v.messages = append(v.messages, m)
}

// resolveHistory installs the fetched backlog as the base of the view and
// flushes the live buffer behind it. A failed fetch resolves with nil and
// the view starts from the buffered live messages alone.
func (v *RoomView) resolveHistory(history []types.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.pending {
		return
	}

	v.messages = append(history, v.buffered...)
	v.buffered = nil
	v.pending = false
}

// reset returns the view to the pending state, dropping all messages. Used
// when a room is rejoined after reconnect.
func (v *RoomView) reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.pending = true
	v.buffered = nil
	v.messages = nil
}

// Pending reports whether the history fetch is still outstanding.
func (v *RoomView) Pending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending
}

// Messages returns a snapshot of the view in display order.
func (v *RoomView) Messages() []types.Message {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]types.Message, len(v.messages))
	copy(out, v.messages)
	return out
}
