package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
)

func testClient(buffer int) *Client {
	return NewClient("client-1", "streamer", nil, Config{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     buffer,
	})
}

func TestClientDeliverPreservesOrder(t *testing.T) {
	c := testClient(16)

	events := []*domain.LiveEvent{
		domain.NewCommentEvent("streamer", "alice", "first"),
		domain.NewCommentEvent("streamer", "bob", "second"),
		domain.NewFollowEvent("streamer", "carol"),
	}
	for _, ev := range events {
		require.NoError(t, c.Deliver(ev))
	}

	for i, want := range events {
		var got domain.LiveEvent
		require.NoError(t, json.Unmarshal(<-c.send, &got))
		assert.Equal(t, want.Type, got.Type, "frame %d out of order", i)
		assert.Equal(t, want.Username, got.Username)
	}
}

func TestClientDeliverFullBuffer(t *testing.T) {
	c := testClient(2)

	require.NoError(t, c.Deliver(domain.NewCommentEvent("streamer", "alice", "one")))
	require.NoError(t, c.Deliver(domain.NewCommentEvent("streamer", "alice", "two")))

	err := c.Deliver(domain.NewCommentEvent("streamer", "alice", "three"))
	assert.ErrorIs(t, err, ErrSendBufferFull, "a slow client must fail fast, not block the fan-out")

	// The queued frames are intact.
	assert.Len(t, c.send, 2)
}

func TestClientDeliverAfterClose(t *testing.T) {
	c := testClient(16)
	c.Close()

	err := c.Deliver(domain.NewCommentEvent("streamer", "alice", "late"))
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestClientCloseIsIdempotent(t *testing.T) {
	c := testClient(16)
	c.Close()
	c.Close()
}

func TestClientSendArbitraryMessage(t *testing.T) {
	c := testClient(16)

	require.NoError(t, c.Send(domain.NewErrorMessage(domain.ErrCodeRoomOffline, "not live")))

	var got domain.ErrorMessage
	require.NoError(t, json.Unmarshal(<-c.send, &got))
	assert.Equal(t, domain.ErrCodeRoomOffline, got.Code)
}

func TestClientIdentity(t *testing.T) {
	c := testClient(16)
	assert.Equal(t, "client-1", c.ID())
	assert.Equal(t, domain.RoomID("streamer"), c.Room())
}

func TestClientDefaultBuffer(t *testing.T) {
	c := NewClient("client-1", "streamer", nil, Config{})
	assert.Equal(t, 256, cap(c.send))
}
