package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/internal/pubsub"
	"github.com/AlirizaAslan/tikfinity/internal/registry"
)

type recordingSubscriber struct {
	id  string
	err error

	mu     sync.Mutex
	events []*domain.LiveEvent
}

func (s *recordingSubscriber) ID() string { return s.id }

func (s *recordingSubscriber) Deliver(ev *domain.LiveEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSubscriber) received() []*domain.LiveEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.LiveEvent, len(s.events))
	copy(out, s.events)
	return out
}

type staticSource struct {
	subs []registry.Subscriber
}

func (s *staticSource) Snapshot(room domain.RoomID) []registry.Subscriber { return s.subs }

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	events   []*pubsub.Event
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, ev *pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.channels = append(p.channels, channel)
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	a := &recordingSubscriber{id: "a"}
	b := &recordingSubscriber{id: "b"}
	caster := New(&staticSource{subs: []registry.Subscriber{a, b}}, nil)

	events := []*domain.LiveEvent{
		domain.NewCommentEvent("streamer", "alice", "first"),
		domain.NewCommentEvent("streamer", "bob", "second"),
		domain.NewFollowEvent("streamer", "carol"),
	}
	for _, ev := range events {
		caster.Broadcast("streamer", ev)
	}

	for _, sub := range []*recordingSubscriber{a, b} {
		got := sub.received()
		require.Len(t, got, 3, "subscriber %s", sub.id)
		for i, ev := range events {
			assert.Same(t, ev, got[i], "subscriber %s event %d out of order", sub.id, i)
		}
	}
}

func TestBroadcastIsolatesFailingSubscriber(t *testing.T) {
	broken := &recordingSubscriber{id: "broken", err: errors.New("buffer full")}
	healthy := &recordingSubscriber{id: "healthy"}
	caster := New(&staticSource{subs: []registry.Subscriber{broken, healthy}}, nil)

	ev := domain.NewCommentEvent("streamer", "alice", "hello")
	caster.Broadcast("streamer", ev)

	got := healthy.received()
	require.Len(t, got, 1, "a broken subscriber must not block the rest")
	assert.Same(t, ev, got[0])
}

func TestBroadcastGroupFallbackOnFailure(t *testing.T) {
	broken := &recordingSubscriber{id: "broken", err: errors.New("buffer full")}
	pub := &recordingPublisher{}
	caster := New(&staticSource{subs: []registry.Subscriber{broken}}, pub)

	caster.Broadcast("streamer", domain.NewCommentEvent("streamer", "alice", "hello"))

	require.Equal(t, 1, pub.published(), "a failed direct delivery triggers exactly one group publish")
	assert.Equal(t, pubsub.LiveRoomChannel("streamer"), pub.channels[0])
	assert.Equal(t, domain.EventComment, pub.events[0].Type)
}

func TestBroadcastNoFallbackWhenDirectSucceeds(t *testing.T) {
	healthy := &recordingSubscriber{id: "healthy"}
	pub := &recordingPublisher{}
	caster := New(&staticSource{subs: []registry.Subscriber{healthy}}, pub)

	caster.Broadcast("streamer", domain.NewCommentEvent("streamer", "alice", "hello"))

	assert.Equal(t, 0, pub.published(), "direct delivery succeeding must not duplicate onto the group channel")
}

func TestBroadcastEmptyRoom(t *testing.T) {
	pub := &recordingPublisher{}
	caster := New(&staticSource{}, pub)

	// Must not panic or publish.
	caster.Broadcast("streamer", domain.NewCommentEvent("streamer", "alice", "hello"))
	assert.Equal(t, 0, pub.published())
}

func TestBroadcastFailedGroupPublishIsSwallowed(t *testing.T) {
	broken := &recordingSubscriber{id: "broken", err: errors.New("buffer full")}
	pub := &recordingPublisher{err: errors.New("redis down")}
	caster := New(&staticSource{subs: []registry.Subscriber{broken}}, pub)

	// Fan-out never propagates delivery errors.
	caster.Broadcast("streamer", domain.NewCommentEvent("streamer", "alice", "hello"))
}
