package broadcast

import (
	"context"
	"time"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/internal/pubsub"
	"github.com/AlirizaAslan/tikfinity/internal/registry"
	"github.com/AlirizaAslan/tikfinity/pkg/log"
)

const publishTimeout = 3 * time.Second

// SubscriberSource provides the current subscriber snapshot for a room.
// Implemented by the room registry.
type SubscriberSource interface {
	Snapshot(room domain.RoomID) []registry.Subscriber
}

// Broadcaster delivers one normalized event to every subscriber of a room.
// Direct delivery is attempted first; when any direct delivery fails (or the
// room has group-only listeners) the event is also published once to the
// room's group channel. Either path succeeding is sufficient. A broken
// subscriber never stops delivery to the rest and never reaches the session.
type Broadcaster struct {
	source SubscriberSource
	groups pubsub.Publisher // nil disables the group fallback
}

// New creates a broadcaster over the given subscriber source. groups may be
// nil when no group transport is configured.
func New(source SubscriberSource, groups pubsub.Publisher) *Broadcaster {
	return &Broadcaster{source: source, groups: groups}
}

// Broadcast fans ev out to the room's current subscribers. It iterates a
// snapshot, so the set cannot be mutated under it, and it must be called
// from the session's event loop so that each subscriber sees events in
// normalization order.
func (b *Broadcaster) Broadcast(room domain.RoomID, ev *domain.LiveEvent) {
	subs := b.source.Snapshot(room)

	failed := 0
	for _, sub := range subs {
		if err := sub.Deliver(ev); err != nil {
			failed++
			log.L().Warn().
				Err(err).
				Str(log.FieldRoomID, room.String()).
				Str(log.FieldSubscriberID, sub.ID()).
				Str(log.FieldEventType, ev.Type).
				Msg("direct delivery failed")
		}
	}

	// Removal is the subscriber's own responsibility via detach; a failed
	// delivery only triggers the group fallback.
	if b.groups != nil && failed > 0 {
		b.publishGroup(room, ev)
	}
}

func (b *Broadcaster) publishGroup(room domain.RoomID, ev *domain.LiveEvent) {
	groupEv, err := pubsub.NewEvent(ev.Type, room.String(), ev)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, room.String()).Msg("group event marshal failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := b.groups.Publish(ctx, pubsub.LiveRoomChannel(room.String()), groupEv); err != nil {
		log.L().Warn().
			Err(err).
			Str(log.FieldRoomID, room.String()).
			Str(log.FieldEventType, ev.Type).
			Msg("group delivery failed")
	}
}
