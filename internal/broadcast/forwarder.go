package broadcast

import (
	"context"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/internal/pubsub"
	"github.com/AlirizaAslan/tikfinity/pkg/log"
)

// GroupForwarder consumes a room's last-X widget channel and re-delivers the
// updates to the room's local overlay subscribers. The widget stage publishes
// over the bus instead of delivering directly so that every process serving
// the room, not only the one holding the upstream connection, paints its
// widgets.
type GroupForwarder struct {
	groups pubsub.PubSub
	caster *Broadcaster
}

func NewGroupForwarder(groups pubsub.PubSub, caster *Broadcaster) *GroupForwarder {
	return &GroupForwarder{groups: groups, caster: caster}
}

// Run subscribes to the room's widget channel and forwards updates until ctx
// is cancelled or the bus closes the channel.
func (f *GroupForwarder) Run(ctx context.Context, room domain.RoomID) error {
	channel := pubsub.LastXChannel(room.String())

	ch, err := f.groups.Subscribe(ctx, channel)
	if err != nil {
		return err
	}
	defer func() {
		unsubCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := f.groups.Unsubscribe(unsubCtx, channel); err != nil {
			log.L().Warn().Err(err).Str(log.FieldRoomID, room.String()).Msg("widget channel unsubscribe failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Type != pubsub.EventLastXUpdate {
				continue
			}
			var upd pubsub.LastXUpdatePayload
			if err := ev.UnmarshalPayload(&upd); err != nil {
				log.L().Warn().Err(err).Str(log.FieldRoomID, room.String()).Msg("widget update payload malformed")
				continue
			}
			f.caster.Broadcast(room, domain.NewLastXEvent(room, upd.WidgetType, upd.Username))
		}
	}
}
