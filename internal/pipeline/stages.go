package pipeline

import (
	"context"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/internal/pubsub"
	"github.com/AlirizaAslan/tikfinity/internal/store"
	"github.com/AlirizaAslan/tikfinity/internal/tts"
	"github.com/AlirizaAslan/tikfinity/pkg/log"
)

// interactionTypes are the event types persisted as interactions.
var interactionTypes = map[string]struct{}{
	domain.EventComment: {},
	domain.EventGift:    {},
	domain.EventFollow:  {},
	domain.EventLike:    {},
	domain.EventJoin:    {},
	domain.EventShare:   {},
}

// PersistStage records interactions and viewer counts.
type PersistStage struct {
	Recorder *store.Recorder
}

func (s *PersistStage) Name() string { return "persist" }

func (s *PersistStage) Process(ctx context.Context, ev *domain.LiveEvent) error {
	switch {
	case ev.Type == domain.EventViewerUpdate:
		return s.Recorder.UpdateViewerCount(ctx, ev.RoomID, ev.ViewerCount)
	default:
		if _, ok := interactionTypes[ev.Type]; !ok {
			return nil
		}
		return s.Recorder.RecordInteraction(ctx, ev.RoomID, ev)
	}
}

// PointsStage awards viewer points per interaction kind.
type PointsStage struct {
	Recorder *store.Recorder
}

func (s *PointsStage) Name() string { return "points" }

func (s *PointsStage) Process(ctx context.Context, ev *domain.LiveEvent) error {
	var amount int
	switch ev.Type {
	case domain.EventGift:
		count := ev.GiftCount
		if count < 1 {
			count = 1
		}
		amount = ev.GiftValue * count
	case domain.EventFollow:
		amount = store.PointsPerFollow
	case domain.EventShare:
		amount = store.PointsPerShare
	case domain.EventLike:
		amount = store.PointsPerLike
	default:
		return nil
	}
	if ev.Username == "" {
		return nil
	}

	up, leveled, err := s.Recorder.AwardPoints(ctx, ev.RoomID, ev.Username, ev.Type, amount)
	if err != nil {
		return err
	}
	if leveled {
		log.Ctx(ctx).Info().
			Str(log.FieldRoomID, ev.RoomID.String()).
			Str(log.FieldUsername, ev.Username).
			Int("level", up.Level).
			Msg("viewer leveled up")
	}
	return nil
}

// widgetTypes maps event types to last-X widget types.
var widgetTypes = map[string]string{
	domain.EventFollow:  "follower",
	domain.EventGift:    "gifter",
	domain.EventComment: "chatter",
	domain.EventLike:    "liker",
	domain.EventShare:   "sharer",
}

// LastXStage pushes "last X of type" widget updates over the group bus.
type LastXStage struct {
	Groups pubsub.Publisher
}

func (s *LastXStage) Name() string { return "lastx" }

func (s *LastXStage) Process(ctx context.Context, ev *domain.LiveEvent) error {
	widget, ok := widgetTypes[ev.Type]
	if !ok || ev.Username == "" || s.Groups == nil {
		return nil
	}

	update, err := pubsub.NewEvent(pubsub.EventLastXUpdate, ev.RoomID.String(), pubsub.LastXUpdatePayload{
		WidgetType: widget,
		Username:   ev.Username,
		RoomID:     ev.RoomID.String(),
	})
	if err != nil {
		return err
	}
	return s.Groups.Publish(ctx, pubsub.LastXChannel(ev.RoomID.String()), update)
}

// TTSStage synthesizes eligible comments and feeds the resulting audio event
// back through the same broadcast path the comment took.
type TTSStage struct {
	Speaker   *tts.Speaker
	Recorder  *store.Recorder
	Broadcast func(room domain.RoomID, ev *domain.LiveEvent)
}

func (s *TTSStage) Name() string { return "tts" }

func (s *TTSStage) Process(ctx context.Context, ev *domain.LiveEvent) error {
	if ev.Type != domain.EventComment {
		return nil
	}

	utt, ok, err := s.Speaker.Process(ctx, ev.RoomID, ev.Message)
	if err != nil || !ok {
		return err
	}

	if s.Recorder != nil {
		if err := s.Recorder.RecordTTS(ctx, ev.RoomID, ev.Username, utt.Text, utt.AudioURL); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(log.FieldRoomID, ev.RoomID.String()).Msg("tts log failed")
		}
	}

	if s.Broadcast != nil {
		s.Broadcast(ev.RoomID, domain.NewTTSEvent(ev.RoomID, ev.Username, utt.Text, utt.AudioURL))
	}
	return nil
}
