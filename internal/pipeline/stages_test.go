package pipeline

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/internal/pubsub"
	"github.com/AlirizaAslan/tikfinity/internal/store"
	"github.com/AlirizaAslan/tikfinity/internal/tts"
)

func newTestRecorder(t *testing.T) *store.Recorder {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(store.Models()...))
	return store.NewRecorder(db)
}

func TestPersistStageRoutesEvents(t *testing.T) {
	rec := newTestRecorder(t)
	stage := &PersistStage{Recorder: rec}
	ctx := context.Background()

	require.NoError(t, stage.Process(ctx, domain.NewCommentEvent("streamer", "alice", "hi")))
	require.NoError(t, stage.Process(ctx, domain.NewViewerUpdateEvent("streamer", 120)))
	// Connection events carry no interaction; nothing to persist.
	require.NoError(t, stage.Process(ctx, domain.NewConnectionEvent("streamer", domain.StatusConnected, "")))

	stats, err := rec.StreamStats(ctx, "streamer")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalComments)
	assert.Equal(t, 120, stats.ViewerCount)

	last, err := rec.LastInteraction(ctx, "streamer", domain.EventComment)
	require.NoError(t, err)
	assert.Equal(t, "alice", last.Username)
}

func TestPointsStageAmounts(t *testing.T) {
	tests := []struct {
		name string
		ev   *domain.LiveEvent
		want int
	}{
		{"gift pays diamonds times count", domain.NewGiftEvent("streamer", "alice", "Rose", 5, 3), 15},
		{"follow pays the follow bonus", domain.NewFollowEvent("streamer", "alice"), store.PointsPerFollow},
		{"share pays the share bonus", domain.NewShareEvent("streamer", "alice"), store.PointsPerShare},
		{"like pays one", domain.NewLikeEvent("streamer", "alice", 1, 1), store.PointsPerLike},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newTestRecorder(t)
			stage := &PointsStage{Recorder: rec}
			ctx := context.Background()

			require.NoError(t, stage.Process(ctx, tt.ev))

			up, _, err := rec.AwardPoints(ctx, "streamer", "alice", "check", 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want+1, up.PointsTotal)
		})
	}
}

func TestPointsStageIgnoresNonScoringEvents(t *testing.T) {
	rec := newTestRecorder(t)
	stage := &PointsStage{Recorder: rec}
	ctx := context.Background()

	require.NoError(t, stage.Process(ctx, domain.NewCommentEvent("streamer", "alice", "hi")))
	require.NoError(t, stage.Process(ctx, domain.NewJoinEvent("streamer", "alice")))
	require.NoError(t, stage.Process(ctx, domain.NewViewerUpdateEvent("streamer", 10)))

	up, _, err := rec.AwardPoints(ctx, "streamer", "alice", "check", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, up.PointsTotal, "comments, joins and viewer updates must not score")
}

type capturingPublisher struct {
	mu       sync.Mutex
	channels []string
	payloads []pubsub.LastXUpdatePayload
}

func (p *capturingPublisher) Publish(ctx context.Context, channel string, ev *pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var payload pubsub.LastXUpdatePayload
	if err := ev.UnmarshalPayload(&payload); err != nil {
		return err
	}
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, payload)
	return nil
}

func TestLastXStagePublishesWidgetUpdates(t *testing.T) {
	pub := &capturingPublisher{}
	stage := &LastXStage{Groups: pub}
	ctx := context.Background()

	require.NoError(t, stage.Process(ctx, domain.NewFollowEvent("streamer", "alice")))
	require.NoError(t, stage.Process(ctx, domain.NewGiftEvent("streamer", "bob", "Rose", 1, 1)))
	// Joins have no widget.
	require.NoError(t, stage.Process(ctx, domain.NewJoinEvent("streamer", "carol")))

	require.Len(t, pub.payloads, 2)
	assert.Equal(t, pubsub.LastXChannel("streamer"), pub.channels[0])
	assert.Equal(t, "follower", pub.payloads[0].WidgetType)
	assert.Equal(t, "alice", pub.payloads[0].Username)
	assert.Equal(t, "gifter", pub.payloads[1].WidgetType)
}

type stubEngine struct{}

func (stubEngine) Synthesize(ctx context.Context, text string, voice tts.VoiceConfig, outputPath string) error {
	return os.WriteFile(outputPath, []byte("RIFFfake"), 0o644)
}

func TestTTSStageBroadcastsUtterance(t *testing.T) {
	speaker := tts.NewSpeaker(
		tts.Config{MediaDir: t.TempDir(), BaseURL: "/media/tts"},
		stubEngine{},
		tts.StaticSettings(tts.Settings{
			Enabled:          true,
			CommentType:      tts.CommentAny,
			FilterMentions:   true,
			MaxCommentLength: 200,
		}),
	)
	rec := newTestRecorder(t)

	var mu sync.Mutex
	var broadcasted []*domain.LiveEvent
	stage := &TTSStage{
		Speaker:  speaker,
		Recorder: rec,
		Broadcast: func(room domain.RoomID, ev *domain.LiveEvent) {
			mu.Lock()
			defer mu.Unlock()
			broadcasted = append(broadcasted, ev)
		},
	}
	ctx := context.Background()

	require.NoError(t, stage.Process(ctx, domain.NewCommentEvent("streamer", "alice", "hello chat")))
	// Non-comments and filtered comments stay silent.
	require.NoError(t, stage.Process(ctx, domain.NewFollowEvent("streamer", "bob")))
	require.NoError(t, stage.Process(ctx, domain.NewCommentEvent("streamer", "carol", "hi @friend")))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, broadcasted, 1)
	assert.Equal(t, domain.EventTTS, broadcasted[0].Type)
	assert.Equal(t, "alice", broadcasted[0].Username)
	assert.Equal(t, "hello chat", broadcasted[0].Text)
	assert.Contains(t, broadcasted[0].AudioURL, "/media/tts/tts_")
}
