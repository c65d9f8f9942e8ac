package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/pkg/log"
)

// Points awarded per interaction kind. Gifts are worth their diamond value.
const (
	PointsPerFollow = 50
	PointsPerShare  = 25
	PointsPerLike   = 1

	// Level-up threshold: every full hundred level-points is one level.
	pointsPerLevel = 100
)

var ErrNoInteraction = errors.New("no interaction recorded")

// Recorder is the persistence collaborator of the live core. Every method is
// independently failable and called off the fan-out path.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder wraps a GORM connection.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// ActiveStream returns the room's active stream record, creating one when
// the room has none.
func (r *Recorder) ActiveStream(ctx context.Context, room domain.RoomID) (*LiveStreamModel, error) {
	var stream LiveStreamModel
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND is_active = ?", room.String(), true).
		First(&stream).Error
	if err == nil {
		return &stream, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	stream = LiveStreamModel{
		RoomID:   room.String(),
		StreamID: fmt.Sprintf("%s_%s", room, uuid.New().String()),
		IsActive: true,
	}
	if err := r.db.WithContext(ctx).Create(&stream).Error; err != nil {
		return nil, fmt.Errorf("create live stream: %w", err)
	}
	log.Ctx(ctx).Info().
		Str(log.FieldRoomID, room.String()).
		Str(log.FieldStreamID, stream.StreamID).
		Msg("live stream record opened")
	return &stream, nil
}

// RecordInteraction persists one normalized interaction and bumps the
// stream's per-type counters.
func (r *Recorder) RecordInteraction(ctx context.Context, room domain.RoomID, ev *domain.LiveEvent) error {
	stream, err := r.ActiveStream(ctx, room)
	if err != nil {
		return err
	}

	rec := InteractionModel{
		StreamID:  stream.ID,
		RoomID:    room.String(),
		Type:      ev.Type,
		Username:  ev.Username,
		Message:   ev.Message,
		GiftName:  ev.GiftName,
		GiftValue: ev.GiftValue,
		GiftCount: ev.GiftCount,
	}
	if rec.GiftCount < 1 {
		rec.GiftCount = 1
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}

	updates := map[string]interface{}{}
	switch ev.Type {
	case domain.EventComment:
		updates["total_comments"] = gorm.Expr("total_comments + 1")
	case domain.EventGift:
		updates["total_gifts"] = gorm.Expr("total_gifts + 1")
	case domain.EventLike:
		n := ev.LikeCount
		if n < 1 {
			n = 1
		}
		updates["total_likes"] = gorm.Expr("total_likes + ?", n)
	case domain.EventShare:
		updates["total_shares"] = gorm.Expr("total_shares + 1")
	}
	if len(updates) > 0 {
		if err := r.db.WithContext(ctx).Model(&LiveStreamModel{}).
			Where("id = ?", stream.ID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("update stream stats: %w", err)
		}
	}
	return nil
}

// UpdateViewerCount stores the current viewer count and tracks the peak.
func (r *Recorder) UpdateViewerCount(ctx context.Context, room domain.RoomID, count int) error {
	stream, err := r.ActiveStream(ctx, room)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{"viewer_count": count}
	if count > stream.PeakViewers {
		updates["peak_viewers"] = count
	}
	return r.db.WithContext(ctx).Model(&LiveStreamModel{}).
		Where("id = ?", stream.ID).
		Updates(updates).Error
}

// MarkStreamEnded closes the room's active stream record, if any.
func (r *Recorder) MarkStreamEnded(ctx context.Context, room domain.RoomID) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&LiveStreamModel{}).
		Where("room_id = ? AND is_active = ?", room.String(), true).
		Updates(map[string]interface{}{"is_active": false, "ended_at": &now})
	if res.Error != nil {
		return fmt.Errorf("mark stream ended: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.L().Info().Str(log.FieldRoomID, room.String()).Msg("live stream record closed")
	}
	return nil
}

// AwardPoints credits a viewer and records the transaction. Every full
// hundred level-points rolls into one level. Returns the updated balance and
// whether the award caused a level-up.
func (r *Recorder) AwardPoints(ctx context.Context, room domain.RoomID, username, kind string, amount int) (*UserPointsModel, bool, error) {
	if amount <= 0 {
		return nil, false, nil
	}

	var up UserPointsModel
	leveled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Pipeline stages award concurrently; lock the balance row so
		// read-committed backends don't lose increments.
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("room_id = ? AND username = ?", room.String(), username).First(&up).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			up = UserPointsModel{RoomID: room.String(), Username: username, Level: 1}
			if err := tx.Create(&up).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		up.PointsTotal += amount
		up.PointsLevel += amount
		for up.PointsLevel >= pointsPerLevel {
			up.Level++
			up.PointsLevel -= pointsPerLevel
			leveled = true
		}
		if err := tx.Save(&up).Error; err != nil {
			return err
		}

		return tx.Create(&PointsTransactionModel{
			UserPointsID: up.ID,
			Kind:         kind,
			PointsChange: amount,
		}).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("award points: %w", err)
	}
	return &up, leveled, nil
}

// RecordTTS logs one synthesized utterance.
func (r *Recorder) RecordTTS(ctx context.Context, room domain.RoomID, username, message, audioURL string) error {
	return r.db.WithContext(ctx).Create(&TTSLogModel{
		RoomID:   room.String(),
		Username: username,
		Message:  message,
		AudioURL: audioURL,
	}).Error
}

// LastInteraction returns the room's most recent interaction of the given
// type, for the last-X widgets.
func (r *Recorder) LastInteraction(ctx context.Context, room domain.RoomID, itype string) (*InteractionModel, error) {
	var rec InteractionModel
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND type = ?", room.String(), itype).
		Order("created_at DESC, id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoInteraction
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// StreamStats returns the active stream record for a room without creating
// one.
func (r *Recorder) StreamStats(ctx context.Context, room domain.RoomID) (*LiveStreamModel, error) {
	var stream LiveStreamModel
	err := r.db.WithContext(ctx).
		Where("room_id = ?", room.String()).
		Order("started_at DESC, id DESC").
		First(&stream).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoInteraction
	}
	if err != nil {
		return nil, err
	}
	return &stream, nil
}
