package store

import (
	"time"

	"gorm.io/gorm"
)

// LiveStreamModel is one monitored live broadcast of a room.
type LiveStreamModel struct {
	ID          uint           `gorm:"primaryKey"`
	RoomID      string         `gorm:"type:varchar(100);index;not null"`
	StreamID    string         `gorm:"type:varchar(150);uniqueIndex;not null"`
	IsActive    bool           `gorm:"index;default:true"`
	StartedAt   time.Time      `gorm:"autoCreateTime"`
	EndedAt     *time.Time
	ViewerCount int            `gorm:"default:0"`
	PeakViewers int            `gorm:"default:0"`

	TotalComments int `gorm:"default:0"`
	TotalGifts    int `gorm:"default:0"`
	TotalLikes    int `gorm:"default:0"`
	TotalShares   int `gorm:"default:0"`

	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (LiveStreamModel) TableName() string { return "live_streams" }

// InteractionModel is one recorded room interaction.
type InteractionModel struct {
	ID        uint      `gorm:"primaryKey"`
	StreamID  uint      `gorm:"index;not null"`
	RoomID    string    `gorm:"type:varchar(100);index;not null"`
	Type      string    `gorm:"type:varchar(20);index;not null"`
	Username  string    `gorm:"type:varchar(100);not null"`
	Message   string    `gorm:"type:text"`
	GiftName  string    `gorm:"type:varchar(100)"`
	GiftValue int       `gorm:"default:0"`
	GiftCount int       `gorm:"default:1"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (InteractionModel) TableName() string { return "interactions" }

// UserPointsModel tracks a viewer's points balance within one room.
type UserPointsModel struct {
	ID          uint   `gorm:"primaryKey"`
	RoomID      string `gorm:"type:varchar(100);uniqueIndex:idx_room_user;not null"`
	Username    string `gorm:"type:varchar(100);uniqueIndex:idx_room_user;not null"`
	PointsTotal int    `gorm:"default:0"`
	PointsLevel int    `gorm:"default:0"`
	Level       int    `gorm:"default:1"`
	UpdatedAt   time.Time
}

func (UserPointsModel) TableName() string { return "user_points" }

// PointsTransactionModel is one points award.
type PointsTransactionModel struct {
	ID           uint      `gorm:"primaryKey"`
	UserPointsID uint      `gorm:"index;not null"`
	Kind         string    `gorm:"type:varchar(20);not null"`
	PointsChange int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (PointsTransactionModel) TableName() string { return "points_transactions" }

// TTSLogModel records one synthesized utterance.
type TTSLogModel struct {
	ID        uint      `gorm:"primaryKey"`
	RoomID    string    `gorm:"type:varchar(100);index;not null"`
	Username  string    `gorm:"type:varchar(100);not null"`
	Message   string    `gorm:"type:text;not null"`
	AudioURL  string    `gorm:"type:varchar(255)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (TTSLogModel) TableName() string { return "tts_logs" }

// Models returns every model for auto-migration.
func Models() []interface{} {
	return []interface{}{
		&LiveStreamModel{},
		&InteractionModel{},
		&UserPointsModel{},
		&PointsTransactionModel{},
		&TTSLogModel{},
	}
}
