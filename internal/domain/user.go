package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User rows are never hard-deleted; DeletedAt acts as a soft-disable.
type User struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email       string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	DisplayName string    `gorm:"column:display_name" json:"display_name"`

	MaxVoiceSamples   int `gorm:"column:max_voice_samples;not null;default:10" json:"max_voice_samples"`
	MaxDailySyntheses int `gorm:"column:max_daily_syntheses;not null;default:50" json:"max_daily_syntheses"`

	// DailySynthesisCount is valid for DailySynthesisDate only; the counter
	// rolls over on the first completed synthesis of a new day.
	DailySynthesisCount int        `gorm:"column:daily_synthesis_count;not null;default:0" json:"daily_synthesis_count"`
	DailySynthesisDate  *time.Time `gorm:"column:daily_synthesis_date;type:date" json:"daily_synthesis_date,omitempty"`

	StorageUsedBytes int64 `gorm:"column:storage_used_bytes;not null;default:0" json:"storage_used_bytes"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "user" }

// SynthesesRemainingOn reports how many syntheses the user may still run on
// the given day.
func (u *User) SynthesesRemainingOn(day time.Time) int {
	if u == nil {
		return 0
	}
	used := 0
	if u.DailySynthesisDate != nil && sameDate(*u.DailySynthesisDate, day) {
		used = u.DailySynthesisCount
	}
	remaining := u.MaxDailySyntheses - used
	if remaining < 0 {
		return 0
	}
	return remaining
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
