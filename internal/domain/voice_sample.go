package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	VoiceSampleStatusUploaded   = "uploaded"
	VoiceSampleStatusProcessing = "processing"
	VoiceSampleStatusReady      = "ready"
	VoiceSampleStatusFailed     = "failed"
)

// VoiceSample is an uploaded audio recording owned by exactly one user.
// EmbeddingID is a weak reference into the vector store; the relational row
// is the source of truth and the embedding is rebuildable from it.
type VoiceSample struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	StorageKey  string  `gorm:"column:storage_key;not null" json:"storage_key"`
	Format      string  `gorm:"column:format;not null" json:"format"`
	SampleRate  int     `gorm:"column:sample_rate;not null" json:"sample_rate"`
	DurationSec float64 `gorm:"column:duration_sec;not null;default:0" json:"duration_sec"`
	SizeBytes   int64   `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`
	Language    string  `gorm:"column:language;index" json:"language"`

	Status       string  `gorm:"column:status;not null;index" json:"status"`
	QualityScore float64 `gorm:"column:quality_score;not null;default:0" json:"quality_score"`
	EmbeddingID  string  `gorm:"column:embedding_id" json:"embedding_id,omitempty"`
	NeedsReindex bool    `gorm:"column:needs_reindex;not null;default:false;index" json:"needs_reindex"`
	Error        string  `gorm:"column:error" json:"error,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (VoiceSample) TableName() string { return "voice_sample" }
