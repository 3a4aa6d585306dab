package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	VoiceCloneStatusPending = "pending"
	VoiceCloneStatusReady   = "ready"
	VoiceCloneStatusFailed  = "failed"
)

// VoiceClone is a trained voice identity derived from one or more samples.
// It may not be marked ready unless every constituent sample is ready and
// has a live embedding.
type VoiceClone struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Name                string `gorm:"column:name;not null" json:"name"`
	Language            string `gorm:"column:language;index" json:"language"`
	ReferenceTranscript string `gorm:"column:reference_transcript" json:"reference_transcript"`

	Status             string `gorm:"column:status;not null;index" json:"status"`
	SpeakerEmbeddingID string `gorm:"column:speaker_embedding_id" json:"speaker_embedding_id,omitempty"`
	NeedsReindex       bool   `gorm:"column:needs_reindex;not null;default:false;index" json:"needs_reindex"`
	Error              string `gorm:"column:error" json:"error,omitempty"`

	Samples []VoiceCloneSample `gorm:"foreignKey:VoiceCloneID" json:"samples,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (VoiceClone) TableName() string { return "voice_clone" }

// VoiceCloneSample links a clone to a constituent sample. The link blocks
// deletion of the sample while the clone exists.
type VoiceCloneSample struct {
	VoiceCloneID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"voice_clone_id"`
	VoiceSampleID uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"voice_sample_id"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (VoiceCloneSample) TableName() string { return "voice_clone_sample" }
