package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SynthesisJobStatusPending   = "pending"
	SynthesisJobStatusRunning   = "running"
	SynthesisJobStatusCompleted = "completed"
	SynthesisJobStatusFailed    = "failed"
	SynthesisJobStatusCancelled = "cancelled"
)

// Machine-readable error kinds stored on failed jobs.
const (
	ErrorKindValidation         = "validation"
	ErrorKindTransientBackend   = "transient_backend"
	ErrorKindPermanentBackend   = "permanent_backend"
	ErrorKindConsistency        = "consistency"
	ErrorKindIsolationViolation = "isolation_violation"
)

const (
	CacheKindExact       = "exact"
	CacheKindApproximate = "approximate"
)

// synthesisJobTransitions encodes the only legal status changes. The
// lifecycle is monotonic: no state is ever revisited.
var synthesisJobTransitions = map[string][]string{
	SynthesisJobStatusPending: {SynthesisJobStatusRunning, SynthesisJobStatusCancelled},
	SynthesisJobStatusRunning: {SynthesisJobStatusCompleted, SynthesisJobStatusFailed, SynthesisJobStatusCancelled},
}

// CanTransition reports whether a synthesis job may move from one status to
// another. Terminal states have no outgoing transitions.
func CanTransition(from, to string) bool {
	for _, next := range synthesisJobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalJobStatus reports whether a status permits no further writes to
// status/progress/result fields.
func IsTerminalJobStatus(status string) bool {
	switch status {
	case SynthesisJobStatusCompleted, SynthesisJobStatusFailed, SynthesisJobStatusCancelled:
		return true
	}
	return false
}

// WordTimestamp is one aligned word in a synthesis result. Times are seconds
// from the start of the audio.
type WordTimestamp struct {
	Word      string  `json:"word"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

type SyllableTimestamp struct {
	Syllable  string  `json:"syllable"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// SynthesisConfig is the per-request rendering configuration. Label is
// display-only and excluded from the fingerprint; everything else changes
// acoustic output.
type SynthesisConfig struct {
	Format         string  `json:"format"`
	SampleRate     int     `json:"sample_rate"`
	Speed          float64 `json:"speed"`
	Pitch          float64 `json:"pitch"`
	Volume         float64 `json:"volume"`
	Language       string  `json:"language"`
	Label          string  `json:"label,omitempty"`
	WithTimestamps bool    `json:"with_timestamps"`
}

// SynthesisJob is the unit of work for "render text T with clone C under
// config Φ". Once completed the row is immutable except for derived
// read-access fields (expiry).
type SynthesisJob struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	VoiceCloneID uuid.UUID `gorm:"type:uuid;not null;index" json:"voice_clone_id"`

	Text        string `gorm:"column:text;not null" json:"text"`
	Fingerprint string `gorm:"column:fingerprint;not null;index" json:"fingerprint"`
	Label       string `gorm:"column:label" json:"label,omitempty"`

	Format         string  `gorm:"column:format;not null" json:"format"`
	SampleRate     int     `gorm:"column:sample_rate;not null" json:"sample_rate"`
	Speed          float64 `gorm:"column:speed;not null;default:1" json:"speed"`
	Pitch          float64 `gorm:"column:pitch;not null;default:1" json:"pitch"`
	Volume         float64 `gorm:"column:volume;not null;default:1" json:"volume"`
	Language       string  `gorm:"column:language" json:"language"`
	WithTimestamps bool    `gorm:"column:with_timestamps;not null;default:false" json:"with_timestamps"`

	Status   string  `gorm:"column:status;not null;index" json:"status"`
	Progress float64 `gorm:"column:progress;not null;default:0" json:"progress"`

	Attempts        int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LockedAt        *time.Time `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt     *time.Time `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt     *time.Time `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	CancelRequested bool       `gorm:"column:cancel_requested;not null;default:false" json:"cancel_requested"`

	CacheHit    bool       `gorm:"column:cache_hit;not null;default:false" json:"cache_hit"`
	CacheKind   string     `gorm:"column:cache_kind" json:"cache_kind,omitempty"`
	SourceJobID *uuid.UUID `gorm:"type:uuid;column:source_job_id" json:"source_job_id,omitempty"`

	AudioKey           string         `gorm:"column:audio_key" json:"audio_key,omitempty"`
	AudioURL           string         `gorm:"column:audio_url" json:"audio_url,omitempty"`
	WordTimestamps     datatypes.JSON `gorm:"column:word_timestamps;type:jsonb" json:"word_timestamps,omitempty"`
	SyllableTimestamps datatypes.JSON `gorm:"column:syllable_timestamps;type:jsonb" json:"syllable_timestamps,omitempty"`

	Error     string `gorm:"column:error" json:"error,omitempty"`
	ErrorKind string `gorm:"column:error_kind;index" json:"error_kind,omitempty"`

	NeedsReindex bool       `gorm:"column:needs_reindex;not null;default:false;index" json:"needs_reindex"`
	ExpiresAt    *time.Time `gorm:"column:expires_at;index" json:"expires_at,omitempty"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SynthesisJob) TableName() string { return "synthesis_job" }

// Config reassembles the request configuration stored on the row.
func (j *SynthesisJob) Config() SynthesisConfig {
	return SynthesisConfig{
		Format:         j.Format,
		SampleRate:     j.SampleRate,
		Speed:          j.Speed,
		Pitch:          j.Pitch,
		Volume:         j.Volume,
		Language:       j.Language,
		Label:          j.Label,
		WithTimestamps: j.WithTimestamps,
	}
}

// SynthesisClaim is the per-fingerprint single-flight claim row. At most one
// claim exists per fingerprint; it lives for the duration of the in-flight
// job and is deleted when that job reaches a terminal state. Insert-if-absent
// on this table is what collapses concurrent identical requests across
// worker processes.
type SynthesisClaim struct {
	Fingerprint string    `gorm:"primaryKey;column:fingerprint" json:"fingerprint"`
	JobID       uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (SynthesisClaim) TableName() string { return "synthesis_claim" }
