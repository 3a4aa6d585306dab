package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/echoform/echoform-backend/internal/cache"
	"github.com/echoform/echoform-backend/internal/config"
	"github.com/echoform/echoform-backend/internal/data/repos"
	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/fingerprint"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	apperrors "github.com/echoform/echoform-backend/internal/pkg/errors"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
)

// maxSynthesisTextLen bounds request text in runes.
const maxSynthesisTextLen = 5000

// SynthesisRequest is one render request as it arrives from the API.
type SynthesisRequest struct {
	VoiceCloneID uuid.UUID             `json:"voice_clone_id"`
	Text         string                `json:"text"`
	Config       types.SynthesisConfig `json:"config"`
}

// JobStatus is the polling read model: enough for a client to drive a
// progress bar and fetch the artifact, nothing more.
type JobStatus struct {
	JobID     uuid.UUID  `json:"job_id"`
	Status    string     `json:"status"`
	Progress  float64    `json:"progress"`
	Error     string     `json:"error,omitempty"`
	ErrorKind string     `json:"error_kind,omitempty"`
	AudioURL  string     `json:"audio_url,omitempty"`
	CacheHit  bool       `json:"cache_hit"`
	CacheKind string     `json:"cache_kind,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type SynthesisService interface {
	// Submit resolves a render request to a job row: a completed cache-hit
	// row, an attachment to an identical in-flight job, or a fresh pending
	// job claimed for this fingerprint.
	Submit(ctx context.Context, userID uuid.UUID, req SynthesisRequest) (*types.SynthesisJob, error)

	Cancel(ctx context.Context, userID, jobID uuid.UUID) (*types.SynthesisJob, error)
	GetJob(ctx context.Context, userID, jobID uuid.UUID) (*types.SynthesisJob, error)
	Status(ctx context.Context, userID, jobID uuid.UUID) (*JobStatus, error)
	ListJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*types.SynthesisJob, error)
}

type synthesisService struct {
	log    *logger.Logger
	quota  config.QuotaConfig
	users  repos.UserRepo
	clones repos.VoiceCloneRepo
	jobs   repos.SynthesisJobRepo
	claims repos.SynthesisClaimRepo
	dedup  *cache.Dedup
	notify JobNotifier
}

func NewSynthesisService(
	log *logger.Logger,
	quota config.QuotaConfig,
	users repos.UserRepo,
	clones repos.VoiceCloneRepo,
	jobs repos.SynthesisJobRepo,
	claims repos.SynthesisClaimRepo,
	dedup *cache.Dedup,
	notify JobNotifier,
) SynthesisService {
	return &synthesisService{
		log:    log.With("service", "SynthesisService"),
		quota:  quota,
		users:  users,
		clones: clones,
		jobs:   jobs,
		claims: claims,
		dedup:  dedup,
		notify: notify,
	}
}

// normalizeRenderConfig fills the acoustic defaults so that two requests
// differing only in omitted fields fingerprint identically.
func normalizeRenderConfig(cfg types.SynthesisConfig) types.SynthesisConfig {
	if strings.TrimSpace(cfg.Format) == "" {
		cfg.Format = "wav"
	}
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 22050
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	if cfg.Pitch <= 0 {
		cfg.Pitch = 1
	}
	if cfg.Volume <= 0 {
		cfg.Volume = 1
	}
	cfg.Language = strings.ToLower(strings.TrimSpace(cfg.Language))
	return cfg
}

func (s *synthesisService) Submit(ctx context.Context, userID uuid.UUID, req SynthesisRequest) (*types.SynthesisJob, error) {
	dbc := dbctx.Context{Ctx: ctx}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("text is required: %w", apperrors.ErrInvalidArgument)
	}
	if len([]rune(text)) > maxSynthesisTextLen {
		return nil, fmt.Errorf("text exceeds %d characters: %w", maxSynthesisTextLen, apperrors.ErrInvalidArgument)
	}
	if req.VoiceCloneID == uuid.Nil {
		return nil, fmt.Errorf("voice_clone_id is required: %w", apperrors.ErrInvalidArgument)
	}

	clone, err := s.clones.GetByID(dbc, req.VoiceCloneID)
	if err != nil {
		return nil, err
	}
	if clone.UserID != userID {
		return nil, apperrors.ErrNotFound
	}
	if clone.Status != types.VoiceCloneStatusReady {
		return nil, fmt.Errorf("voice clone %s is %s, not ready: %w", clone.ID, clone.Status, apperrors.ErrConflict)
	}

	cfg := normalizeRenderConfig(req.Config)
	fp := fingerprint.Compute(text, clone.ID, cfg)

	hit, err := s.dedup.Lookup(ctx, userID, clone.ID, text, fp)
	if err != nil {
		return nil, err
	}
	if hit != nil {
		return s.createCacheHit(ctx, userID, clone.ID, text, fp, cfg, hit)
	}

	// Quota only guards real synthesis work; cache hits above are free.
	user, err := s.users.GetByID(dbc, userID)
	if err != nil {
		return nil, err
	}
	if user.SynthesesRemainingOn(time.Now()) <= 0 {
		return nil, fmt.Errorf("daily synthesis limit reached: %w", apperrors.ErrQuotaExceeded)
	}

	job := &types.SynthesisJob{
		ID:             uuid.New(),
		UserID:         userID,
		VoiceCloneID:   clone.ID,
		Text:           text,
		Fingerprint:    fp,
		Label:          strings.TrimSpace(cfg.Label),
		Format:         cfg.Format,
		SampleRate:     cfg.SampleRate,
		Speed:          cfg.Speed,
		Pitch:          cfg.Pitch,
		Volume:         cfg.Volume,
		Language:       cfg.Language,
		WithTimestamps: cfg.WithTimestamps,
		Status:         types.SynthesisJobStatusPending,
	}

	out, winner, err := s.dedup.ClaimOrAttach(ctx, fp, job)
	if err != nil {
		return nil, err
	}
	if winner {
		if s.notify != nil {
			s.notify.JobCreated(userID, out.ID, "synthesis", out)
		}
		s.log.Info("Synthesis job created", "job_id", out.ID, "user_id", userID, "fingerprint", fp)
	} else {
		s.log.Info("Attached to in-flight synthesis", "job_id", out.ID, "user_id", userID, "fingerprint", fp)
	}
	return out, nil
}

// createCacheHit materializes a completed job row that records the reuse.
// The source row stays untouched; the new row carries its own identity so
// listings and status reads work uniformly.
func (s *synthesisService) createCacheHit(
	ctx context.Context,
	userID, cloneID uuid.UUID,
	text, fp string,
	cfg types.SynthesisConfig,
	hit *cache.LookupResult,
) (*types.SynthesisJob, error) {
	src := hit.Source
	now := time.Now()

	job := &types.SynthesisJob{
		ID:             uuid.New(),
		UserID:         userID,
		VoiceCloneID:   cloneID,
		Text:           text,
		Fingerprint:    fp,
		Label:          strings.TrimSpace(cfg.Label),
		Format:         cfg.Format,
		SampleRate:     cfg.SampleRate,
		Speed:          cfg.Speed,
		Pitch:          cfg.Pitch,
		Volume:         cfg.Volume,
		Language:       cfg.Language,
		WithTimestamps: cfg.WithTimestamps,

		Status:   types.SynthesisJobStatusCompleted,
		Progress: 1,

		CacheHit:    true,
		CacheKind:   hit.Kind,
		SourceJobID: &src.ID,

		AudioKey:           src.AudioKey,
		AudioURL:           src.AudioURL,
		WordTimestamps:     src.WordTimestamps,
		SyllableTimestamps: src.SyllableTimestamps,

		ExpiresAt:   src.ExpiresAt,
		CompletedAt: &now,
	}

	if _, err := s.jobs.Create(dbctx.Context{Ctx: ctx}, []*types.SynthesisJob{job}); err != nil {
		return nil, err
	}
	if s.notify != nil {
		s.notify.JobCreated(userID, job.ID, "synthesis", job)
		s.notify.JobDone(userID, job.ID, "synthesis", job)
	}
	s.log.Info("Synthesis served from cache",
		"job_id", job.ID,
		"source_job_id", src.ID,
		"cache_kind", hit.Kind,
		"user_id", userID,
	)
	return job, nil
}

func (s *synthesisService) Cancel(ctx context.Context, userID, jobID uuid.UUID) (*types.SynthesisJob, error) {
	dbc := dbctx.Context{Ctx: ctx}

	job, err := s.jobs.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, apperrors.ErrNotFound
	}

	status, err := s.jobs.RequestCancel(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if status == types.SynthesisJobStatusCancelled {
		// Pending jobs resolve immediately; the claim dies with them so the
		// next identical request starts fresh.
		if err := s.claims.ReleaseByJob(dbc, jobID); err != nil {
			s.log.Error("Failed to release claim for cancelled job", "job_id", jobID, "error", err)
		}
		if s.notify != nil {
			s.notify.JobCancelled(userID, jobID, "synthesis")
		}
	}

	return s.jobs.GetByID(dbc, jobID)
}

func (s *synthesisService) GetJob(ctx context.Context, userID, jobID uuid.UUID) (*types.SynthesisJob, error) {
	job, err := s.jobs.GetByID(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, apperrors.ErrNotFound
	}
	return job, nil
}

func (s *synthesisService) Status(ctx context.Context, userID, jobID uuid.UUID) (*JobStatus, error) {
	job, err := s.GetJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	st := &JobStatus{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Error:     job.Error,
		ErrorKind: job.ErrorKind,
		CacheHit:  job.CacheHit,
		CacheKind: job.CacheKind,
		ExpiresAt: job.ExpiresAt,
	}
	if job.Status == types.SynthesisJobStatusCompleted {
		st.AudioURL = job.AudioURL
	}
	return st, nil
}

func (s *synthesisService) ListJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*types.SynthesisJob, error) {
	return s.jobs.ListByUser(dbctx.Context{Ctx: ctx}, userID, limit)
}
