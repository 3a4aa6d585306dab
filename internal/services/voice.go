package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/echoform/echoform-backend/internal/config"
	"github.com/echoform/echoform-backend/internal/data/db"
	"github.com/echoform/echoform-backend/internal/data/repos"
	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	apperrors "github.com/echoform/echoform-backend/internal/pkg/errors"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/platform/blob"
	"github.com/echoform/echoform-backend/internal/platform/vector"
)

const (
	entityTypeVoiceSample = "voice_sample"
	entityTypeVoiceClone  = "voice_clone"
)

var allowedSampleFormats = map[string]struct{}{
	"wav":  {},
	"mp3":  {},
	"flac": {},
	"ogg":  {},
}

// UploadSampleRequest carries the raw audio plus its declared properties.
type UploadSampleRequest struct {
	Audio      []byte
	Format     string
	SampleRate int
	Language   string
}

// CreateCloneRequest names the samples a new clone should be trained on.
type CreateCloneRequest struct {
	Name                string      `json:"name"`
	Language            string      `json:"language"`
	ReferenceTranscript string      `json:"reference_transcript"`
	SampleIDs           []uuid.UUID `json:"sample_ids"`
}

type VoiceService interface {
	// UploadSample stores the audio and enqueues feature extraction; the
	// returned sample is in status uploaded until the worker finishes.
	UploadSample(ctx context.Context, userID uuid.UUID, req UploadSampleRequest) (*types.VoiceSample, error)
	GetSample(ctx context.Context, userID, sampleID uuid.UUID) (*types.VoiceSample, error)
	ListSamples(ctx context.Context, userID uuid.UUID) ([]*types.VoiceSample, error)
	// DeleteSample refuses while any clone still references the sample.
	DeleteSample(ctx context.Context, userID, sampleID uuid.UUID) error

	// CreateClone links ready samples into a clone and enqueues training.
	CreateClone(ctx context.Context, userID uuid.UUID, req CreateCloneRequest) (*types.VoiceClone, error)
	GetClone(ctx context.Context, userID, cloneID uuid.UUID) (*types.VoiceClone, error)
	ListClones(ctx context.Context, userID uuid.UUID) ([]*types.VoiceClone, error)
	DeleteClone(ctx context.Context, userID, cloneID uuid.UUID) error
}

type voiceService struct {
	log      *logger.Logger
	quota    config.QuotaConfig
	tx       db.TxRunner
	users    repos.UserRepo
	samples  repos.VoiceSampleRepo
	clones   repos.VoiceCloneRepo
	training repos.TrainingJobRepo
	blobs    blob.Store
	vectors  vector.Store
	notify   JobNotifier
}

func NewVoiceService(
	log *logger.Logger,
	quota config.QuotaConfig,
	tx db.TxRunner,
	users repos.UserRepo,
	samples repos.VoiceSampleRepo,
	clones repos.VoiceCloneRepo,
	training repos.TrainingJobRepo,
	blobs blob.Store,
	vectors vector.Store,
	notify JobNotifier,
) VoiceService {
	return &voiceService{
		log:      log.With("service", "VoiceService"),
		quota:    quota,
		tx:       tx,
		users:    users,
		samples:  samples,
		clones:   clones,
		training: training,
		blobs:    blobs,
		vectors:  vectors,
		notify:   notify,
	}
}

func (s *voiceService) UploadSample(ctx context.Context, userID uuid.UUID, req UploadSampleRequest) (*types.VoiceSample, error) {
	dbc := dbctx.Context{Ctx: ctx}

	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("audio body is empty: %w", apperrors.ErrInvalidArgument)
	}
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if _, ok := allowedSampleFormats[format]; !ok {
		return nil, fmt.Errorf("unsupported audio format %q: %w", req.Format, apperrors.ErrInvalidArgument)
	}

	count, err := s.samples.CountByUser(dbc, userID)
	if err != nil {
		return nil, err
	}
	if int(count) >= s.quota.MaxVoiceSamples {
		return nil, fmt.Errorf("voice sample limit of %d reached: %w", s.quota.MaxVoiceSamples, apperrors.ErrQuotaExceeded)
	}

	sampleID := uuid.New()
	storageKey := fmt.Sprintf("samples/%s/%s.%s", userID, sampleID, format)
	contentType := "audio/" + format
	if err := s.blobs.Put(ctx, storageKey, bytes.NewReader(req.Audio), int64(len(req.Audio)), contentType); err != nil {
		return nil, fmt.Errorf("store sample audio: %w", err)
	}

	sample := &types.VoiceSample{
		ID:         sampleID,
		UserID:     userID,
		StorageKey: storageKey,
		Format:     format,
		SampleRate: req.SampleRate,
		SizeBytes:  int64(len(req.Audio)),
		Language:   strings.ToLower(strings.TrimSpace(req.Language)),
		Status:     types.VoiceSampleStatusUploaded,
	}

	err = s.tx.RunInTx(ctx, func(tx *gorm.DB) error {
		dbtx := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.samples.Create(dbtx, []*types.VoiceSample{sample}); err != nil {
			return err
		}
		if err := s.users.AddStorageUsed(dbtx, userID, sample.SizeBytes); err != nil {
			return err
		}
		return s.enqueueTraining(dbtx, userID, types.JobTypeVoiceSampleExtract, entityTypeVoiceSample, sampleID, map[string]any{
			"voice_sample_id": sampleID,
		})
	})
	if err != nil {
		// Row creation failed after the blob write; clean up the object so
		// storage accounting stays truthful.
		if derr := s.blobs.Delete(ctx, storageKey); derr != nil {
			s.log.Warn("Failed to remove orphaned sample audio", "storage_key", storageKey, "error", derr)
		}
		return nil, err
	}

	s.log.Info("Voice sample uploaded", "voice_sample_id", sampleID, "user_id", userID, "size_bytes", sample.SizeBytes)
	return sample, nil
}

func (s *voiceService) GetSample(ctx context.Context, userID, sampleID uuid.UUID) (*types.VoiceSample, error) {
	sample, err := s.samples.GetByID(dbctx.Context{Ctx: ctx}, sampleID)
	if err != nil {
		return nil, err
	}
	if sample.UserID != userID {
		return nil, apperrors.ErrNotFound
	}
	return sample, nil
}

func (s *voiceService) ListSamples(ctx context.Context, userID uuid.UUID) ([]*types.VoiceSample, error) {
	return s.samples.ListByUser(dbctx.Context{Ctx: ctx}, userID)
}

func (s *voiceService) DeleteSample(ctx context.Context, userID, sampleID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}

	sample, err := s.GetSample(ctx, userID, sampleID)
	if err != nil {
		return err
	}

	inUse, err := s.clones.CountClonesUsingSample(dbc, sampleID)
	if err != nil {
		return err
	}
	if inUse > 0 {
		return fmt.Errorf("sample backs %d voice clone(s); delete those first: %w", inUse, apperrors.ErrConflict)
	}

	err = s.tx.RunInTx(ctx, func(tx *gorm.DB) error {
		dbtx := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.samples.Delete(dbtx, sampleID); err != nil {
			return err
		}
		return s.users.AddStorageUsed(dbtx, userID, -sample.SizeBytes)
	})
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, sample.StorageKey); err != nil {
		s.log.Warn("Failed to delete sample audio", "voice_sample_id", sampleID, "error", err)
	}
	// The orphan sweep would catch this too; doing it inline keeps the
	// index tight.
	if err := s.vectors.DeleteIDs(ctx, vector.NamespaceVoiceSample, []string{sampleID.String()}); err != nil {
		s.log.Warn("Failed to delete sample embedding", "voice_sample_id", sampleID, "error", err)
	}

	s.log.Info("Voice sample deleted", "voice_sample_id", sampleID, "user_id", userID)
	return nil
}

func (s *voiceService) CreateClone(ctx context.Context, userID uuid.UUID, req CreateCloneRequest) (*types.VoiceClone, error) {
	dbc := dbctx.Context{Ctx: ctx}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", apperrors.ErrInvalidArgument)
	}
	if len(req.SampleIDs) == 0 {
		return nil, fmt.Errorf("at least one sample is required: %w", apperrors.ErrInvalidArgument)
	}

	samples, err := s.samples.GetByIDs(dbc, req.SampleIDs)
	if err != nil {
		return nil, err
	}
	if len(samples) != len(req.SampleIDs) {
		return nil, fmt.Errorf("one or more samples do not exist: %w", apperrors.ErrNotFound)
	}
	for _, sample := range samples {
		if sample.UserID != userID {
			return nil, apperrors.ErrNotFound
		}
	}

	clone := &types.VoiceClone{
		ID:                  uuid.New(),
		UserID:              userID,
		Name:                name,
		Language:            strings.ToLower(strings.TrimSpace(req.Language)),
		ReferenceTranscript: strings.TrimSpace(req.ReferenceTranscript),
		Status:              types.VoiceCloneStatusPending,
	}

	err = s.tx.RunInTx(ctx, func(tx *gorm.DB) error {
		dbtx := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.clones.Create(dbtx, clone, req.SampleIDs); err != nil {
			return err
		}
		return s.enqueueTraining(dbtx, userID, types.JobTypeVoiceCloneTrain, entityTypeVoiceClone, clone.ID, map[string]any{
			"voice_clone_id": clone.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Voice clone created", "voice_clone_id", clone.ID, "user_id", userID, "samples", len(req.SampleIDs))
	return clone, nil
}

func (s *voiceService) GetClone(ctx context.Context, userID, cloneID uuid.UUID) (*types.VoiceClone, error) {
	clone, err := s.clones.GetByID(dbctx.Context{Ctx: ctx}, cloneID)
	if err != nil {
		return nil, err
	}
	if clone.UserID != userID {
		return nil, apperrors.ErrNotFound
	}
	return clone, nil
}

func (s *voiceService) ListClones(ctx context.Context, userID uuid.UUID) ([]*types.VoiceClone, error) {
	return s.clones.ListByUser(dbctx.Context{Ctx: ctx}, userID)
}

func (s *voiceService) DeleteClone(ctx context.Context, userID, cloneID uuid.UUID) error {
	if _, err := s.GetClone(ctx, userID, cloneID); err != nil {
		return err
	}

	err := s.tx.RunInTx(ctx, func(tx *gorm.DB) error {
		return s.clones.Delete(dbctx.Context{Ctx: ctx, Tx: tx}, cloneID)
	})
	if err != nil {
		return err
	}

	if err := s.vectors.DeleteIDs(ctx, vector.NamespaceSpeaker, []string{cloneID.String()}); err != nil {
		s.log.Warn("Failed to delete speaker embedding", "voice_clone_id", cloneID, "error", err)
	}

	s.log.Info("Voice clone deleted", "voice_clone_id", cloneID, "user_id", userID)
	return nil
}

// enqueueTraining creates a queued training job unless one for the same
// entity is already runnable.
func (s *voiceService) enqueueTraining(dbc dbctx.Context, userID uuid.UUID, jobType, entityType string, entityID uuid.UUID, payload map[string]any) error {
	exists, err := s.training.HasRunnableForEntity(dbc, userID, entityType, entityID, jobType)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := &types.VoiceTrainingJob{
		ID:          uuid.New(),
		OwnerUserID: userID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    &entityID,
		Status:      types.TrainingJobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON(raw),
		CreatedAt:   time.Now(),
	}
	if _, err := s.training.Create(dbc, []*types.VoiceTrainingJob{job}); err != nil {
		return err
	}
	if s.notify != nil {
		s.notify.JobCreated(userID, job.ID, jobType, job)
	}
	return nil
}
