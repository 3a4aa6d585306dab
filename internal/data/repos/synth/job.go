package synth

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	apperrors "github.com/echoform/echoform-backend/internal/pkg/errors"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
)

type JobRepo interface {
	Create(dbc dbctx.Context, jobs []*types.SynthesisJob) ([]*types.SynthesisJob, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SynthesisJob, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.SynthesisJob, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.SynthesisJob, error)

	// LatestCompletedByFingerprint returns the newest completed original
	// (non-cache-hit) job for the fingerprint, or nil when none exists.
	LatestCompletedByFingerprint(dbc dbctx.Context, fingerprint string) (*types.SynthesisJob, error)

	// ClaimNextRunnable picks one runnable job with FOR UPDATE SKIP LOCKED
	// and moves it pending->running in the same transaction. Stale running
	// rows (dead worker, old heartbeat) are reclaimed the same way.
	ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, staleRunning time.Duration) (*types.SynthesisJob, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)

	// SetProgress only applies while the job is running; progress writes
	// racing a terminal transition lose silently.
	SetProgress(dbc dbctx.Context, id uuid.UUID, progress float64) error
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error

	// RequestCancel resolves pending jobs to cancelled immediately and
	// flags running jobs for the pipeline to notice at its next poll
	// boundary. Returns the job status observed at decision time.
	RequestCancel(dbc dbctx.Context, id uuid.UUID) (string, error)

	ListNeedsReindex(dbc dbctx.Context, limit int) ([]*types.SynthesisJob, error)
	ListExpired(dbc dbctx.Context, now time.Time, limit int) ([]*types.SynthesisJob, error)
	ExistsByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "SynthesisJobRepo"),
	}
}

func (r *jobRepo) Create(dbc dbctx.Context, jobs []*types.SynthesisJob) ([]*types.SynthesisJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobs) == 0 {
		return []*types.SynthesisJob{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SynthesisJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, apperrors.ErrNotFound
	}
	var j types.SynthesisJob
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *jobRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.SynthesisJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SynthesisJob
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.SynthesisJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.SynthesisJob
	if userID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) LatestCompletedByFingerprint(dbc dbctx.Context, fingerprint string) (*types.SynthesisJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if fingerprint == "" {
		return nil, nil
	}
	var j types.SynthesisJob
	err := transaction.WithContext(dbc.Ctx).
		Where("fingerprint = ? AND status = ? AND cache_hit = ?",
			fingerprint, types.SynthesisJobStatusCompleted, false).
		Order("completed_at DESC").
		Limit(1).
		Find(&j).Error
	if err != nil {
		return nil, err
	}
	if j.ID == uuid.Nil {
		return nil, nil
	}
	return &j, nil
}

func (r *jobRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, staleRunning time.Duration) (*types.SynthesisJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.SynthesisJob
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job types.SynthesisJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          status = ?
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
        AND attempts < ?
      `, types.SynthesisJobStatusPending, types.SynthesisJobStatusRunning, staleCutoff, maxAttempts).
			Order("created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.SynthesisJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.SynthesisJobStatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = types.SynthesisJobStatusRunning
		job.Attempts++
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.SynthesisJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}

	q := transaction.WithContext(dbc.Ctx).
		Model(&types.SynthesisJob{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRepo) SetProgress(dbc dbctx.Context, id uuid.UUID, progress float64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	now := time.Now()
	return transaction.WithContext(dbc.Ctx).
		Model(&types.SynthesisJob{}).
		Where("id = ? AND status = ? AND progress <= ?", id, types.SynthesisJobStatusRunning, progress).
		Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": now,
		}).Error
}

func (r *jobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(dbc.Ctx).
		Model(&types.SynthesisJob{}).
		Where("id = ? AND status = ?", id, types.SynthesisJobStatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *jobRepo) RequestCancel(dbc dbctx.Context, id uuid.UUID) (string, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return "", apperrors.ErrNotFound
	}

	status := ""
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job types.SynthesisJob
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		if qErr != nil {
			return qErr
		}

		now := time.Now()
		switch job.Status {
		case types.SynthesisJobStatusPending:
			if err := txx.Model(&types.SynthesisJob{}).
				Where("id = ? AND status = ?", id, types.SynthesisJobStatusPending).
				Updates(map[string]interface{}{
					"status":       types.SynthesisJobStatusCancelled,
					"completed_at": now,
					"updated_at":   now,
				}).Error; err != nil {
				return err
			}
			status = types.SynthesisJobStatusCancelled
		case types.SynthesisJobStatusRunning:
			// The pipeline is the only writer of terminal states for a
			// running job; it resolves the flag at its next poll boundary.
			if err := txx.Model(&types.SynthesisJob{}).
				Where("id = ? AND status = ?", id, types.SynthesisJobStatusRunning).
				Updates(map[string]interface{}{
					"cancel_requested": true,
					"updated_at":       now,
				}).Error; err != nil {
				return err
			}
			status = types.SynthesisJobStatusRunning
		default:
			status = job.Status
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

func (r *jobRepo) ListNeedsReindex(dbc dbctx.Context, limit int) ([]*types.SynthesisJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.SynthesisJob
	if err := transaction.WithContext(dbc.Ctx).
		Where("needs_reindex = ?", true).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) ListExpired(dbc dbctx.Context, now time.Time, limit int) ([]*types.SynthesisJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.SynthesisJob
	if err := transaction.WithContext(dbc.Ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ? AND audio_key <> ''",
			types.SynthesisJobStatusCompleted, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) ExistsByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var found []uuid.UUID
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.SynthesisJob{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = false
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}
