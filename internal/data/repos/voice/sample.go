package voice

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	apperrors "github.com/echoform/echoform-backend/internal/pkg/errors"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
)

type SampleRepo interface {
	Create(dbc dbctx.Context, samples []*types.VoiceSample) ([]*types.VoiceSample, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.VoiceSample, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.VoiceSample, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.VoiceSample, error)
	CountByUser(dbc dbctx.Context, userID uuid.UUID) (int64, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsUnlessStatus applies updates only while the row is not in
	// one of the given statuses; reports whether a row changed.
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)

	// Delete refuses while any clone still references the sample.
	Delete(dbc dbctx.Context, id uuid.UUID) error

	ListNeedsReindex(dbc dbctx.Context, limit int) ([]*types.VoiceSample, error)
	ExistsByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

type sampleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSampleRepo(db *gorm.DB, baseLog *logger.Logger) SampleRepo {
	return &sampleRepo{
		db:  db,
		log: baseLog.With("repo", "VoiceSampleRepo"),
	}
}

func (r *sampleRepo) Create(dbc dbctx.Context, samples []*types.VoiceSample) ([]*types.VoiceSample, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(samples) == 0 {
		return []*types.VoiceSample{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&samples).Error; err != nil {
		return nil, err
	}
	return samples, nil
}

func (r *sampleRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.VoiceSample, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, apperrors.ErrNotFound
	}
	var s types.VoiceSample
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sampleRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.VoiceSample, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.VoiceSample
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

func (r *sampleRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.VoiceSample, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.VoiceSample
	if userID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sampleRepo) CountByUser(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return 0, nil
	}
	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.VoiceSample{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *sampleRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.VoiceSample{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *sampleRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
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
		Model(&types.VoiceSample{}).
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

func (r *sampleRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var links int64
		if err := txx.Model(&types.VoiceCloneSample{}).
			Where("voice_sample_id = ?", id).
			Count(&links).Error; err != nil {
			return err
		}
		if links > 0 {
			return apperrors.ErrConflict
		}
		return txx.Where("id = ?", id).Delete(&types.VoiceSample{}).Error
	})
}

func (r *sampleRepo) ListNeedsReindex(dbc dbctx.Context, limit int) ([]*types.VoiceSample, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.VoiceSample
	if err := transaction.WithContext(dbc.Ctx).
		Where("needs_reindex = ?", true).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sampleRepo) ExistsByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
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
		Model(&types.VoiceSample{}).
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
