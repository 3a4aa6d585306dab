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

type CloneRepo interface {
	// Create inserts the clone and its sample links in one transaction.
	Create(dbc dbctx.Context, clone *types.VoiceClone, sampleIDs []uuid.UUID) (*types.VoiceClone, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.VoiceClone, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.VoiceClone, error)
	SampleIDs(dbc dbctx.Context, cloneID uuid.UUID) ([]uuid.UUID, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)

	Delete(dbc dbctx.Context, id uuid.UUID) error
	CountClonesUsingSample(dbc dbctx.Context, sampleID uuid.UUID) (int64, error)
	ListNeedsReindex(dbc dbctx.Context, limit int) ([]*types.VoiceClone, error)
	ExistsByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

type cloneRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCloneRepo(db *gorm.DB, baseLog *logger.Logger) CloneRepo {
	return &cloneRepo{
		db:  db,
		log: baseLog.With("repo", "VoiceCloneRepo"),
	}
}

func (r *cloneRepo) Create(dbc dbctx.Context, clone *types.VoiceClone, sampleIDs []uuid.UUID) (*types.VoiceClone, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if clone == nil {
		return nil, apperrors.ErrInvalidArgument
	}
	if len(sampleIDs) == 0 {
		return nil, apperrors.ErrInvalidArgument
	}
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(clone).Error; err != nil {
			return err
		}
		links := make([]types.VoiceCloneSample, 0, len(sampleIDs))
		for _, sid := range sampleIDs {
			links = append(links, types.VoiceCloneSample{
				VoiceCloneID:  clone.ID,
				VoiceSampleID: sid,
			})
		}
		return txx.Create(&links).Error
	})
	if err != nil {
		return nil, err
	}
	return clone, nil
}

func (r *cloneRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.VoiceClone, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, apperrors.ErrNotFound
	}
	var c types.VoiceClone
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cloneRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.VoiceClone, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.VoiceClone
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

func (r *cloneRepo) SampleIDs(dbc dbctx.Context, cloneID uuid.UUID) ([]uuid.UUID, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []uuid.UUID
	if cloneID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.VoiceCloneSample{}).
		Where("voice_clone_id = ?", cloneID).
		Order("created_at ASC").
		Pluck("voice_sample_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *cloneRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.VoiceClone{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *cloneRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
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
		Model(&types.VoiceClone{}).
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

func (r *cloneRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("voice_clone_id = ?", id).
			Delete(&types.VoiceCloneSample{}).Error; err != nil {
			return err
		}
		return txx.Where("id = ?", id).Delete(&types.VoiceClone{}).Error
	})
}

func (r *cloneRepo) CountClonesUsingSample(dbc dbctx.Context, sampleID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if sampleID == uuid.Nil {
		return 0, nil
	}
	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.VoiceCloneSample{}).
		Where("voice_sample_id = ?", sampleID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *cloneRepo) ListNeedsReindex(dbc dbctx.Context, limit int) ([]*types.VoiceClone, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.VoiceClone
	if err := transaction.WithContext(dbc.Ctx).
		Where("needs_reindex = ?", true).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *cloneRepo) ExistsByIDs(dbc dbctx.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
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
		Model(&types.VoiceClone{}).
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
