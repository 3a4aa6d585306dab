package synth

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
)

type ClaimRepo interface {
	// Acquire inserts the claim if absent. Won reports whether this caller
	// now holds the claim; when false, existing carries the current holder.
	// A claim deleted between the insert attempt and the readback returns
	// won=false, existing=nil; callers retry.
	Acquire(dbc dbctx.Context, fingerprint string, jobID uuid.UUID) (won bool, existing *types.SynthesisClaim, err error)

	Get(dbc dbctx.Context, fingerprint string) (*types.SynthesisClaim, error)
	Release(dbc dbctx.Context, fingerprint string) error
	ReleaseByJob(dbc dbctx.Context, jobID uuid.UUID) error
}

type claimRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClaimRepo(db *gorm.DB, baseLog *logger.Logger) ClaimRepo {
	return &claimRepo{
		db:  db,
		log: baseLog.With("repo", "SynthesisClaimRepo"),
	}
}

func (r *claimRepo) Acquire(dbc dbctx.Context, fingerprint string, jobID uuid.UUID) (bool, *types.SynthesisClaim, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if fingerprint == "" || jobID == uuid.Nil {
		return false, nil, gorm.ErrInvalidData
	}

	claim := &types.SynthesisClaim{
		Fingerprint: fingerprint,
		JobID:       jobID,
	}
	res := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fingerprint"}},
			DoNothing: true,
		}).
		Create(claim)
	if res.Error != nil {
		return false, nil, res.Error
	}
	if res.RowsAffected > 0 {
		return true, claim, nil
	}

	existing, err := r.Get(dbc, fingerprint)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (r *claimRepo) Get(dbc dbctx.Context, fingerprint string) (*types.SynthesisClaim, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if fingerprint == "" {
		return nil, nil
	}
	var claim types.SynthesisClaim
	err := transaction.WithContext(dbc.Ctx).
		Where("fingerprint = ?", fingerprint).
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func (r *claimRepo) Release(dbc dbctx.Context, fingerprint string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if fingerprint == "" {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("fingerprint = ?", fingerprint).
		Delete(&types.SynthesisClaim{}).Error
}

func (r *claimRepo) ReleaseByJob(dbc dbctx.Context, jobID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("job_id = ?", jobID).
		Delete(&types.SynthesisClaim{}).Error
}
