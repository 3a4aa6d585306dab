package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
	apperrors "github.com/echoform/echoform-backend/internal/pkg/errors"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
)

type Repo interface {
	Create(dbc dbctx.Context, users []*types.User) ([]*types.User, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.User, error)
	GetByEmail(dbc dbctx.Context, email string) (*types.User, error)

	// IncrementDailySyntheses bumps the daily counter, rolling it over when
	// the stored date is not today. Runs as a single guarded UPDATE so two
	// concurrent completions never lose an increment.
	IncrementDailySyntheses(dbc dbctx.Context, id uuid.UUID, day time.Time) error

	// AddStorageUsed adjusts the storage accounting; delta may be negative.
	AddStorageUsed(dbc dbctx.Context, id uuid.UUID, delta int64) error
}

type repo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepo(db *gorm.DB, baseLog *logger.Logger) Repo {
	return &repo{
		db:  db,
		log: baseLog.With("repo", "UserRepo"),
	}
}

func (r *repo) Create(dbc dbctx.Context, users []*types.User) ([]*types.User, error) {
	if len(users) == 0 {
		return []*types.User{}, nil
	}
	if err := dbc.Session(r.db).Create(&users).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("email already registered: %w", apperrors.ErrConflict)
		}
		return nil, err
	}
	return users, nil
}

func (r *repo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.User, error) {
	if id == uuid.Nil {
		return nil, apperrors.ErrNotFound
	}
	var u types.User
	err := dbc.Session(r.db).
		Where("id = ?", id).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repo) GetByEmail(dbc dbctx.Context, email string) (*types.User, error) {
	if email == "" {
		return nil, apperrors.ErrNotFound
	}
	var u types.User
	err := dbc.Session(r.db).
		Where("email = ?", email).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repo) IncrementDailySyntheses(dbc dbctx.Context, id uuid.UUID, day time.Time) error {
	if id == uuid.Nil {
		return nil
	}
	date := day.UTC().Truncate(24 * time.Hour)
	rollover := gorm.Expr(
		`CASE WHEN daily_synthesis_date = ?::date THEN daily_synthesis_count + 1 ELSE 1 END`,
		date,
	)
	if r.db.Dialector.Name() != "postgres" {
		rollover = gorm.Expr(
			`CASE WHEN date(daily_synthesis_date) = date(?) THEN daily_synthesis_count + 1 ELSE 1 END`,
			date,
		)
	}
	return dbc.Session(r.db).
		Model(&types.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"daily_synthesis_count": rollover,
			"daily_synthesis_date":  date,
			"updated_at":            time.Now(),
		}).Error
}

func (r *repo) AddStorageUsed(dbc dbctx.Context, id uuid.UUID, delta int64) error {
	if id == uuid.Nil || delta == 0 {
		return nil
	}
	// SQLite spells the variadic maximum MAX; GREATEST is Postgres.
	clamp := gorm.Expr(`GREATEST(storage_used_bytes + ?, 0)`, delta)
	if r.db.Dialector.Name() != "postgres" {
		clamp = gorm.Expr(`MAX(storage_used_bytes + ?, 0)`, delta)
	}
	return dbc.Session(r.db).
		Model(&types.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"storage_used_bytes": clamp,
			"updated_at":         time.Now(),
		}).Error
}
