package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/echoform/echoform-backend/internal/data/repos/testutil"
	types "github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/dbctx"
)

// The guarded quota and storage updates must work on the SQLite dev driver
// too; its SQL has no ::date cast and spells variadic max MAX.
func sqliteDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// The model's uuid_generate_v4 default is Postgres-only; create the
	// table by hand and set ids in the tests.
	err = gdb.Exec(`CREATE TABLE "user" (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT,
		max_voice_samples INTEGER NOT NULL DEFAULT 10,
		max_daily_syntheses INTEGER NOT NULL DEFAULT 50,
		daily_synthesis_count INTEGER NOT NULL DEFAULT 0,
		daily_synthesis_date DATETIME,
		storage_used_bytes INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`).Error
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return gdb
}

func seedSQLiteUser(t *testing.T, gdb *gorm.DB, email string) *types.User {
	t.Helper()
	u := &types.User{
		ID:                uuid.New(),
		Email:             email,
		MaxVoiceSamples:   10,
		MaxDailySyntheses: 50,
	}
	if err := gdb.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestIncrementDailySynthesesSQLite(t *testing.T) {
	gdb := sqliteDB(t)
	repo := NewRepo(gdb, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	u := seedSQLiteUser(t, gdb, "quota@test.local")

	today := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := repo.IncrementDailySyntheses(dbc, u.ID, today); err != nil {
			t.Fatalf("IncrementDailySyntheses: %v", err)
		}
	}
	got, err := repo.GetByID(dbc, u.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.DailySynthesisCount != 3 {
		t.Fatalf("count: want=3 got=%d", got.DailySynthesisCount)
	}

	tomorrow := today.Add(24 * time.Hour)
	if err := repo.IncrementDailySyntheses(dbc, u.ID, tomorrow); err != nil {
		t.Fatalf("IncrementDailySyntheses next day: %v", err)
	}
	got, err = repo.GetByID(dbc, u.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.DailySynthesisCount != 1 {
		t.Fatalf("count after rollover: want=1 got=%d", got.DailySynthesisCount)
	}
}

func TestAddStorageUsedSQLite(t *testing.T) {
	gdb := sqliteDB(t)
	repo := NewRepo(gdb, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	u := seedSQLiteUser(t, gdb, "storage@test.local")

	if err := repo.AddStorageUsed(dbc, u.ID, 2048); err != nil {
		t.Fatalf("AddStorageUsed: %v", err)
	}
	if err := repo.AddStorageUsed(dbc, u.ID, -4096); err != nil {
		t.Fatalf("AddStorageUsed negative: %v", err)
	}
	got, err := repo.GetByID(dbc, u.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.StorageUsedBytes != 0 {
		t.Fatalf("storage: want=0 got=%d", got.StorageUsedBytes)
	}
}
