package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/platform/envutil"
)

// NewSQLiteService opens a local file-backed database for development.
// SQLite lacks uuid_generate_v4 and SKIP LOCKED, so it is only suitable
// for a single-process dev run; set DB_DRIVER=sqlite to select it.
func NewSQLiteService(logg *logger.Logger) (*PostgresService, error) {
	serviceLog := logg.With("service", "SQLiteService")

	path := envutil.String("SQLITE_PATH", "echoform.db")
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %q: %w", path, err)
	}

	serviceLog.Warn("Running on SQLite; single-process development mode only", "path", path)
	return &PostgresService{db: gdb, log: serviceLog}, nil
}
