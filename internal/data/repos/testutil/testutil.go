package testutil

import (
	"os"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/storybook-backend/internal/data/db"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

var (
	logOnce sync.Once
	testLog *logger.Logger
	logErr  error

	dbOnce sync.Once
	shared *gorm.DB
	dbErr  error
)

// Logger returns the warn-level logger shared by the test binary.
func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() { testLog, logErr = logger.New("test") })
	if logErr != nil {
		tb.Fatalf("test logger: %v", logErr)
	}
	return testLog
}

// DB returns the migrated database shared by the test binary. It is Postgres
// when TEST_POSTGRES_DSN is set and in-memory SQLite otherwise. TEST_SQL_LOG=1
// logs every statement.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dbOnce.Do(func() { shared, dbErr = openTestDB(Logger(tb)) })
	if dbErr != nil {
		tb.Fatalf("test db: %v", dbErr)
	}
	return shared
}

func openTestDB(log *logger.Logger) (*gorm.DB, error) {
	level := gormlogger.Silent
	if os.Getenv("TEST_SQL_LOG") == "1" {
		level = gormlogger.Info
	}
	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   db.NewGormLogger(log, time.Second).LogMode(level),
	}

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	dialector := sqlite.Open("file::memory:?cache=shared")
	if dsn != "" {
		dialector = postgres.Open(dsn)
	}
	conn, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrateAll(conn); err != nil {
		return nil, err
	}
	// the partial indexes use Postgres syntax
	if dsn != "" {
		if err := db.EnsureIndexes(conn); err != nil {
			return nil, err
		}
	}
	return conn, nil
}

// Tx opens a transaction that is rolled back when the test ends.
func Tx(tb testing.TB, conn *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := conn.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() { _ = tx.Rollback().Error })
	return tx
}
