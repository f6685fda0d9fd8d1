package testutil

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/yungbote/tourforge-backend/internal/data/db"
	"github.com/yungbote/tourforge-backend/internal/platform/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error

	sqliteSeq atomic.Int64
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB opens a migrated database. TEST_POSTGRES_DSN selects Postgres; otherwise
// each call gets its own in-memory SQLite database.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	}

	var (
		conn *gorm.DB
		err  error
	)
	if dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN")); dsn != "" {
		conn, err = gorm.Open(postgres.Open(dsn), cfg)
	} else {
		name := fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared", sqliteSeq.Add(1))
		conn, err = gorm.Open(sqlite.Open(name), cfg)
	}
	if err != nil {
		tb.Fatalf("failed to open test db: %v", err)
	}
	if conn.Dialector.Name() == "sqlite" {
		// A single connection keeps the shared in-memory database alive
		// and serializes writers.
		sqlDB, err := conn.DB()
		if err != nil {
			tb.Fatalf("sql db: %v", err)
		}
		sqlDB.SetMaxOpenConns(1)
		tb.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := db.AutoMigrateAll(conn); err != nil {
		tb.Fatalf("failed to migrate test db: %v", err)
	}
	return conn
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
