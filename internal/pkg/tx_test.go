package pkg

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type txRow struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func newTxTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	// One connection so every statement sees the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&txRow{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func countRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&txRow{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestWithTx_CommitOnSuccess(t *testing.T) {
	db := newTxTestDB(t)

	err := WithTx(context.Background(), db, func(tx *gorm.DB) error {
		return tx.Create(&txRow{Name: "a"}).Error
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
	if n := countRows(t, db); n != 1 {
		t.Errorf("rows = %d; want 1", n)
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := newTxTestDB(t)
	boom := errors.New("boom")

	err := WithTx(context.Background(), db, func(tx *gorm.DB) error {
		if err := tx.Create(&txRow{Name: "a"}).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v; want boom", err)
	}
	if n := countRows(t, db); n != 0 {
		t.Errorf("rows = %d; want 0 after rollback", n)
	}
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := newTxTestDB(t)

	func() {
		defer func() {
			if r := recover(); r != "kaboom" {
				t.Errorf("recovered %v; want kaboom", r)
			}
		}()
		_ = WithTx(context.Background(), db, func(tx *gorm.DB) error {
			tx.Create(&txRow{Name: "a"})
			panic("kaboom")
		})
	}()

	if n := countRows(t, db); n != 0 {
		t.Errorf("rows = %d; want 0 after panic", n)
	}
}

func TestWithTx_CanceledContext(t *testing.T) {
	db := newTxTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := WithTx(ctx, db, func(tx *gorm.DB) error {
		called = true
		return nil
	})
	if err == nil {
		t.Error("WithTx() on canceled context should fail")
	}
	if called {
		t.Error("fn must not run when the transaction cannot begin")
	}
}
