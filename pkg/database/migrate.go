package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

// migrationLockName identifies the migration lock across replicas.
const migrationLockName = "reportcore-migration"

// MigrationLocker serializes schema migrations across processes.
type MigrationLocker interface {
	// WithLock runs fn while holding the migration lock.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker picks the lock for the database dialect: MySQL named
// locks, PostgreSQL advisory locks, or a lock table for everything else.
func NewMigrationLocker(db *gorm.DB) MigrationLocker {
	if db == nil {
		return noopMigrationLock{}
	}
	switch db.Dialector.Name() {
	case DriverMySQL:
		return &mysqlNamedLock{db: db, name: migrationLockName, timeout: 60 * time.Second}
	case DriverPostgres:
		return &pgAdvisoryLock{db: db, lockID: int64(crc32.ChecksumIEEE([]byte(migrationLockName)))}
	}
	return &tableMigrationLock{
		db:            db,
		retries:       30,
		retryInterval: time.Second,
		staleAfter:    5 * time.Minute,
	}
}

// Migrate runs AutoMigrate for models under the migration lock.
func Migrate(ctx context.Context, db *gorm.DB, models ...any) error {
	if len(models) == 0 {
		return nil
	}
	return NewMigrationLocker(db).WithLock(ctx, func() error {
		if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	})
}

type noopMigrationLock struct{}

func (noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

// mysqlNamedLock holds GET_LOCK on one pinned connection for the duration
// of fn. Named locks belong to a session, so acquire and release must share it.
type mysqlNamedLock struct {
	db      *gorm.DB
	name    string
	timeout time.Duration
}

func (l *mysqlNamedLock) WithLock(ctx context.Context, fn func() error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var got sql.NullInt64
		if err := conn.Raw("SELECT GET_LOCK(?, ?)", l.name, int(l.timeout.Seconds())).Scan(&got).Error; err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if !got.Valid || got.Int64 != 1 {
			return fmt.Errorf("acquire migration lock: timed out after %s", l.timeout)
		}
		defer conn.WithContext(context.WithoutCancel(ctx)).Exec("SELECT RELEASE_LOCK(?)", l.name)
		return fn()
	})
}

// pgAdvisoryLock uses a session advisory lock on one pinned connection.
type pgAdvisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", l.lockID).Error; err != nil {
			return fmt.Errorf("acquire migration advisory lock: %w", err)
		}
		defer conn.WithContext(context.WithoutCancel(ctx)).Exec("SELECT pg_advisory_unlock(?)", l.lockID)
		return fn()
	})
}

// migrationLockRecord is the lock row used by tableMigrationLock.
type migrationLockRecord struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (migrationLockRecord) TableName() string { return "migration_lock" }

// tableMigrationLock inserts a single lock row and relies on the primary key
// to reject a second holder. Rows older than staleAfter are from crashed
// holders and are removed before each attempt.
type tableMigrationLock struct {
	db            *gorm.DB
	retries       int
	retryInterval time.Duration
	staleAfter    time.Duration
}

func (l *tableMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	db := l.db.WithContext(ctx)
	if err := db.AutoMigrate(&migrationLockRecord{}); err != nil {
		return fmt.Errorf("create migration lock table: %w", err)
	}

	holder, _ := os.Hostname()
	if holder == "" {
		holder = "unknown"
	}
	row := migrationLockRecord{ID: "migration", LockedBy: fmt.Sprintf("%s/%d", holder, os.Getpid())}

	var lastErr error
	acquired := false
	for i := 0; i < l.retries; i++ {
		db.Where("id = ? AND locked_at < ?", row.ID, time.Now().Add(-l.staleAfter)).Delete(&migrationLockRecord{})

		row.LockedAt = time.Now()
		if lastErr = db.Create(&row).Error; lastErr == nil {
			acquired = true
			break
		}
		if i == l.retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
	if !acquired {
		if lastErr == nil {
			lastErr = errors.New("no attempts made")
		}
		return fmt.Errorf("acquire migration lock after %d attempts: %w", l.retries, lastErr)
	}

	defer l.db.WithContext(context.WithoutCancel(ctx)).Where("id = ?", row.ID).Delete(&migrationLockRecord{})
	return fn()
}
