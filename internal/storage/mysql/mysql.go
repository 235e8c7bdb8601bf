// Package mysql provides a storage backend on MySQL through gorm.
//
// Entries of one namespace live in the table "<store>_v<version>", created
// with AutoMigrate. Results are stored as a JSON text column.
package mysql

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jpalmerr/pingmatrix/internal/model"
	"github.com/jpalmerr/pingmatrix/internal/storage"
)

const batchSize = 100

// row is the table layout of one log entry.
type row struct {
	ID        string `gorm:"primaryKey;size:64"`
	Timestamp int64  `gorm:"index;not null"`
	Results   string `gorm:"type:mediumtext;not null"`
}

// Backend is a MySQL [storage.Backend].
type Backend struct {
	db    *gorm.DB
	cfg   storage.Config
	table string
}

var _ storage.Backend = (*Backend)(nil)

// New connects using dsn (go-sql-driver format, e.g.
// "user:pass@tcp(localhost:3306)/pingmatrix?parseTime=true") and migrates
// the namespace table.
func New(ctx context.Context, dsn string, cfg storage.Config) (*Backend, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}
	if dsn == "" {
		return nil, fmt.Errorf("mysql dsn is required")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open mysql database: %w", err)
	}

	b := &Backend{db: db, cfg: cfg, table: cfg.Table()}
	if err := db.WithContext(ctx).Table(b.table).AutoMigrate(&row{}); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return b, nil
}

// Open returns a [storage.RetentionStore] over a MySQL backend.
func Open(ctx context.Context, dsn string, cfg storage.Config) (*storage.RetentionStore, error) {
	b, err := New(ctx, dsn, cfg)
	if err != nil {
		return nil, &storage.Error{Op: "open", Backend: "mysql", Err: err}
	}
	return storage.NewRetentionStore(b, b.cfg.Policy()), nil
}

// Name implements [storage.Backend].
func (b *Backend) Name() string { return "mysql" }

// Table returns the namespace table name.
func (b *Backend) Table() string { return b.table }

// Close closes the underlying connection pool.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ReadAll returns every entry in the table, newest first.
func (b *Backend) ReadAll(ctx context.Context) ([]model.LogEntry, error) {
	var rows []row
	if err := b.db.WithContext(ctx).Table(b.table).Order("timestamp desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}

	entries := make([]model.LogEntry, len(rows))
	for i, r := range rows {
		entries[i] = model.LogEntry{ID: r.ID, Timestamp: r.Timestamp}
		if err := json.Unmarshal([]byte(r.Results), &entries[i].Results); err != nil {
			return nil, fmt.Errorf("failed to decode results of entry %s: %w", r.ID, err)
		}
	}
	return entries, nil
}

// WriteAll deletes every row and inserts entries in one transaction.
func (b *Backend) WriteAll(ctx context.Context, entries []model.LogEntry) error {
	rows := make([]row, len(entries))
	for i, e := range entries {
		data, err := json.Marshal(e.Results)
		if err != nil {
			return fmt.Errorf("failed to encode results of entry %s: %w", e.ID, err)
		}
		rows[i] = row{ID: e.ID, Timestamp: e.Timestamp, Results: string(data)}
	}

	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(b.table).Where("1 = 1").Delete(&row{}).Error; err != nil {
			return fmt.Errorf("failed to clear entries: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Table(b.table).CreateInBatches(rows, batchSize).Error; err != nil {
			return fmt.Errorf("failed to insert entries: %w", err)
		}
		return nil
	})
}
