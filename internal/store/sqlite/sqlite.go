// Package sqlite is the reference Index Store implementation: a
// relational store (the Store holds no mutex of its own; concurrent access
// goes through the database/sql connection pool and SQLite's locking)
// over three tables — content, postings, fingerprint_meta — built on
// gorm+glebarez/sqlite, with connection pool tuning and a
// CreateInBatches insert path for posting rows.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/arcspan/fingermatch/internal/model"
	"github.com/arcspan/fingermatch/internal/store"
	applog "github.com/arcspan/fingermatch/pkg/logger"
	"github.com/arcspan/fingermatch/pkg/utils"
	"github.com/dustin/go-humanize"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const batchSize = 500

// ingestLogEvery controls how often PutItem logs a running item-count
// milestone during a bulk ingest, rather than on every single insert.
const ingestLogEvery = 100

// contentRow is the "content" table: metadata keyed by content_id.
type contentRow struct {
	ContentID  string `gorm:"primaryKey;type:varchar(128)"`
	Title      string
	Source     string
	DurationMs int64
	CreatedAt  int64
}

func (contentRow) TableName() string { return "content" }

// postingRow is the "postings" table: one row per (content_id, hash_value,
// position), indexed on hash_value and on content_id.
type postingRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	ContentID string `gorm:"type:varchar(128);index:idx_posting_content"`
	HashValue uint32 `gorm:"index:idx_posting_hash"`
	Position  int
}

func (postingRow) TableName() string { return "postings" }

// fingerprintMetaRow is the "fingerprint_meta" table: digest and hash count
// per item, so the engine's scoring denominator doesn't require
// re-reading every posting row.
type fingerprintMetaRow struct {
	ContentID string `gorm:"primaryKey;type:varchar(128)"`
	Digest    string
	NumHashes int
}

func (fingerprintMetaRow) TableName() string { return "fingerprint_meta" }

type Store struct {
	db          *gorm.DB
	log         applog.Interface
	ingestCount atomic.Int64
}

// Open opens (creating if necessary) a SQLite-backed Store at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := utils.MakeDir(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&contentRow{}, &postingRow{}, &fingerprintMetaRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Store{db: db, log: applog.GetLogger().Named("store.sqlite")}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) PutItem(ctx context.Context, fp model.Fingerprint, meta model.ContentMetadata) (store.PutOutcome, error) {
	var existing contentRow
	err := s.db.WithContext(ctx).Where("content_id = ?", meta.ContentID).First(&existing).Error
	if err == nil {
		return store.AlreadyExists, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("checking existing content: %w", err)
	}

	outcome := store.Inserted
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := contentRow{
			ContentID:  meta.ContentID,
			Title:      meta.Title,
			Source:     meta.Source,
			DurationMs: meta.DurationMs,
			CreatedAt:  meta.CreatedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				outcome = store.AlreadyExists
				return nil
			}
			return fmt.Errorf("inserting content: %w", err)
		}

		postings := make([]postingRow, 0, len(fp.Hashes))
		for pos, h := range fp.Hashes {
			postings = append(postings, postingRow{ContentID: meta.ContentID, HashValue: h, Position: pos})
		}
		for start := 0; start < len(postings); start += batchSize {
			end := start + batchSize
			if end > len(postings) {
				end = len(postings)
			}
			if err := tx.CreateInBatches(postings[start:end], batchSize).Error; err != nil {
				return fmt.Errorf("batch insert postings: %w", err)
			}
		}

		var digest strings.Builder
		for _, h := range fp.Hashes {
			fmt.Fprintf(&digest, "%08x", h)
		}
		metaRow := fingerprintMetaRow{
			ContentID: meta.ContentID,
			Digest:    digest.String(),
			NumHashes: len(fp.Hashes),
		}
		if err := tx.Create(&metaRow).Error; err != nil {
			return fmt.Errorf("inserting fingerprint_meta: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}

	if outcome == store.Inserted {
		count := s.ingestCount.Add(1)
		if count%ingestLogEvery == 0 {
			s.log.Infof("ingested %s items so far", humanize.Comma(count))
		}
	}
	return outcome, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return msg != "" && (strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed"))
}

func (s *Store) PostingsFor(ctx context.Context, hash uint32, limit int) ([]model.PostingMatch, error) {
	type row struct {
		ContentID  string
		MatchCount int
	}
	var rows []row

	q := s.db.WithContext(ctx).Model(&postingRow{}).
		Select("content_id, COUNT(*) as match_count").
		Where("hash_value = ?", hash).
		Group("content_id").
		Order("match_count DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying postings for hash %d: %w", hash, err)
	}

	out := make([]model.PostingMatch, len(rows))
	for i, r := range rows {
		out[i] = model.PostingMatch{ContentID: r.ContentID, MatchCount: r.MatchCount}
	}
	return out, nil
}

func (s *Store) GetItem(ctx context.Context, contentID string) (model.ContentMetadata, error) {
	var row contentRow
	err := s.db.WithContext(ctx).Where("content_id = ?", contentID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ContentMetadata{}, store.ErrNotFound
	}
	if err != nil {
		return model.ContentMetadata{}, fmt.Errorf("querying content %s: %w", contentID, err)
	}
	return model.ContentMetadata{
		ContentID:  row.ContentID,
		Title:      row.Title,
		Source:     row.Source,
		DurationMs: row.DurationMs,
		CreatedAt:  row.CreatedAt,
	}, nil
}

func (s *Store) DeleteItem(ctx context.Context, contentID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("content_id = ?", contentID).Delete(&contentRow{})
		if res.Error != nil {
			return fmt.Errorf("deleting content %s: %w", contentID, res.Error)
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		if err := tx.Where("content_id = ?", contentID).Delete(&postingRow{}).Error; err != nil {
			return fmt.Errorf("deleting postings for %s: %w", contentID, err)
		}
		if err := tx.Where("content_id = ?", contentID).Delete(&fingerprintMetaRow{}).Error; err != nil {
			return fmt.Errorf("deleting fingerprint_meta for %s: %w", contentID, err)
		}
		return nil
	})
}

func (s *Store) StoredHashCount(ctx context.Context, contentID string) (int, error) {
	var row fingerprintMetaRow
	err := s.db.WithContext(ctx).Where("content_id = ?", contentID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying fingerprint_meta %s: %w", contentID, err)
	}
	return row.NumHashes, nil
}

func (s *Store) Stats(ctx context.Context) (model.StoreStats, error) {
	var itemCount, postingCount int64
	if err := s.db.WithContext(ctx).Model(&contentRow{}).Count(&itemCount).Error; err != nil {
		return model.StoreStats{}, fmt.Errorf("counting content rows: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&postingRow{}).Count(&postingCount).Error; err != nil {
		return model.StoreStats{}, fmt.Errorf("counting posting rows: %w", err)
	}

	var pageCount, pageSize int64
	s.db.WithContext(ctx).Raw("PRAGMA page_count").Scan(&pageCount)
	s.db.WithContext(ctx).Raw("PRAGMA page_size").Scan(&pageSize)

	return model.StoreStats{
		ItemCount:    itemCount,
		PostingCount: postingCount,
		StorageBytes: pageCount * pageSize,
	}, nil
}
