package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"gamedeals/internal/models"
	"gamedeals/internal/reconcile"
)

// fallbackTitleLength pads the menu when a collection is empty.
const fallbackTitleLength = 10

// Store is the SQLite record store. Each collection owns one table
// sharing the deal schema; a small collections table carries the
// per-collection refresh timestamp.
type Store struct {
	db *gorm.DB
}

var _ reconcile.DealStore = (*Store)(nil)

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %s: %w", path, err)
	}
	// One writer, run-to-completion usage; a single connection also
	// keeps in-memory databases coherent.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// New wraps an existing gorm handle, used for transactional views.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnsureCollection creates the collection's table and the shared
// metadata table if absent. Idempotent.
func (s *Store) EnsureCollection(ctx context.Context, c models.Collection) error {
	// Collection names come from a fixed enum, never from user input.
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		title TEXT NOT NULL,
		full_price NUMERIC,
		sale_price NUMERIC,
		cover_image TEXT,
		url TEXT NOT NULL UNIQUE,
		external_id TEXT UNIQUE,
		last_updated DATETIME,
		title_length INTEGER
	)`, c.TableName())
	if err := s.db.WithContext(ctx).Exec(ddl).Error; err != nil {
		return fmt.Errorf("create table %s: %w", c.TableName(), err)
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&models.CollectionMeta{}); err != nil {
		return fmt.Errorf("migrate collections metadata: %w", err)
	}
	return nil
}

// Scan returns all rows ordered by ascending sale price, cheapest
// first. The menu relies on this ordering.
func (s *Store) Scan(ctx context.Context, c models.Collection) ([]models.Deal, error) {
	var deals []models.Deal
	err := s.db.WithContext(ctx).
		Table(c.TableName()).
		Order("sale_price ASC").
		Find(&deals).Error
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", c, err)
	}
	return deals, nil
}

// Find is a point lookup by identity. Returns (nil, nil) when absent.
func (s *Store) Find(ctx context.Context, c models.Collection, key models.Identity) (*models.Deal, error) {
	var deal models.Deal
	err := s.db.WithContext(ctx).
		Table(c.TableName()).
		Where(identityColumn(key.Kind)+" = ?", key.Value).
		First(&deal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", c, err)
	}
	return &deal, nil
}

// Insert adds a new row, recomputing the cached title length and
// stamping last_updated. Unique collisions surface as
// models.ErrDealExists.
func (s *Store) Insert(ctx context.Context, c models.Collection, deal models.Deal) error {
	deal.TitleLength = len(deal.Title)
	if deal.LastUpdated.IsZero() {
		deal.LastUpdated = time.Now()
	}
	err := s.db.WithContext(ctx).Table(c.TableName()).Create(&deal).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", models.ErrDealExists, deal.Title)
	}
	if err != nil {
		return fmt.Errorf("insert into %s: %w", c, err)
	}
	return nil
}

// UpdatePayload mutates the mutable fields of the row matching key.
// Titles and identity fields stay frozen for the lifetime of a row.
func (s *Store) UpdatePayload(ctx context.Context, c models.Collection, key models.Identity, p models.Payload) error {
	stamp := p.LastUpdated
	if stamp.IsZero() {
		stamp = time.Now()
	}
	res := s.db.WithContext(ctx).
		Table(c.TableName()).
		Where(identityColumn(key.Kind)+" = ?", key.Value).
		Updates(map[string]interface{}{
			"full_price":   p.FullPrice,
			"sale_price":   p.SalePrice,
			"cover_image":  p.CoverImage,
			"url":          p.URL,
			"last_updated": stamp,
		})
	if res.Error != nil {
		return fmt.Errorf("update in %s: %w", c, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrDealNotFound, key.Value)
	}
	return nil
}

// Delete removes the row matching key. Deleting an absent row is a
// no-op, not an error.
func (s *Store) Delete(ctx context.Context, c models.Collection, key models.Identity) error {
	err := s.db.WithContext(ctx).
		Table(c.TableName()).
		Where(identityColumn(key.Kind)+" = ?", key.Value).
		Delete(&models.Deal{}).Error
	if err != nil {
		return fmt.Errorf("delete from %s: %w", c, err)
	}
	return nil
}

// LongestTitleLength returns the widest cached title length, used by
// the menu for display padding.
func (s *Store) LongestTitleLength(ctx context.Context, c models.Collection) (int, error) {
	var longest sql.NullInt64
	row := s.db.WithContext(ctx).
		Table(c.TableName()).
		Select("MAX(title_length)").
		Row()
	if err := row.Scan(&longest); err != nil {
		return 0, fmt.Errorf("longest title in %s: %w", c, err)
	}
	if !longest.Valid {
		return fallbackTitleLength, nil
	}
	return int(longest.Int64), nil
}

// LastRefreshed reports the collection-level refresh timestamp; the
// zero time means the collection has never been refreshed.
func (s *Store) LastRefreshed(ctx context.Context, c models.Collection) (time.Time, error) {
	var meta models.CollectionMeta
	err := s.db.WithContext(ctx).
		Where("name = ?", string(c)).
		First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last refreshed of %s: %w", c, err)
	}
	return meta.LastRefreshed, nil
}

// TouchRefreshed upserts the collection-level refresh timestamp.
func (s *Store) TouchRefreshed(ctx context.Context, c models.Collection, t time.Time) error {
	meta := models.CollectionMeta{Name: string(c), LastRefreshed: t}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_refreshed"}),
	}).Create(&meta).Error
	if err != nil {
		return fmt.Errorf("touch refreshed %s: %w", c, err)
	}
	return nil
}

// InTx runs fn against a transactional view of the store. Any error
// rolls the whole batch back, so a half-applied merge never persists.
func (s *Store) InTx(ctx context.Context, fn func(tx reconcile.DealStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

func identityColumn(kind models.KeyKind) string {
	switch kind {
	case models.KeyURL:
		return "url"
	case models.KeyTitle:
		return "title"
	default:
		return "external_id"
	}
}
