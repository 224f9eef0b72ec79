package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/odin-market/progression/internal/progression"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// profileRecord is one profile row. The profile itself is kept as a JSON
// document; the columns next to it exist for lookups, ordering and the
// version check.
type profileRecord struct {
	Seq             int64     `gorm:"primaryKey;autoIncrement"`
	RowID           string    `gorm:"size:36;uniqueIndex;not null"`
	ProfileID       string    `gorm:"size:191;not null;uniqueIndex:idx_profile_class"`
	UserClass       string    `gorm:"size:32;not null;uniqueIndex:idx_profile_class;index"`
	Version         int64     `gorm:"not null"`
	XPTotal         int64     `gorm:"not null;index"`
	TotalSales      int64     `gorm:"not null;index"`
	TotalRevenue    float64   `gorm:"not null;index"`
	LeaderboardRank int       `gorm:"not null;default:0"`
	CategoryRank    int       `gorm:"not null;default:0"`
	Document        string    `gorm:"type:text;not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (profileRecord) TableName() string { return "progression_profiles" }

var metricColumns = map[progression.Metric]string{
	progression.MetricXP:      "xp_total",
	progression.MetricSales:   "total_sales",
	progression.MetricRevenue: "total_revenue",
}

// GormStore keeps profiles in a SQL database through gorm. Writes are
// compare-and-swap on the version column.
type GormStore struct {
	db *gorm.DB
	// snapshot, when set, is used for leaderboard reads so that the count
	// and the page come from one consistent view.
	snapshot *sql.TxOptions
}

// NewGormStore wraps an open database. Call Migrate before first use.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// OpenSQLite opens (or creates) a SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*GormStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// One connection serializes writers and keeps :memory: databases alive.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("executing %s: %w", pragma, err)
		}
	}

	s := NewGormStore(db)
	if err := s.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects to PostgreSQL using dsn.
func OpenPostgres(ctx context.Context, dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	s := NewGormStore(db)
	s.snapshot = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	if err := s.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates the profiles table.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&profileRecord{}); err != nil {
		return fmt.Errorf("migrating profiles table: %w", err)
	}
	return nil
}

func (s *GormStore) Load(ctx context.Context, key progression.ProfileKey) (*progression.Profile, error) {
	var rec profileRecord
	err := s.db.WithContext(ctx).
		Where("profile_id = ? AND user_class = ?", key.ID, string(key.Class)).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", progression.ErrProfileNotFound, key)
		}
		return nil, fmt.Errorf("loading profile %s: %w", key, err)
	}
	return decodeRecord(&rec)
}

func (s *GormStore) Save(ctx context.Context, p *progression.Profile) error {
	key := p.Key()
	next := p.Version + 1

	doc := p.Clone()
	doc.Version = next
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding profile %s: %w", key, err)
	}

	if p.Version == 0 {
		rec := profileRecord{
			RowID:        uuid.NewString(),
			ProfileID:    key.ID,
			UserClass:    string(key.Class),
			Version:      next,
			XPTotal:      clampInt64(p.XP.Total),
			TotalSales:   clampInt64(p.Statistics.TotalSales),
			TotalRevenue: p.Statistics.TotalRevenue,
			Document:     string(data),
			CreatedAt:    p.CreatedAt.UTC(),
			UpdatedAt:    p.UpdatedAt.UTC(),
		}
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var n int64
			if err := tx.Model(&profileRecord{}).
				Where("profile_id = ? AND user_class = ?", key.ID, string(key.Class)).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return progression.ErrVersionConflict
			}
			return tx.Create(&rec).Error
		})
		switch {
		case err == nil:
		case errors.Is(err, progression.ErrVersionConflict), errors.Is(err, gorm.ErrDuplicatedKey):
			return fmt.Errorf("%w: %s already exists", progression.ErrVersionConflict, key)
		default:
			return fmt.Errorf("inserting profile %s: %w", key, err)
		}
		p.Version = next
		return nil
	}

	// Rank columns are left alone; they belong to UpdateRanks.
	res := s.db.WithContext(ctx).Model(&profileRecord{}).
		Where("profile_id = ? AND user_class = ? AND version = ?", key.ID, string(key.Class), p.Version).
		UpdateColumns(map[string]any{
			"version":       next,
			"xp_total":      clampInt64(p.XP.Total),
			"total_sales":   clampInt64(p.Statistics.TotalSales),
			"total_revenue": p.Statistics.TotalRevenue,
			"document":      string(data),
			"updated_at":    p.UpdatedAt.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("updating profile %s: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s is no longer at version %d", progression.ErrVersionConflict, key, p.Version)
	}
	p.Version = next
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Ranked reads the total and the requested page in one transaction.
func (s *GormStore) Ranked(ctx context.Context, metric progression.Metric, offset, limit int) ([]progression.Profile, int, error) {
	col, ok := metricColumns[metric]
	if !ok {
		col = metricColumns[progression.MetricXP]
	}

	var (
		total int64
		recs  []profileRecord
	)
	var opts []*sql.TxOptions
	if s.snapshot != nil {
		opts = append(opts, s.snapshot)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&profileRecord{}).Count(&total).Error; err != nil {
			return err
		}
		q := tx.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: true}).Order("seq")
		if offset > 0 {
			q = q.Offset(offset)
			if limit <= 0 {
				limit = math.MaxInt32
			}
		}
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Find(&recs).Error
	}, opts...)
	if err != nil {
		return nil, 0, fmt.Errorf("ranking profiles by %s: %w", metric, err)
	}

	out := make([]progression.Profile, 0, len(recs))
	for i := range recs {
		p, err := decodeRecord(&recs[i])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, int(total), nil
}

// UpdateRanks writes the rank columns only; versions and documents are
// untouched so in-flight commits do not conflict with a refresh.
func (s *GormStore) UpdateRanks(ctx context.Context, updates []progression.RankUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			err := tx.Model(&profileRecord{}).
				Where("profile_id = ? AND user_class = ?", u.Key.ID, string(u.Key.Class)).
				UpdateColumns(map[string]any{
					"leaderboard_rank": u.Global,
					"category_rank":    u.Category,
				}).Error
			if err != nil {
				return fmt.Errorf("updating rank of %s: %w", u.Key, err)
			}
		}
		return nil
	})
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func decodeRecord(rec *profileRecord) (*progression.Profile, error) {
	var p progression.Profile
	if err := json.Unmarshal([]byte(rec.Document), &p); err != nil {
		return nil, fmt.Errorf("decoding profile %s:%s: %w", rec.UserClass, rec.ProfileID, err)
	}
	p.Version = rec.Version
	p.LeaderboardRank = rec.LeaderboardRank
	p.CategoryRank = rec.CategoryRank
	return &p, nil
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
