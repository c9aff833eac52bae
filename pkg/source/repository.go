package source

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

const (
	DefaultLimit = 200
	MaxLimit     = 5000
)

// Query selects rows of one crawl batch on one site. Zero-valued filters are
// ignored.
type Query struct {
	BatchNo int64
	Site    string
	Limit   int
	Offset  int

	ASINs            []string
	Keywords         []string
	CategoryContains string
	PriceMin         *float64
	PriceMax         *float64
}

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultLimit
	case q.Limit > MaxLimit:
		return MaxLimit
	}
	return q.Limit
}

// Repository reads crawled source rows. It never writes and is safe for
// concurrent use.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) scoped(ctx context.Context, model any, q Query) *gorm.DB {
	return r.db.WithContext(ctx).Model(model).
		Where("crawl_batch_no = ? AND site = ?", q.BatchNo, q.Site)
}

func page(tx *gorm.DB, q Query) *gorm.DB {
	tx = tx.Order("id DESC").Limit(q.limit())
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	return tx
}

// ListSnapshots returns product snapshots, newest id first.
func (r *Repository) ListSnapshots(ctx context.Context, q Query) ([]Snapshot, error) {
	tx := r.scoped(ctx, &Snapshot{}, q)
	if len(q.ASINs) > 0 {
		tx = tx.Where("asin IN ?", q.ASINs)
	}
	if c := strings.TrimSpace(q.CategoryContains); c != "" {
		tx = tx.Where("category LIKE ?", "%"+c+"%")
	}
	if q.PriceMin != nil {
		tx = tx.Where("price >= ?", *q.PriceMin)
	}
	if q.PriceMax != nil {
		tx = tx.Where("price <= ?", *q.PriceMax)
	}

	var rows []Snapshot
	if err := page(tx, q).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return rows, nil
}

// ListReviews returns reviews, newest id first.
func (r *Repository) ListReviews(ctx context.Context, q Query) ([]Review, error) {
	tx := r.scoped(ctx, &Review{}, q)
	if len(q.ASINs) > 0 {
		tx = tx.Where("asin IN ?", q.ASINs)
	}

	var rows []Review
	if err := page(tx, q).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return rows, nil
}

// ListKeywordMetrics returns keyword metrics, newest id first.
func (r *Repository) ListKeywordMetrics(ctx context.Context, q Query) ([]KeywordMetric, error) {
	tx := r.scoped(ctx, &KeywordMetric{}, q)
	if len(q.Keywords) > 0 {
		tx = tx.Where("keyword IN ?", q.Keywords)
	}

	var rows []KeywordMetric
	if err := page(tx, q).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list keyword metrics: %w", err)
	}
	return rows, nil
}
