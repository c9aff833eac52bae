package source

import (
	"gorm.io/datatypes"
)

const (
	SnapshotTable      = "src_amazon_product_snapshots"
	ReviewTable        = "src_amazon_reviews"
	KeywordMetricTable = "src_amazon_keyword_metrics"
)

// Snapshot is one crawled product listing. Price, rating and review count are
// nullable upstream and stay pointers so "missing" is not read as zero.
type Snapshot struct {
	ID           int64             `gorm:"primaryKey;column:id;autoIncrement"`
	CrawlBatchNo int64             `gorm:"column:crawl_batch_no;not null;uniqueIndex:uq_amz_ps_bsa,priority:1;index:ix_amz_ps_bs,priority:1"`
	Site         string            `gorm:"column:site;type:varchar(8);not null;uniqueIndex:uq_amz_ps_bsa,priority:2;index:ix_amz_ps_bs,priority:2"`
	ASIN         string            `gorm:"column:asin;type:varchar(32);not null;uniqueIndex:uq_amz_ps_bsa,priority:3;index:ix_amz_ps_asin"`
	Title        string            `gorm:"column:title;type:varchar(512)"`
	Brand        string            `gorm:"column:brand;type:varchar(128)"`
	Category     string            `gorm:"column:category;type:varchar(255)"`
	Price        *float64          `gorm:"column:price;type:decimal(20,4)"`
	Currency     string            `gorm:"column:currency;type:varchar(8)"`
	Rating       *float64          `gorm:"column:rating"`
	ReviewCount  *int64            `gorm:"column:review_count"`
	BulletPoints string            `gorm:"column:bullet_points;type:text"`
	Description  string            `gorm:"column:description;type:text"`
	Attributes   datatypes.JSONMap `gorm:"column:attributes"`
	URL          string            `gorm:"column:url;type:varchar(1024)"`
	CrawlTime    int64             `gorm:"column:crawl_time"`
}

// TableName returns the GORM table name.
func (Snapshot) TableName() string { return SnapshotTable }

// Review is one crawled customer review.
type Review struct {
	ID           int64          `gorm:"primaryKey;column:id;autoIncrement"`
	CrawlBatchNo int64          `gorm:"column:crawl_batch_no;not null;index:ix_amz_rv_bs,priority:1"`
	Site         string         `gorm:"column:site;type:varchar(8);not null;index:ix_amz_rv_bs,priority:2"`
	ASIN         string         `gorm:"column:asin;type:varchar(32);not null;index:ix_amz_rv_asin"`
	ReviewID     string         `gorm:"column:review_id;type:varchar(64);index:ix_amz_rv_rid"`
	Rating       float64        `gorm:"column:rating"`
	Title        string         `gorm:"column:title;type:varchar(512)"`
	Content      string         `gorm:"column:content;type:text"`
	Author       string         `gorm:"column:author;type:varchar(255)"`
	Verified     int            `gorm:"column:verified"`
	HelpfulCount int64          `gorm:"column:helpful_count"`
	ReviewTime   int64          `gorm:"column:review_time"`
	Raw          datatypes.JSON `gorm:"column:raw"`
}

// TableName returns the GORM table name.
func (Review) TableName() string { return ReviewTable }

// KeywordMetric is one keyword's search metrics for a batch.
type KeywordMetric struct {
	ID           int64          `gorm:"primaryKey;column:id;autoIncrement"`
	CrawlBatchNo int64          `gorm:"column:crawl_batch_no;not null;uniqueIndex:uq_amz_kw_bsk,priority:1;index:ix_amz_kw_bs,priority:1"`
	Site         string         `gorm:"column:site;type:varchar(8);not null;uniqueIndex:uq_amz_kw_bsk,priority:2;index:ix_amz_kw_bs,priority:2"`
	Keyword      string         `gorm:"column:keyword;type:varchar(255);not null;uniqueIndex:uq_amz_kw_bsk,priority:3;index:ix_amz_kw_kw"`
	SearchVolume float64        `gorm:"column:search_volume"`
	CPC          float64        `gorm:"column:cpc"`
	Competition  float64        `gorm:"column:competition"`
	Raw          datatypes.JSON `gorm:"column:raw"`
}

// TableName returns the GORM table name.
func (KeywordMetric) TableName() string { return KeywordMetricTable }

// Models lists the source tables for AutoMigrate in local environments. In
// production the crawler owns these tables.
func Models() []any {
	return []any{&Snapshot{}, &Review{}, &KeywordMetric{}}
}
