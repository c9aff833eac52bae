package retrieval

import (
	"time"

	"gorm.io/datatypes"
)

// Chunk is the GORM model for one indexed slice of a knowledge-base document.
type Chunk struct {
	ID         int64                        `gorm:"primaryKey;column:chunk_id;autoIncrement"`
	KBSpace    string                       `gorm:"column:kb_space;type:varchar(64);not null;index:idx_rag_chunk_doc,priority:1"`
	DocumentID string                       `gorm:"column:document_id;type:varchar(128);not null;index:idx_rag_chunk_doc,priority:2"`
	ChunkIndex int                          `gorm:"column:chunk_index;not null"`
	Content    string                       `gorm:"column:content;type:text;not null"`
	Embedding  datatypes.JSONSlice[float32] `gorm:"column:embedding"`
	Embedder   string                       `gorm:"column:embedder;type:varchar(128)"`
	CreatedAt  time.Time                    `gorm:"column:created_at;not null"`
}

// TableName returns the GORM table name.
func (Chunk) TableName() string { return "rag_chunks" }

// Hit is one retrieved chunk with its score under the search mode used.
type Hit struct {
	KBSpace    string  `json:"kb_space"`
	DocumentID string  `json:"document_id"`
	ChunkID    int64   `json:"chunk_id"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}
