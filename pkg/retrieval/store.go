package retrieval

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// ChunkStore provides database operations for knowledge-base chunks.
type ChunkStore struct {
	db *gorm.DB
}

// NewChunkStore creates a new ChunkStore.
func NewChunkStore(db *gorm.DB) *ChunkStore {
	return &ChunkStore{db: db}
}

// AutoMigrate creates or updates the rag_chunks table.
func (s *ChunkStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Chunk{})
}

// ReplaceDocument deletes the existing chunks of a document and inserts the
// given ones in a single transaction.
func (s *ChunkStore) ReplaceDocument(ctx context.Context, kbSpace, documentID string, chunks []Chunk) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("kb_space = ? AND document_id = ?", kbSpace, documentID).Delete(&Chunk{}).Error; err != nil {
			return fmt.Errorf("delete document chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(chunks, 100).Error; err != nil {
			return fmt.Errorf("insert document chunks: %w", err)
		}
		return nil
	})
}

// DeleteDocument removes all chunks of a document and returns how many were
// deleted.
func (s *ChunkStore) DeleteDocument(ctx context.Context, kbSpace, documentID string) (int64, error) {
	result := s.db.WithContext(ctx).Where("kb_space = ? AND document_id = ?", kbSpace, documentID).Delete(&Chunk{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete document chunks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListBySpace returns every chunk of a knowledge-base space ordered by id.
func (s *ChunkStore) ListBySpace(ctx context.Context, kbSpace string) ([]Chunk, error) {
	var chunks []Chunk
	if err := s.db.WithContext(ctx).
		Where("kb_space = ?", kbSpace).
		Order("chunk_id ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return chunks, nil
}
