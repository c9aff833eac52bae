// Package retrieval indexes knowledge-base documents into chunks and ranks
// them for a query by vector similarity, BM25 or their reciprocal rank
// fusion.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/opsinsight/reportcore/pkg/cache"
)

var (
	ErrEmptyQuery   = errors.New("query must not be empty")
	ErrInvalidTopK  = errors.New("top_k must be positive")
	ErrEmptyKBSpace = errors.New("kb_space must not be empty")
)

// SearchRequest describes one retrieval call. An empty Mode uses the
// configured default.
type SearchRequest struct {
	KBSpace string
	Query   string
	TopK    int
	Mode    Mode
}

// Document is a knowledge-base document to index.
type Document struct {
	KBSpace    string
	DocumentID string
	Text       string
}

// Service indexes and searches chunks.
type Service struct {
	store      *ChunkStore
	embedder   Embedder
	cfg        Config
	queryCache *cache.LRU[string, []float32]
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a Service. A nil logger uses slog.Default().
func NewService(store *ChunkStore, embedder Embedder, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Service{
		store:      store,
		embedder:   embedder,
		cfg:        cfg,
		queryCache: cache.NewLRU[string, []float32](cfg.CacheSize, cfg.CacheTTL),
		logger:     logger,
		now:        time.Now,
	}
}

// Index splits a document into chunks, embeds them and replaces any chunks
// previously stored for the same document. It returns the chunk count.
func (s *Service) Index(ctx context.Context, doc Document) (int, error) {
	if strings.TrimSpace(doc.KBSpace) == "" {
		return 0, ErrEmptyKBSpace
	}
	if strings.TrimSpace(doc.DocumentID) == "" {
		return 0, errors.New("document_id must not be empty")
	}

	pieces := splitText(doc.Text, s.cfg.ChunkChars)
	chunks := make([]Chunk, 0, len(pieces))
	now := s.now()
	for i, p := range pieces {
		vec, err := s.embedder.Embed(ctx, p)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d of %s: %w", i, doc.DocumentID, err)
		}
		chunks = append(chunks, Chunk{
			KBSpace:    doc.KBSpace,
			DocumentID: doc.DocumentID,
			ChunkIndex: i,
			Content:    p,
			Embedding:  vec,
			Embedder:   s.embedder.Name(),
			CreatedAt:  now,
		})
	}

	if err := s.store.ReplaceDocument(ctx, doc.KBSpace, doc.DocumentID, chunks); err != nil {
		return 0, err
	}
	s.logger.Info("indexed document", "kbSpace", doc.KBSpace, "documentID", doc.DocumentID, "chunks", len(chunks))
	return len(chunks), nil
}

// Search ranks the chunks of req.KBSpace for req.Query. Each ranked list is
// cut to TopK × CandidateFactor before fusion; the final list keeps at most
// MaxPerDoc chunks per document and TopK overall. Equal scores order by
// chunk id. In hybrid mode a failing embedder degrades to keyword ranking.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	if strings.TrimSpace(req.KBSpace) == "" {
		return nil, ErrEmptyKBSpace
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if req.TopK <= 0 {
		return nil, ErrInvalidTopK
	}
	mode := req.Mode
	if mode == "" {
		mode = s.cfg.Mode
	}

	chunks, err := s.store.ListBySpace(ctx, req.KBSpace)
	if err != nil {
		return nil, err
	}
	limit := req.TopK * s.cfg.CandidateFactor

	var ranked []scored
	switch mode {
	case ModeVector:
		q, err := s.queryVector(ctx, req.Query)
		if err != nil {
			return nil, err
		}
		ranked = rankVector(chunks, q, s.embedder.Name(), limit)
	case ModeKeyword:
		ranked = rankKeyword(chunks, req.Query, limit)
	case ModeHybrid:
		sparse := rankKeyword(chunks, req.Query, limit)
		q, err := s.queryVector(ctx, req.Query)
		if err != nil {
			s.logger.Warn("vector ranking unavailable, using keyword only", "kbSpace", req.KBSpace, "error", err)
			ranked = fuseRRF(s.cfg.RRFK, sparse)
			break
		}
		ranked = fuseRRF(s.cfg.RRFK, rankVector(chunks, q, s.embedder.Name(), limit), sparse)
	default:
		return nil, fmt.Errorf("unknown search mode %q", mode)
	}

	ranked = capPerDocument(ranked, s.cfg.MaxPerDoc, req.TopK)
	hits := make([]Hit, 0, len(ranked))
	for _, r := range ranked {
		hits = append(hits, Hit{
			KBSpace:    r.chunk.KBSpace,
			DocumentID: r.chunk.DocumentID,
			ChunkID:    r.chunk.ID,
			Score:      r.score,
			Content:    r.chunk.Content,
		})
	}
	s.logger.Debug("search done", "kbSpace", req.KBSpace, "mode", mode, "chunks", len(chunks), "hits", len(hits))
	return hits, nil
}

func (s *Service) queryVector(ctx context.Context, query string) ([]float32, error) {
	key := s.embedder.Name() + "\x00" + query
	if v, ok := s.queryCache.Get(key); ok {
		return v, nil
	}
	v, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	s.queryCache.Set(key, v)
	return v, nil
}

// splitText cuts text into chunks of at most size runes. Paragraphs are
// packed together while they fit; longer paragraphs are cut at whitespace.
func splitText(text string, size int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		runes := []rune(para)
		if curLen > 0 && curLen+2+len(runes) > size {
			flush()
		}
		for len(runes) > size {
			cut := size
			for i := size; i > size/2; i-- {
				if unicode.IsSpace(runes[i]) {
					cut = i
					break
				}
			}
			cur.WriteString(string(runes[:cut]))
			flush()
			runes = []rune(strings.TrimSpace(string(runes[cut:])))
		}
		if len(runes) == 0 {
			continue
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(string(runes))
		curLen += len(runes)
	}
	flush()
	return out
}
