package retrieval

import (
	"math"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// scored is a chunk position with its score in one ranked list.
type scored struct {
	chunk *Chunk
	score float64
}

// sortScored orders by score descending, then chunk id ascending.
func sortScored(list []scored) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].chunk.ID < list[j].chunk.ID
	})
}

func truncate(list []scored, n int) []scored {
	if len(list) > n {
		return list[:n]
	}
	return list
}

// rankVector scores chunks by cosine similarity to the query vector. Chunks
// embedded by a different embedder are skipped.
func rankVector(chunks []Chunk, query []float32, embedder string, limit int) []scored {
	out := make([]scored, 0, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if c.Embedder != embedder || len(c.Embedding) != len(query) {
			continue
		}
		out = append(out, scored{chunk: c, score: cosine(query, c.Embedding)})
	}
	sortScored(out)
	return truncate(out, limit)
}

// rankKeyword scores chunks with Okapi BM25 over the query tokens. Chunks
// sharing no token with the query are dropped.
func rankKeyword(chunks []Chunk, query string, limit int) []scored {
	terms := mapset.NewThreadUnsafeSet(tokenize(query)...)
	if terms.Cardinality() == 0 || len(chunks) == 0 {
		return nil
	}

	tfs := make([]map[string]int, len(chunks))
	lengths := make([]int, len(chunks))
	df := make(map[string]int, terms.Cardinality())
	var total int
	for i := range chunks {
		toks := tokenize(chunks[i].Content)
		lengths[i] = len(toks)
		total += len(toks)
		tf := map[string]int{}
		for _, t := range toks {
			if terms.Contains(t) {
				tf[t]++
			}
		}
		for t := range tf {
			df[t]++
		}
		tfs[i] = tf
	}

	n := float64(len(chunks))
	avgdl := float64(total) / n
	if avgdl == 0 {
		avgdl = 1
	}

	out := make([]scored, 0, len(chunks))
	for i := range chunks {
		if len(tfs[i]) == 0 {
			continue
		}
		var score float64
		for t, f := range tfs[i] {
			idf := math.Log(1 + (n-float64(df[t])+0.5)/(float64(df[t])+0.5))
			tf := float64(f)
			score += idf * tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(lengths[i])/avgdl))
		}
		out = append(out, scored{chunk: &chunks[i], score: score})
	}
	sortScored(out)
	return truncate(out, limit)
}

// fuseRRF merges ranked lists with Reciprocal Rank Fusion:
// score = Σ 1 / (k + rank), ranks starting at 1.
func fuseRRF(k float64, lists ...[]scored) []scored {
	acc := map[int64]*scored{}
	var order []int64
	for _, list := range lists {
		for rank, s := range list {
			cur, ok := acc[s.chunk.ID]
			if !ok {
				cur = &scored{chunk: s.chunk}
				acc[s.chunk.ID] = cur
				order = append(order, s.chunk.ID)
			}
			cur.score += 1 / (k + float64(rank+1))
		}
	}
	out := make([]scored, 0, len(order))
	for _, id := range order {
		out = append(out, *acc[id])
	}
	sortScored(out)
	return out
}

// capPerDocument keeps at most maxPerDoc chunks per document and at most
// topK chunks overall, preserving order.
func capPerDocument(list []scored, maxPerDoc, topK int) []scored {
	perDoc := map[string]int{}
	out := make([]scored, 0, topK)
	for _, s := range list {
		if len(out) == topK {
			break
		}
		if perDoc[s.chunk.DocumentID] >= maxPerDoc {
			continue
		}
		perDoc[s.chunk.DocumentID]++
		out = append(out, s)
	}
	return out
}
