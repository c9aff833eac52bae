package retrieval

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

// Embedder turns text into a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// tokenize lowercases text and splits it into letter/digit runs.
func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// HashEmbedder is a deterministic feature-hashing embedder. It needs no
// network and is the default for local runs and tests.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder. dims below 8 is raised to 8.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims < 8 {
		dims = 8
	}
	return &HashEmbedder{dims: dims}
}

// Embed hashes each token into a signed bucket and L2-normalizes the result.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	normalize(vec)
	return vec, nil
}

func (e *HashEmbedder) Dimensions() int { return e.dims }

func (e *HashEmbedder) Name() string { return fmt.Sprintf("hash:%d", e.dims) }

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// DefaultGenAIModel is the embedding model used when none is configured.
const DefaultGenAIModel = "gemini-embedding-001"

// GenAIEmbedder generates embeddings with the Gemini API.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
	dims   int
}

// NewGenAIEmbedder creates a GenAI-backed embedder.
func NewGenAIEmbedder(ctx context.Context, apiKey, model string, dims int) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("genai api key is required")
	}
	if model == "" {
		model = DefaultGenAIModel
	}
	if dims <= 0 {
		dims = 768
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIEmbedder{client: client, model: model, dims: dims}, nil
}

// Embed requests a single embedding.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("genai embed: no embeddings returned")
	}
	return resp.Embeddings[0].Values, nil
}

func (e *GenAIEmbedder) Dimensions() int { return e.dims }

func (e *GenAIEmbedder) Name() string { return "genai:" + e.model }

// NewEmbedder builds the embedder named by cfg.Embedder.
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	switch cfg.Embedder {
	case "", "hash":
		return NewHashEmbedder(cfg.Dimensions), nil
	case "genai":
		return NewGenAIEmbedder(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Embedder)
	}
}

// cosine returns the cosine similarity of two vectors, or 0 when their
// lengths differ or either has zero magnitude.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
