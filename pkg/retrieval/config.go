package retrieval

import "time"

// Mode selects the ranking used by Search.
type Mode string

const (
	ModeVector  Mode = "vector"
	ModeKeyword Mode = "keyword"
	ModeHybrid  Mode = "hybrid"
)

// Config holds retrieval configuration.
type Config struct {
	// Mode is the default ranking when a request does not name one.
	Mode Mode `mapstructure:"mode"`

	// Embedder is "hash" or "genai".
	Embedder   string `mapstructure:"embedder"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`

	// MaxPerDoc caps how many chunks of one document a result may hold.
	MaxPerDoc int `mapstructure:"max_per_doc"`

	// CandidateFactor multiplies top_k to size each ranked list before fusion.
	CandidateFactor int     `mapstructure:"candidate_factor"`
	RRFK            float64 `mapstructure:"rrf_k"`

	// ChunkChars is the target chunk length in characters when indexing.
	ChunkChars int `mapstructure:"chunk_chars"`

	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:            ModeHybrid,
		Embedder:        "hash",
		Model:           DefaultGenAIModel,
		Dimensions:      256,
		MaxPerDoc:       3,
		CandidateFactor: 5,
		RRFK:            60,
		ChunkChars:      800,
		CacheSize:       512,
		CacheTTL:        10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.MaxPerDoc <= 0 {
		c.MaxPerDoc = d.MaxPerDoc
	}
	if c.CandidateFactor <= 0 {
		c.CandidateFactor = d.CandidateFactor
	}
	if c.RRFK <= 0 {
		c.RRFK = d.RRFK
	}
	if c.ChunkChars <= 0 {
		c.ChunkChars = d.ChunkChars
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	return c
}
