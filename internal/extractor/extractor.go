package extractor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/facevault/facevault/pkg/types"
)

// Common errors
var (
	ErrNoFace            = errors.New("no face detected")
	ErrInvalidImage      = errors.New("invalid image")
	ErrProviderFailed    = errors.New("extraction provider failed")
	ErrNoProviderEnabled = errors.New("no extraction provider configured")
)

// Embedding is a face embedding with the metadata the store needs
type Embedding struct {
	Vector       []float32
	Dimension    int
	Model        string
	Detector     string
	FaceLocation *types.FaceLocation
	Hash         string // Image content hash for caching
}

// ExtractRequest asks a provider for the embedding of one image
type ExtractRequest struct {
	ImagePath string
	Model     string // Optional: override the provider default
}

// Extractor produces face embeddings from image files
type Extractor interface {
	// ExtractEmbedding computes the embedding for a single image
	ExtractEmbedding(ctx context.Context, req ExtractRequest) (*Embedding, error)

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Model returns the model name
	Model() string

	// Detector returns the face detector name
	Detector() string

	// Close releases any resources held by the extractor
	Close() error
}

// Cache provides in-memory LRU caching of embeddings by image hash
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 1000
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		// Should never happen with positive size, but fallback to default
		cache, _ = lru.New[string, *Embedding](1000)
	}
	return &Cache{cache: cache}
}

// Get retrieves a deep copy of an embedding from cache
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)

	out := *emb
	out.Vector = vectorCopy
	if emb.FaceLocation != nil {
		loc := *emb.FaceLocation
		out.FaceLocation = &loc
	}
	return &out, true
}

// Set stores an embedding in cache with automatic LRU eviction
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeFileHash computes the SHA-256 of a file's content for caching
func ComputeFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ValidateRequest validates an extraction request
func ValidateRequest(req ExtractRequest) error {
	if req.ImagePath == "" {
		return types.ErrMissingImagePath
	}
	return nil
}
