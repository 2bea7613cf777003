package searcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/facevault/facevault/internal/storage"
	"github.com/facevault/facevault/pkg/types"
)

const (
	// DefaultThreshold is the minimum similarity when none is given
	DefaultThreshold = 0.6
	// DefaultLimit is the result cap when none is given
	DefaultLimit = 10
	// MaxLimit bounds how many matches one request may return
	MaxLimit = 100
	// DefaultCacheTTL is how long a cached response stays valid
	DefaultCacheTTL = 5 * time.Minute

	cacheSize = 128
)

// SearchRequest describes a similarity search over stored embeddings
type SearchRequest struct {
	Vector        []float32
	Threshold     *float64 // nil selects DefaultThreshold; 0 is a valid threshold
	Limit         int      // 0 selects DefaultLimit, capped at MaxLimit
	UserID        *int64
	MinConfidence *float64
	UseCache      bool
	CacheTTL      time.Duration // 0 selects DefaultCacheTTL
}

// SearchResponse is the outcome of a search
type SearchResponse struct {
	Matches     []types.Match `json:"matches"`
	RowsScanned int           `json:"rows_scanned"`
	SkippedRows int           `json:"skipped_rows"`
	Duration    time.Duration `json:"duration"`
	CacheHit    bool          `json:"cache_hit"`
}

type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher runs similarity searches against a store, hydrating candidates
// into full matches and filtering out matches whose image file is gone.
type Searcher struct {
	store storage.Storage
	cache *lru.Cache[string, cacheEntry]

	// fileExists is swappable so tests don't need real files
	fileExists func(path string) bool
}

// New creates a Searcher over the given store
func New(store storage.Storage) (*Searcher, error) {
	cache, err := lru.New[string, cacheEntry](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create search cache: %w", err)
	}
	return &Searcher{
		store:      store,
		cache:      cache,
		fileExists: defaultFileExists,
	}, nil
}

func defaultFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// validateRequest applies defaults and rejects unusable requests
func validateRequest(req *SearchRequest) error {
	if len(req.Vector) == 0 {
		return types.ErrEmptyVector
	}
	if req.Threshold == nil {
		def := DefaultThreshold
		req.Threshold = &def
	}
	if *req.Threshold < 0 || *req.Threshold > 1 {
		return errors.New("threshold must be between 0 and 1")
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.CacheTTL <= 0 {
		req.CacheTTL = DefaultCacheTTL
	}
	return nil
}

// cacheKey builds a deterministic key from the request contents
func cacheKey(req *SearchRequest) string {
	h := sha256.New()
	h.Write(storage.SerializeVector(req.Vector))
	fmt.Fprintf(h, "|%v|%d", *req.Threshold, req.Limit)
	if req.UserID != nil {
		fmt.Fprintf(h, "|u%d", *req.UserID)
	}
	if req.MinConfidence != nil {
		fmt.Fprintf(h, "|c%v", *req.MinConfidence)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Search finds stored embeddings similar to the request vector. Matches
// come back best first with 1-based ranks; candidates whose image file no
// longer exists are dropped before the limit is applied.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	key := cacheKey(&req)
	if req.UseCache {
		if entry, ok := s.cache.Get(key); ok {
			if time.Now().Before(entry.expiresAt) {
				cached := *entry.response
				cached.CacheHit = true
				return &cached, nil
			}
			s.cache.Remove(key)
		}
	}

	start := time.Now()
	scan, err := s.store.SearchVector(ctx, req.Vector, storage.SearchOptions{
		Threshold:     *req.Threshold,
		UserID:        req.UserID,
		MinConfidence: req.MinConfidence,
	})
	if err != nil {
		return nil, fmt.Errorf("vector scan failed: %w", err)
	}

	matches := make([]types.Match, 0, req.Limit)
	for _, candidate := range scan.Candidates {
		if len(matches) >= req.Limit {
			break
		}
		analysis, err := s.store.GetAnalysisByID(ctx, candidate.AnalysisID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !s.fileExists(analysis.ImagePath) {
			continue
		}
		matches = append(matches, types.Match{
			AnalysisID:   analysis.ID,
			Rank:         len(matches) + 1,
			Similarity:   candidate.Similarity,
			ImagePath:    analysis.ImagePath,
			AnalysisType: string(analysis.AnalysisType),
			UserName:     analysis.UserName,
			ModelUsed:    analysis.ModelUsed,
			Confidence:   analysis.ConfidenceScore,
			CreatedAt:    analysis.CreatedAt,
		})
	}

	response := &SearchResponse{
		Matches:     matches,
		RowsScanned: scan.RowsScanned,
		SkippedRows: scan.RowsSkipped,
		Duration:    time.Since(start),
	}
	if req.UseCache {
		s.cache.Add(key, cacheEntry{
			response:  response,
			expiresAt: time.Now().Add(req.CacheTTL),
		})
	}
	return response, nil
}

// InvalidateCache drops all cached responses. Call after writes that
// change search results.
func (s *Searcher) InvalidateCache() {
	s.cache.Purge()
}

// CacheLen reports the number of cached responses
func (s *Searcher) CacheLen() int {
	return s.cache.Len()
}
