package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/facevault/facevault/pkg/types"
)

// sidecarSuffix is appended to the image path to find its embedding file
const sidecarSuffix = ".embedding.json"

// sidecarDocument is the on-disk layout written by external pipelines
type sidecarDocument struct {
	Vector       []float32           `json:"vector"`
	Model        string              `json:"model"`
	Detector     string              `json:"detector"`
	FaceLocation *types.FaceLocation `json:"face_location"`
}

// SidecarExtractor reads precomputed embeddings from a JSON file next to
// the image ("photo.jpg" -> "photo.jpg.embedding.json"). A missing
// sidecar means no face was found for the image.
type SidecarExtractor struct {
	model     string
	detector  string
	dimension int
	cache     *Cache
}

// NewSidecarExtractor creates an extractor backed by sidecar files
func NewSidecarExtractor(model, detector string, dimension int) *SidecarExtractor {
	if model == "" {
		model = "Facenet512"
	}
	if detector == "" {
		detector = "opencv"
	}
	return &SidecarExtractor{
		model:     model,
		detector:  detector,
		dimension: dimension,
		cache:     NewCache(0),
	}
}

// ExtractEmbedding loads the sidecar embedding for the image
func (e *SidecarExtractor) ExtractEmbedding(ctx context.Context, req ExtractRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, err := ComputeFileHash(req.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cached, ok := e.cache.Get(hash); ok {
		return cached, nil
	}

	blob, err := os.ReadFile(req.ImagePath + sidecarSuffix)
	if os.IsNotExist(err) {
		return nil, ErrNoFace
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	var doc sidecarDocument
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("%w: malformed sidecar: %v", ErrProviderFailed, err)
	}
	if len(doc.Vector) == 0 {
		return nil, ErrNoFace
	}

	emb := &Embedding{
		Vector:       doc.Vector,
		Dimension:    len(doc.Vector),
		Model:        firstNonEmpty(doc.Model, e.model),
		Detector:     firstNonEmpty(doc.Detector, e.detector),
		FaceLocation: doc.FaceLocation,
		Hash:         hash,
	}
	e.cache.Set(hash, emb)
	return emb, nil
}

func (e *SidecarExtractor) Dimension() int   { return e.dimension }
func (e *SidecarExtractor) Model() string    { return e.model }
func (e *SidecarExtractor) Detector() string { return e.detector }
func (e *SidecarExtractor) Close() error     { return nil }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
