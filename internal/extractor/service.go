package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/facevault/facevault/pkg/types"
)

// ServiceExtractor calls a remote face-analysis HTTP service that accepts
// an image path and returns the embedding. Transient failures are retried
// with exponential backoff.
type ServiceExtractor struct {
	baseURL   string
	model     string
	detector  string
	dimension int
	client    *http.Client
	retry     RetryConfig
	cache     *Cache
}

// serviceRequest is the wire format sent to the extraction endpoint
type serviceRequest struct {
	ImagePath string `json:"image_path"`
	Model     string `json:"model"`
	Detector  string `json:"detector"`
}

// serviceResponse is the wire format returned by the extraction endpoint
type serviceResponse struct {
	Vector       []float32           `json:"vector"`
	FaceLocation *types.FaceLocation `json:"face_location"`
	FaceFound    bool                `json:"face_found"`
	Error        string              `json:"error,omitempty"`
}

// NewServiceExtractor creates an extractor backed by an HTTP service
func NewServiceExtractor(baseURL, model, detector string, dimension int) *ServiceExtractor {
	if model == "" {
		model = "Facenet512"
	}
	if detector == "" {
		detector = "opencv"
	}
	return &ServiceExtractor{
		baseURL:   baseURL,
		model:     model,
		detector:  detector,
		dimension: dimension,
		client:    &http.Client{Timeout: 60 * time.Second},
		retry:     DefaultRetryConfig(),
		cache:     NewCache(0),
	}
}

// ExtractEmbedding requests the embedding from the remote service
func (e *ServiceExtractor) ExtractEmbedding(ctx context.Context, req ExtractRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash, err := ComputeFileHash(req.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cached, ok := e.cache.Get(hash); ok {
		return cached, nil
	}

	model := firstNonEmpty(req.Model, e.model)
	resp, err := retryWithBackoff(ctx, e.retry, func() (*serviceResponse, error) {
		return e.call(ctx, serviceRequest{
			ImagePath: req.ImagePath,
			Model:     model,
			Detector:  e.detector,
		})
	})
	if err != nil {
		return nil, err
	}
	if !resp.FaceFound || len(resp.Vector) == 0 {
		return nil, ErrNoFace
	}

	emb := &Embedding{
		Vector:       resp.Vector,
		Dimension:    len(resp.Vector),
		Model:        model,
		Detector:     e.detector,
		FaceLocation: resp.FaceLocation,
		Hash:         hash,
	}
	e.cache.Set(hash, emb)
	return emb, nil
}

func (e *ServiceExtractor) call(ctx context.Context, payload serviceRequest) (*serviceResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/represent", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderFailed, httpResp.StatusCode, raw)
	}

	var resp serviceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrProviderFailed, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrProviderFailed, resp.Error)
	}
	return &resp, nil
}

func (e *ServiceExtractor) Dimension() int   { return e.dimension }
func (e *ServiceExtractor) Model() string    { return e.model }
func (e *ServiceExtractor) Detector() string { return e.detector }

// Close releases idle HTTP connections
func (e *ServiceExtractor) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
